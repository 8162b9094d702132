// Package storage owns the on-disk library layout. Documents live under
// root/{owner}/{directory}/ where the directory name embeds a random suffix
// to keep repeated uploads of the same file apart.
package storage
