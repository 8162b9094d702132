// Package registry persists documents and background jobs in a single SQLite
// database. It owns the document state machine: every status change goes
// through a conditional UPDATE keyed on the expected current status, which is
// what keeps concurrent workers from double-claiming merges or clobbering
// terminal states.
package registry
