// Package daemon wires the registry, workflow manager, and inbox watcher
// into a single supervised process guarded by a lock file.
package daemon
