// Package subscript shells out to the transcription engine CLI. The engine is
// the synchronous pipeline; everything in this repository orchestrates around
// it. The client enforces the invocation timeout and retry policy and keeps
// the tail of the engine output for error reporting.
package subscript
