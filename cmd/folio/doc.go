// Command folio is the CLI for the document transcription pipeline. It
// submits scans, inspects the registry, and runs the processing daemon.
package main
