package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"folio/internal/registry"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status registry.Status) string {
	switch status {
	case registry.StatusCompleted:
		return ansiGreen
	case registry.StatusError:
		return ansiRed
	case registry.StatusQueued:
		return ansiBlue
	default:
		return ansiYellow
	}
}

func renderStatus(status registry.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	return statusColor(status) + string(status) + ansiReset
}

func renderKind(doc *registry.Document) string {
	switch {
	case doc.IsContainer:
		return "container"
	case doc.IsChild():
		return fmt.Sprintf("page %d", doc.PageOrder)
	default:
		return "document"
	}
}

func renderTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
