package cli

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"fieldmap/internal/mapdoc"
)

// ANSI escapes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// stdoutIsTerminal reports whether stdout is attached to a terminal. Color
// is suppressed when output is piped or redirected.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// paint wraps s in the given ANSI color when stdout is a terminal.
func paint(color, s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return color + s + colorReset
}

// warnDocumentSuffix logs when a document path misses the naming convention.
// The file is still processed: the suffix is a convention, not a requirement.
func warnDocumentSuffix(path string) {
	if !strings.HasSuffix(path, mapdoc.DocumentSuffix) {
		slog.Warn("document name does not end in the expected suffix",
			"path", path, "suffix", mapdoc.DocumentSuffix)
	}
}
