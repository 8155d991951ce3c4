// Package diag provides the structured logger shared by the decoder's
// name-section codec and the WAST parser's error-recovery path. Library
// callers that never touch cmd/wasmtool get logrus's standard logger at
// its default level; the CLI reconfigures it from --log-level/--quiet.
package diag

import "github.com/sirupsen/logrus"

var log = logrus.StandardLogger()

// SetLogger replaces the package-wide logger, used by cmd/wasmtool to wire
// CLI flags (--log-level, --quiet) through to pipeline diagnostics.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// DroppedName logs a malformed or out-of-range name-section entry that the
// decoder chose to skip rather than fail the whole module over.
func DroppedName(subsection string, reason string, fields logrus.Fields) {
	entry := log.WithField("subsection", subsection)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Debug(reason)
}

// RecoveredParseError logs a WAST top-level-form error the parser
// recovered from in order to keep reporting the rest of the file.
func RecoveredParseError(line, col int, message string) {
	log.WithFields(logrus.Fields{"line": line, "column": col}).Warn(message)
}
