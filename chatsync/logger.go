package chatsync

import "log/slog"

// discardLogger drops all records. Components fall back to it when no
// logger is configured.
var discardLogger = slog.New(slog.DiscardHandler)

// LoggerOrDiscard returns l, or a logger that drops everything when l is nil.
func LoggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discardLogger
	}
	return l
}
