package tcp

import (
	"context"
	"log/slog"
)

// logAttrs is a nil-safe slog.Logger.LogAttrs wrapper so every component
// works unconfigured (nil logger) in tests and in library use, matching
// the reference stack's internal.LogAttrs helper.
func logAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// logger is embedded by TCB and Manager so each gets
// trace/debug/info/warn/error helpers for free, all routed through a
// single *slog.Logger that may be nil.
type logger struct {
	log *slog.Logger
}

func (lg logger) trace(msg string, attrs ...slog.Attr) { logAttrs(lg.log, levelTrace, msg, attrs...) }
func (lg logger) debug(msg string, attrs ...slog.Attr) { logAttrs(lg.log, slog.LevelDebug, msg, attrs...) }
func (lg logger) info(msg string, attrs ...slog.Attr)  { logAttrs(lg.log, slog.LevelInfo, msg, attrs...) }
func (lg logger) warn(msg string, attrs ...slog.Attr)  { logAttrs(lg.log, slog.LevelWarn, msg, attrs...) }
func (lg logger) error(msg string, attrs ...slog.Attr) { logAttrs(lg.log, slog.LevelError, msg, attrs...) }

// levelTrace sits below slog.LevelDebug, for segment-by-segment chatter
// that's too noisy even for -debug.
const levelTrace slog.Level = slog.LevelDebug - 4
