package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
)

// New LOG_LEVEL（debug / info / warn / error）と LOG_FORMAT（text / json）からロガーを作る
//
// logr の V(1) は slog の Debug より上のレベルになるので、debug 指定で V(1) のログも出る。
func New(w io.Writer, level, format string) logr.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return logr.FromSlogHandler(h)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
