package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
)

// New builds the process logger. Format is "json" or "text"; level is one of
// debug, info, warn, error.
func New(format, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, format, level)
}

func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Child tags every record with the component name.
func Child(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With(slog.String("component", component))
}

func IsDebug(logger *slog.Logger) bool {
	return logger.Enabled(context.Background(), slog.LevelDebug)
}

type restyAdapter struct {
	logger *slog.Logger
}

// RestyAdapter routes resty's internal logging through slog.
func RestyAdapter(logger *slog.Logger) resty.Logger {
	return &restyAdapter{logger: logger}
}

func (r *restyAdapter) Errorf(format string, v ...interface{}) {
	r.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (r *restyAdapter) Warnf(format string, v ...interface{}) {
	r.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (r *restyAdapter) Debugf(format string, v ...interface{}) {
	r.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
