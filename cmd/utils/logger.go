package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var ErrInvalidLogLevel = errors.New("invalid log level")

const loggerContextKey = contextKey("logger")

func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidLogLevel, level)
	}
}

// InitLogger installs the default slog logger: colored output on a terminal,
// JSON lines otherwise.
func InitLogger(level string) error {
	w := os.Stdout

	parsedLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var handler slog.Handler
	if isatty.IsTerminal(w.Fd()) {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      parsedLevel,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parsedLevel})
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger returns the request-scoped logger, falling back to the default one.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
