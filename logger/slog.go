package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/phsym/console-slog"
)

// Output formats accepted by NewSlogWriter.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// levelFatal ranks above slog.LevelError so fatal records keep their own name.
const levelFatal = slog.LevelError + 4

// SlogLogger is a Logger backed by log/slog. Children created by With share
// the parent's LevelVar.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// NewSlog creates a logger writing to stderr in the format named by the
// HUB_LOG_FORMAT environment variable, JSON when unset.
func NewSlog(level Level, addSource bool) Logger {
	return NewSlogWriter(os.Stderr, level, addSource, os.Getenv("HUB_LOG_FORMAT"))
}

// NewSlogWriter creates a logger writing to w. FormatConsole renders colored
// lines through console-slog; any other format yields JSON lines with the
// timestamp under "ts".
func NewSlogWriter(w io.Writer, level Level, addSource bool, format string) Logger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))

	var handler slog.Handler
	if strings.EqualFold(format, FormatConsole) {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: addSource,
			Level:     lv,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource:   addSource,
			Level:       lv,
			ReplaceAttr: renameJSONAttr,
		})
	}

	return &SlogLogger{logger: slog.New(handler), level: lv}
}

func renameJSONAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		if lv, ok := a.Value.Any().(slog.Level); ok && lv >= levelFatal {
			a.Value = slog.StringValue("FATAL")
		}
	}

	return a
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(context.Background(), levelFatal, msg, keysAndValues...)
	os.Exit(1)
}

func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{logger: l.logger.With(keyValues...), level: l.level}
}

func (l *SlogLogger) Level() Level {
	return fromSlogLevel(l.level.Level())
}

// SetLevel takes effect for l and every logger derived from it.
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called straight from a Logger method: the source position is
// taken at a fixed call depth.
func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return levelFatal
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	case level < levelFatal:
		return ErrorLevel
	default:
		return FatalLevel
	}
}
