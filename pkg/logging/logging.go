package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a configuration string such as "debug" or "WARN" into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger

	ctrlLoggerOnce sync.Once
)

// Init initializes the logger with the given level, format and output.
// It also routes controller-runtime and client-go logging through the same handler.
// This should be called once at application startup.
func Init(level LogLevel, format Format, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	mu.Lock()
	defaultLogger = slog.New(handler)
	mu.Unlock()

	slog.SetDefault(defaultLogger)
	initControllerRuntimeLogger()
}

// InitForCLI initializes text logging for CLI mode.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	Init(filterLevel, FormatText, output)
}

// initControllerRuntimeLogger bridges slog into logr for the informers and
// caches started by controller-runtime. ctrl.SetLogger only honors its first
// call, so the installed logger forwards to whatever handler Init set last.
func initControllerRuntimeLogger() {
	ctrlLoggerOnce.Do(func() {
		ctrl.SetLogger(logr.FromSlogHandler(&forwardingHandler{}))
	})
}

// forwardingHandler resolves the current default handler on every call and
// replays the attributes and groups added through WithAttrs and WithGroup.
type forwardingHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (f *forwardingHandler) target() slog.Handler {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	if logger == nil {
		return nil
	}
	h := logger.Handler()
	for _, op := range f.ops {
		h = op(h)
	}
	return h
}

func (f *forwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := f.target()
	return h != nil && h.Enabled(ctx, level)
}

func (f *forwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	h := f.target()
	if h == nil {
		return nil
	}
	return h.Handle(ctx, r)
}

func (f *forwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *forwardingHandler) WithGroup(name string) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *forwardingHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(f.ops), len(f.ops)+1)
	copy(ops, f.ops)
	return &forwardingHandler{ops: append(ops, op)}
}

// Logr returns a logr.Logger writing through the configured handler, named after the subsystem.
func Logr(subsystem string) logr.Logger {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	if logger == nil {
		return logr.Discard()
	}
	return logr.FromSlogHandler(logger.Handler()).WithName(subsystem)
}

func logInternal(level LogLevel, subsystem string, err error, attrs []slog.Attr, messageFmt string, args ...interface{}) {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()

	if logger == nil {
		// Not initialized; keep errors visible rather than silently dropping them.
		if level >= LevelWarn {
			fmt.Fprintf(os.Stderr, "[LOGGING_ERROR] Logger not initialized. Log: %s [%s] %s: %s\n",
				time.Now().Format(time.RFC3339), level, subsystem, fmt.Sprintf(messageFmt, args...))
		}
		return
	}
	if !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	slogAttrs := make([]slog.Attr, 0, len(attrs)+2)
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}
	slogAttrs = append(slogAttrs, attrs...)

	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, nil, messageFmt, args...)
}

// Logger carries a fixed subsystem and attribute set, e.g. the identity and
// reconcile ID of one reconciliation attempt.
type Logger struct {
	subsystem string
	attrs     []slog.Attr
}

// With returns a Logger for the subsystem with the given key/value pairs attached to every line.
func With(subsystem string, keysAndValues ...any) Logger {
	return Logger{subsystem: subsystem}.With(keysAndValues...)
}

// With returns a copy of l with extra key/value pairs.
func (l Logger) With(keysAndValues ...any) Logger {
	attrs := make([]slog.Attr, len(l.attrs), len(l.attrs)+len(keysAndValues)/2)
	copy(attrs, l.attrs)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return Logger{subsystem: l.subsystem, attrs: attrs}
}

func (l Logger) Debug(messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, l.subsystem, nil, l.attrs, messageFmt, args...)
}

func (l Logger) Info(messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, l.subsystem, nil, l.attrs, messageFmt, args...)
}

func (l Logger) Warn(messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, l.subsystem, nil, l.attrs, messageFmt, args...)
}

func (l Logger) Error(err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, l.subsystem, err, l.attrs, messageFmt, args...)
}
