package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is one of debug, info, warn or error.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LogFormat selects the encoder.
type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

var levelAliases = map[string]LogLevel{
	"debug": DebugLevel, "info": InfoLevel, "warn": WarnLevel, "warning": WarnLevel, "error": ErrorLevel,
}

var formatAliases = map[string]LogFormat{
	"json": JSONFormat, "text": TextFormat, "console": TextFormat,
}

// ParseLogLevel accepts the level names case-insensitively, plus "warning".
func ParseLogLevel(level string) (LogLevel, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l, nil
	}
	return "", fmt.Errorf("invalid log level: %s", level)
}

// ParseLogFormat accepts json, text or console.
func ParseLogFormat(format string) (LogFormat, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(format))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid log format: %s", format)
}

// Config configures NewZapLogger. Empty Level and Format mean info and json.
type Config struct {
	Level  LogLevel
	Format LogFormat
	// Output defaults to stderr so command output on stdout stays machine readable.
	Output io.Writer
	// Fields are key-value pairs attached to every entry.
	Fields []any
}

// ZapLogger is a Logger backed by a sugared zap logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a logger with ISO8601 timestamps under "timestamp" and
// the message under "message".
func NewZapLogger(cfg Config) (*ZapLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLogLevel(string(cfg.Level))
		if err != nil {
			return nil, err
		}
		if err := level.Set(string(parsed)); err != nil {
			return nil, err
		}
	}
	format := JSONFormat
	if cfg.Format != "" {
		var err error
		if format, err = ParseLogFormat(string(cfg.Format)); err != nil {
			return nil, err
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(out), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{sugar: base.Sugar().With(cfg.Fields...)}, nil
}

func newEncoder(format LogFormat) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey, ec.MessageKey = "timestamp", "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	if format == TextFormat {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// NewNopLogger discards every entry.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(args...)}
}

// WithContext adds the drain and request ids found in ctx.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	if fields := contextFields(ctx); len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}

// Sync flushes buffered entries; call it before exiting.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
