package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string // ISO8601, RFC3339, or custom format
}

// DefaultTimeFormat is used when Config.TimeFormat is empty
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Option customizes the logger built by New
type Option func(*options)

type options struct {
	extraCores []zapcore.Core
	fields     []zap.Field
}

// WithCore tees every entry into an additional core, e.g. an OTLP log bridge
func WithCore(core zapcore.Core) Option {
	return func(o *options) {
		if core != nil {
			o.extraCores = append(o.extraCores, core)
		}
	}
}

// WithFields attaches static fields such as service name and environment
func WithFields(fields ...zap.Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// New creates a new zap logger with the given configuration
func New(cfg *Config, opts ...Option) (*zap.Logger, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	writer, err := createWriter(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(createEncoder(cfg), writer, parseLevel(cfg.Level))
	if len(o.extraCores) > 0 {
		core = zapcore.NewTee(append([]zapcore.Core{core}, o.extraCores...)...)
	}

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if len(o.fields) > 0 {
		logger = logger.With(o.fields...)
	}
	return logger, nil
}

// parseLevel converts a string level to zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func createEncoder(cfg *Config) zapcore.Encoder {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// createWriter opens the configured sink; files are appended to
func createWriter(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(file), nil
	}
}

// Sync flushes any buffered log entries
func Sync(logger *zap.Logger) error {
	return logger.Sync()
}
