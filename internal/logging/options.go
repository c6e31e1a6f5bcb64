package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logTimeFormat = "2006-01-02 15:04:05.000"

// Options configures the production logger.
type Options struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	Director     string `mapstructure:"director"`
	FileName     string `mapstructure:"file_name"`
	ShowLine     bool   `mapstructure:"show_line"`
	EncodeLevel  string `mapstructure:"encode_level"`
	LogInConsole bool   `mapstructure:"log_in_console"`
	Compress     bool   `mapstructure:"compress"`
	MaxAge       int    `mapstructure:"max_age"`  // days
	MaxSize      int    `mapstructure:"max_size"` // MB
	MaxBackup    int    `mapstructure:"max_backup"`
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = "json"
	}
	if o.FileName == "" {
		o.FileName = "discussion-agent.log"
	}
	if o.EncodeLevel == "" {
		o.EncodeLevel = "LowercaseLevelEncoder"
	}
	if o.MaxAge == 0 {
		o.MaxAge = 7
	}
	if o.MaxSize == 0 {
		o.MaxSize = 100
	}
	return o
}

// New builds a zap-backed Logger. When Director is empty, output goes to stdout only.
func New(opts Options) (Logger, error) {
	opts = opts.withDefaults()

	level, err := zapcore.ParseLevel(defaultString(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("logging: parse level: %w", err)
	}

	writer, err := writeSyncer(opts)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder(opts), writer, level)

	zopts := []zap.Option{}
	if level == zapcore.DebugLevel || level == zapcore.ErrorLevel {
		zopts = append(zopts, zap.AddStacktrace(level))
	}
	if opts.ShowLine {
		zopts = append(zopts, zap.AddCaller())
	}

	return &zapLogger{base: zap.New(core, zopts...)}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(logTimeFormat),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func encoder(opts Options) zapcore.Encoder {
	cfg := encoderConfig()
	switch opts.EncodeLevel {
	case "LowercaseColorLevelEncoder":
		cfg.EncodeLevel = zapcore.LowercaseColorLevelEncoder
	case "CapitalLevelEncoder":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	case "CapitalColorLevelEncoder":
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if opts.Format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func writeSyncer(opts Options) (zapcore.WriteSyncer, error) {
	if opts.Director == "" {
		return zapcore.AddSync(os.Stdout), nil
	}
	if err := os.MkdirAll(opts.Director, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Director, opts.FileName),
		MaxSize:    opts.MaxSize,
		MaxAge:     opts.MaxAge,
		MaxBackups: opts.MaxBackup,
		Compress:   opts.Compress,
		LocalTime:  true,
	}

	if opts.LogInConsole {
		return zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(file)), nil
	}
	return zapcore.AddSync(file), nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Since is a small helper for latency fields.
func Since(start time.Time) Field {
	return Field{Key: "elapsed", Value: time.Since(start)}
}
