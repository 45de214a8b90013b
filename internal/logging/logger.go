// Package logging builds the structured zap loggers used across the
// module and the lifecycle event logger layered on top of them.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names for structured logging.
const (
	ComponentListener    = "listener"
	ComponentProcessor   = "processor"
	ComponentCoordinator = "coordinator"
	ComponentStore       = "store"
	ComponentCLI         = "cli"
)

// Canonical field names, kept consistent across every component.
const (
	FieldComponent = "component"
	FieldGroupID   = "group_id"
	FieldMemberID  = "member_id"
	FieldChannel   = "channel"
	FieldRecordID  = "record_id"
	FieldEventType = "event_type"
	FieldOutcome   = "outcome"
	FieldReason    = "reason"
)

// NewLogger builds a *zap.Logger with the given level, format, and
// optional file output. level is one of debug/info/warn/error; format is
// "json" or "console". An empty filePath logs to stdout.
func NewLogger(level, format, filePath string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stdout)
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		ws = f
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	return zap.New(core), nil
}

// NewComponentLogger returns a logger with a "component" field pre-set.
func NewComponentLogger(level, format, filePath, component string) (*zap.Logger, error) {
	logger, err := NewLogger(level, format, filePath)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String(FieldComponent, component)), nil
}
