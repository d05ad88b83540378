package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultDir is the log directory relative to the project root.
const DefaultDir = ".fleet/log"

const (
	SystemLog = "system.log"
	AccessLog = "http-access.log"
)

// Config locates the log files and sets the level of both loggers.
type Config struct {
	Dir     string
	Level   zapcore.Level
	Console io.Writer // defaults to stdout

	// OmitMessage drops the "msg" key; access lines carry everything in fields.
	OmitMessage bool
}

// NewLog returns a JSON logger writing to cfg.Dir/name (rotated) and to the
// console. Without a directory it only writes to the console.
func NewLog(cfg Config, name string) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.OmitMessage {
		enc.MessageKey = zapcore.OmitKey
	}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(console)), cfg.Level),
	}

	if cfg.Dir != "" && os.MkdirAll(cfg.Dir, 0o755) == nil {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name),
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, cfg.Level))
	}
	return zap.New(zapcore.NewTee(cores...))
}
