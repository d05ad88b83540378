package logger

import "go.uber.org/zap"

func ProvideLoggerMiddleware(cfg Config) *Middleware {
	access := cfg
	access.OmitMessage = true
	return NewMiddleware(NewLog(access, AccessLog))
}

func ProvideLogger(cfg Config) *zap.Logger { return NewLog(cfg, SystemLog) }
