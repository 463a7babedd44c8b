package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/DoyleJ11/arena-server/internal/config"
)

func newLogger(cfg config.Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Dev {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.LogFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(cfg.LogLevel))
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Dev {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...)
}
