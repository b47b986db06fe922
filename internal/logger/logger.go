package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"trading-guard-go/internal/models"
)

var (
	baseLogger    *zap.Logger
	sugaredLogger *zap.SugaredLogger
)

// InitLogger builds the global zap logger from the given config. Console
// output uses a colored console encoder; file output goes through lumberjack
// rotation with a JSON encoder so log files stay machine-readable.
func InitLogger(cfg models.LogConfig) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	consoleEncoderCfg := zap.NewProductionEncoderConfig()
	consoleEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), fileWriter, logLevel))
	}
	if output == "console" || output == "both" || len(cores) == 0 {
		consoleWriter := zapcore.AddSync(os.Stdout)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), consoleWriter, logLevel))
	}

	baseLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sugaredLogger = baseLogger.Sugar()
}

// L returns the global structured logger.
func L() *zap.Logger {
	if baseLogger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return baseLogger
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	if sugaredLogger == nil {
		return L().Sugar()
	}
	return sugaredLogger
}
