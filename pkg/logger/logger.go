package logger

import (
	"iotflow/conf"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 基于zap的日志封装，支持文件滚动和控制台双路输出

var (
	l *zap.Logger
	s *zap.SugaredLogger
)

// InitLogger 初始化全局logger，必须在任何日志调用之前执行
func InitLogger(cfg *conf.LogConfig, appName string) {
	writer := &lumberjack.Logger{
		Filename:   cfg.FileName,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05.000"
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeFormat))
	}
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), level),
	}
	if cfg.Console {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), level))
	}

	l = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("app", appName)))
	s = l.Sugar()
}

// Pair 构造一个结构化日志字段
func Pair(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { get().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { get().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { get().Fatal(msg, fields...) }

func Debugf(format string, args ...interface{}) { getSugar().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { getSugar().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { getSugar().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { getSugar().Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) { getSugar().Fatalf(format, args...) }

func Sync() {
	if l != nil {
		_ = l.Sync()
	}
}

// 未初始化时退化为标准输出，避免单元测试里还要先初始化日志
func get() *zap.Logger {
	if l == nil {
		l, _ = zap.NewDevelopment(zap.AddCallerSkip(1))
	}
	return l
}

func getSugar() *zap.SugaredLogger {
	if s == nil {
		s = get().Sugar()
	}
	return s
}
