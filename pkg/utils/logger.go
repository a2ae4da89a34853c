package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера
type LogConfig struct {
	// Level: debug, info, warn, error, fatal (default: info)
	Level string

	// Format: json или text (default: json)
	Format string

	// Output: путь к файлу; пусто = stderr.
	// При ошибке открытия файла - fallback на stderr без паники.
	Output string

	// Development включает caller и stacktrace на warn+
	Development bool
}

// Logger - обёртка над zap с доменными хелперами
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт и настраивает структурированный логгер
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel преобразует строковый уровень в zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
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

// With возвращает дочерний логгер с постоянными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{
		Logger: child,
		sugar:  child.Sugar(),
	}
}

// WithComponent возвращает логгер компонента (orderbook, risk, orchestrator...)
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithToken возвращает логгер с привязкой к инструменту
func (l *Logger) WithToken(tokenID string) *Logger {
	return l.With(zap.String("token_id", tokenID))
}

// WithOrderID возвращает логгер с привязкой к ордеру
func (l *Logger) WithOrderID(orderID string) *Logger {
	return l.With(zap.String("order_id", orderID))
}

// WithDependency возвращает логгер с привязкой к внешней зависимости
func (l *Logger) WithDependency(name string) *Logger {
	return l.With(zap.String("dependency", name))
}

// Sugar возвращает sugared-логгер для printf-style вызовов
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер, создавая
// логгер по умолчанию при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - сокращение для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

// Debugf - printf-style через глобальный логгер
func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }

// Infof - printf-style через глобальный логгер
func Infof(template string, args ...interface{}) { GetGlobalLogger().sugar.Infof(template, args...) }

// Warnf - printf-style через глобальный логгер
func Warnf(template string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(template, args...) }

// Errorf - printf-style через глобальный логгер
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Доменные конструкторы полей
// ============================================================

// Token - поле идентификатора инструмента
func Token(tokenID string) zap.Field { return zap.String("token_id", tokenID) }

// OrderID - поле идентификатора ордера
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// PositionID - поле идентификатора позиции
func PositionID(id string) zap.Field { return zap.String("position_id", id) }

// Price - поле цены
func Price(price float64) zap.Field { return zap.Float64("price", price) }

// Amount - поле объёма в USDC
func Amount(amount float64) zap.Field { return zap.Float64("amount", amount) }

// Confidence - поле confidence решения
func Confidence(c float64) zap.Field { return zap.Float64("confidence", c) }

// PNL - поле прибыли/убытка
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }

// Side - поле направления сделки
func Side(side string) zap.Field { return zap.String("side", side) }

// State - поле состояния (ордера, breaker'а, цикла)
func State(state string) zap.Field { return zap.String("state", state) }

// Latency - поле латентности в миллисекундах
func Latency(d time.Duration) zap.Field {
	return zap.Float64("latency_ms", float64(d.Nanoseconds())/1e6)
}

// RiskScore - поле риск-оценки
func RiskScore(score float64) zap.Field { return zap.Float64("risk_score", score) }

// Component - поле компонента
func Component(name string) zap.Field { return zap.String("component", name) }

// Dependency - поле внешней зависимости
func Dependency(name string) zap.Field { return zap.String("dependency", name) }

// ============================================================
// Переэкспорт базовых конструкторов zap
// ============================================================

// String - переэкспорт zap.String
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int - переэкспорт zap.Int
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 - переэкспорт zap.Int64
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// Float64 - переэкспорт zap.Float64
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

// Bool - переэкспорт zap.Bool
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

// Err - переэкспорт zap.Error
func Err(err error) zap.Field { return zap.Error(err) }

// Any - переэкспорт zap.Any
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface конвертирует zap-поля в пары key/value
// для sugared-логгера
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		result = append(result, f.Key)
		switch {
		case f.Interface != nil:
			result = append(result, f.Interface)
		case f.String != "":
			result = append(result, f.String)
		default:
			result = append(result, f.Integer)
		}
	}
	return result
}
