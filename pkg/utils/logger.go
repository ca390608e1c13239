package utils

// logger.go - настройка логирования
//
// Назначение:
// Инициализация и настройка структурированного логирования поверх
// go.uber.org/zap: выбор формата (json/text), уровня, файла вывода, плюс
// набор именованных конструкторов полей общих для всего проекта
// (exchange, symbol, pair_id, spread, pnl, ...) так, чтобы все пакеты
// логировали одинаковые ключи.

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures InitLogger. Zero value is a sane default: info
// level, JSON format, stderr output.
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal, default info
	Format      string // json|text, default json
	Development bool   // enables zap's development encoder (stack traces, caller)
	Output      string // file path, default stderr. Falls back to stderr if unopenable.
}

// Logger wraps a *zap.Logger with a cached sugared logger and the
// project's field-helper methods.
type Logger struct {
	Logger *zap.Logger
	sugar  *zap.SugaredLogger
}

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

func resolveSink(output string) zapcore.WriteSyncer {
	if output == "" {
		return zapcore.AddSync(os.Stderr)
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// InitLogger builds a Logger from cfg. It never returns nil and never
// fails: an unopenable Output falls back to stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, resolveSink(cfg.Output), level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// Sugar returns the underlying sugared logger for printf-style calls.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With returns a child Logger with the given fields attached to every
// subsequent entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent tags log entries with the emitting component/package name.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithExchange tags log entries with a venue/exchange id.
func (l *Logger) WithExchange(exchange string) *Logger {
	return l.With(Exchange(exchange))
}

// WithSymbol tags log entries with a trading symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID tags log entries with a numeric pair identifier.
func (l *Logger) WithPairID(pairID int) *Logger {
	return l.With(PairID(pairID))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.Logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.Logger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.Logger.Fatal(msg, fields...) }
func (l *Logger) Sync() error                           { return l.Logger.Sync() }

// ============================================================
// Global logger
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, creating a default one
// on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger builds a Logger from cfg, installs it as the global
// logger, and returns it.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { GetGlobalLogger().Fatal(msg, fields...) }

func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { GetGlobalLogger().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Field constructors
//
// One named constructor per key the pipeline logs repeatedly, so every
// package writes the same field name for the same concept instead of
// each call site inventing its own.
// ============================================================

func Exchange(v string) zap.Field    { return zap.String("exchange", v) }
func Symbol(v string) zap.Field      { return zap.String("symbol", v) }
func PairID(v int) zap.Field         { return zap.Int("pair_id", v) }
func OrderID(v string) zap.Field     { return zap.String("order_id", v) }
func Price(v float64) zap.Field      { return zap.Float64("price", v) }
func Volume(v float64) zap.Field     { return zap.Float64("volume", v) }
func Spread(v float64) zap.Field     { return zap.Float64("spread", v) }
func PNL(v float64) zap.Field        { return zap.Float64("pnl", v) }
func Side(v string) zap.Field        { return zap.String("side", v) }
func State(v string) zap.Field       { return zap.String("state", v) }
func Latency(v float64) zap.Field    { return zap.Float64("latency_ms", v) }
func RequestID(v string) zap.Field   { return zap.String("request_id", v) }
func UserID(v int) zap.Field         { return zap.Int("user_id", v) }
func Component(v string) zap.Field   { return zap.String("component", v) }

// Re-exported zap field constructors so callers only need to import this
// package, not zap itself, for the common cases.
func String(key, value string) zap.Field          { return zap.String(key, value) }
func Int(key string, value int) zap.Field          { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field      { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field  { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field        { return zap.Bool(key, value) }
func Err(err error) zap.Field                      { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field  { return zap.Any(key, value) }

// fieldsToInterface flattens zap fields into a key/value slice suitable
// for the sugared logger's variadic With-style calls, preserving the
// input order (a single shared map would scramble it).
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
