package obs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the logger flavour. Env "prod" produces JSON, anything
// else a console encoder.
type LogConfig struct {
	Env         string
	Level       string
	ServiceName string
	Version     string
}

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// InitLogger builds the shared logger. Later calls replace it.
func InitLogger(cfg LogConfig) *zap.Logger {
	l := buildLogger(cfg)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return l
}

// SetLogger installs l as the shared logger and returns a function that
// restores the previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// L returns the shared logger, building a development one on first use.
func L() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	return InitLogger(LogConfig{Env: "dev", Level: "info"})
}

// SyncLogger flushes buffered entries.
func SyncLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

type loggerCtxKey struct{}

type scopedLogger struct {
	l    *zap.Logger
	keys map[string]struct{}
}

// ToContext stores a request-scoped logger.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, scopedLogger{l: l})
}

// With stores From(ctx) extended with fields. The field keys are
// remembered so HasField can report them.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	parent, _ := ctx.Value(loggerCtxKey{}).(scopedLogger)
	keys := make(map[string]struct{}, len(parent.keys)+len(fields))
	for k := range parent.keys {
		keys[k] = struct{}{}
	}
	for _, f := range fields {
		keys[f.Key] = struct{}{}
	}
	return context.WithValue(ctx, loggerCtxKey{}, scopedLogger{l: From(ctx).With(fields...), keys: keys})
}

// HasField reports whether the request-scoped logger already carries key.
func HasField(ctx context.Context, key string) bool {
	if ctx == nil {
		return false
	}
	s, _ := ctx.Value(loggerCtxKey{}).(scopedLogger)
	_, ok := s.keys[key]
	return ok
}

// From returns the request-scoped logger or the shared one.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if s, ok := ctx.Value(loggerCtxKey{}).(scopedLogger); ok && s.l != nil {
			return s.l
		}
	}
	return L()
}

func buildLogger(cfg LogConfig) *zap.Logger {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Env, "prod") {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Common field constructors.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func UserID(v string) zap.Field    { return zap.String("user_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func DurationMs(d time.Duration) zap.Field {
	return zap.Float64("duration_ms", float64(d.Microseconds())/1000)
}
