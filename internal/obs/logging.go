// Package obs contains observability utilities such as logging and tracing.
package obs

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global structured logger used by the service.
//
// It is a no-op logger until InitLogger is called so packages can log from
// tests without setup.
var Logger = zap.NewNop().Sugar()

// InitLogger initializes the global Logger with a JSON encoder writing to
// stdout at the given level. Unknown levels fall back to info.
func InitLogger(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	Logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()
}

// SetLogger replaces the global Logger. Tests use it with an observer core.
func SetLogger(l *zap.Logger) {
	Logger = l.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger.Sync()
}
