package logger

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger replaces the global zap logger. Output goes to logPath when set
// and to stderr otherwise; stdout stays free for the MCP stdio transport.
func InitLogger(debug bool, logPath string) error {
	var zc zap.Config
	if debug {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	out := "stderr"
	if logPath != "" {
		out = logPath
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{out}

	l, err := zc.Build()
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}
	zap.ReplaceGlobals(l)
	return nil
}

// Sync flushes buffered log entries. Errors are ignored because syncing
// stderr fails on some platforms.
func Sync() {
	_ = zap.L().Sync()
}
