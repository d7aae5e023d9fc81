package config

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger writing to stderr, which stays free of protocol
// traffic. Terminals get console output, everything else JSON lines. verbose
// forces the debug level.
func NewLogger(level string, verbose bool) (*zap.Logger, error) {
	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return newLogger(zapcore.Lock(os.Stderr), isTerminal, level, verbose)
}

func newLogger(out zapcore.WriteSyncer, console bool, level string, verbose bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if len(level) != 0 {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	var encoder zapcore.Encoder
	if console {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	return zap.New(zapcore.NewCore(encoder, out, lvl)), nil
}
