// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the minimum level and the encoding.
type Options struct {
	Level       string // debug, info, warn or error
	Development bool   // console encoding instead of JSON
}

// New returns a logger writing errors to stderr and everything below to
// stdout.
func New(opts Options) (*zap.Logger, error) {
	return NewWithWriters(opts, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit destinations.
func NewWithWriters(opts Options, out, errOut io.Writer) (*zap.Logger, error) {
	minLevel := zapcore.InfoLevel
	if opts.Level != "" {
		if err := minLevel.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= minLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel && lvl >= minLevel
	})

	var encoder zapcore.Encoder
	if opts.Development {
		config := zap.NewDevelopmentEncoderConfig()
		config.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	} else {
		config := zap.NewProductionEncoderConfig()
		config.EncodeTime = zapcore.RFC3339TimeEncoder
		encoder = zapcore.NewJSONEncoder(config)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(errOut)), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), isInfoLevel),
	)

	options := []zap.Option{zap.AddCaller()}
	if opts.Development {
		options = append(options, zap.Development())
	}
	return zap.New(core, options...), nil
}
