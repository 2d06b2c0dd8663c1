// Package logging builds the zap loggers used by the command line tool.
package logging

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encodings accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logging options.
type Config struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

func (c Config) zapConfig() zap.Config {
	var zc zap.Config
	if c.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if c.Format != "" {
		zc.Encoding = c.Format
	}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return zc
}

// New delivers a logger writing to w. Debug selects the development settings, including the debug level.
func New(cfg Config, w io.Writer) (*zap.Logger, error) {
	zc := cfg.zapConfig()
	var enc zapcore.Encoder
	switch zc.Encoding {
	case FormatConsole:
		enc = zapcore.NewConsoleEncoder(zc.EncoderConfig)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(zc.EncoderConfig)
	default:
		return nil, errors.Errorf("unknown log format %q", zc.Encoding)
	}
	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Debug {
		opts = append(opts, zap.AddCaller(), zap.Development())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zc.Level), opts...), nil
}
