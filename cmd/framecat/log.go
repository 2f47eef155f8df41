package main

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Zereker/framing"
)

// zlogger adapts a zerolog.Logger to framing.Logger.
type zlogger struct {
	logger zerolog.Logger
}

var _ framing.Logger = zlogger{}

func newLogger(out io.Writer, level string) (zlogger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zlogger{}, errors.Wrapf(err, "parse log level %q", level)
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "framecat").Logger()
	return zlogger{logger: logger}, nil
}

func (l zlogger) Debug(msg string, args ...any) { l.logger.Debug().Fields(args).Msg(msg) }
func (l zlogger) Info(msg string, args ...any)  { l.logger.Info().Fields(args).Msg(msg) }
func (l zlogger) Warn(msg string, args ...any)  { l.logger.Warn().Fields(args).Msg(msg) }
func (l zlogger) Error(msg string, args ...any) { l.logger.Error().Fields(args).Msg(msg) }
