package main

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Zereker/framing"
)

const (
	codecProtobuf = "protobuf"
	codecJSON     = "json"
)

type config struct {
	Addr           string
	Mode           framing.Mode
	Codec          string
	MaxMessageSize int
	IdleTimeout    time.Duration
	MetricsAddr    string
	LogLevel       string
}

type fileConfig struct {
	Addr           string `toml:"addr"`
	Mode           string `toml:"mode"`
	Codec          string `toml:"codec"`
	MaxMessageSize int    `toml:"max_message_size"`
	IdleTimeout    string `toml:"idle_timeout"`
	MetricsAddr    string `toml:"metrics_addr"`
	LogLevel       string `toml:"log_level"`
}

func defaultConfig() config {
	return config{
		Addr:        "127.0.0.1:7070",
		Mode:        framing.ModeAsync,
		Codec:       codecProtobuf,
		IdleTimeout: time.Minute,
		LogLevel:    "info",
	}
}

// loadConfig overlays the keys set in the TOML file at path onto cfg.
func loadConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}

	if meta.IsDefined("mode") {
		mode, err := framing.ParseMode(strings.TrimSpace(raw.Mode))
		if err != nil {
			return errors.Wrap(err, "parse mode")
		}
		cfg.Mode = mode
	}

	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}

	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return errors.Wrap(err, "parse idle_timeout")
		}
		cfg.IdleTimeout = d
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return nil
}

func (c config) validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}

	switch c.Codec {
	case codecProtobuf, codecJSON:
	default:
		return errors.Errorf("unknown codec %q", c.Codec)
	}

	// Protobuf messages do not delimit themselves and frames are built from
	// protobuf headers and bodies.
	if c.Mode == framing.ModeSync && c.Codec != codecJSON {
		return errors.New("sync mode requires the json codec")
	}
	if c.Mode == framing.ModeAsyncFramed && c.Codec != codecProtobuf {
		return errors.New("async-framed mode requires the protobuf codec")
	}

	if c.MaxMessageSize < 0 {
		return errors.Errorf("max_message_size must not be negative, got %d", c.MaxMessageSize)
	}

	return nil
}

// options returns the transport options for cfg. A nil registerer disables
// metrics.
func (c config) options(logger framing.Logger, registerer prometheus.Registerer) []framing.Option {
	opts := []framing.Option{
		framing.ModeOption(c.Mode),
		framing.MessageMaxSize(c.MaxMessageSize),
		framing.IdleTimeoutOption(c.IdleTimeout),
		framing.LoggerOption(logger),
	}
	if registerer != nil {
		opts = append(opts, framing.PrometheusOption(registerer, "framecat", ""))
	}
	return opts
}
