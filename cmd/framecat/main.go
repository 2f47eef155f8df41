// Command framecat exchanges length-prefixed messages over TCP.
//
// "framecat serve" runs an echo server; "framecat send" sends lines to it and
// prints what comes back. Both sides must agree on the wire mode and codec.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Zereker/framing"
)

type rootOptions struct {
	configPath     string
	addr           string
	mode           string
	codec          string
	maxMessageSize int
	logLevel       string

	cfg    config
	logger zlogger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "framecat",
		Short: "Send and echo length-prefixed messages over TCP",
		Long: `framecat speaks the framing wire protocol.

Modes:
  async         4-byte big-endian length before every message (default)
  async-framed  length word split into an 8-bit header and 24-bit body length
  sync          no prefix; requires the self-delimiting json codec

Settings come from the TOML file given with --config; flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML config file")
	flags.StringVarP(&opts.addr, "addr", "a", "", "TCP address to listen on or dial")
	flags.StringVarP(&opts.mode, "mode", "m", "", "Wire mode: async, async-framed or sync")
	flags.StringVar(&opts.codec, "codec", "", "Message codec: protobuf or json")
	flags.IntVar(&opts.maxMessageSize, "max-message-size", 0, "Largest accepted message in bytes")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSendCommand(opts))

	return cmd
}

// resolve builds the effective config: defaults, then the config file, then
// flags the user set explicitly.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	cfg := defaultConfig()

	if o.configPath != "" {
		if err := loadConfig(o.configPath, &cfg); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = o.addr
	}
	if flags.Changed("mode") {
		mode, err := framing.ParseMode(o.mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if flags.Changed("codec") {
		cfg.Codec = o.codec
	}
	if flags.Changed("max-message-size") {
		cfg.MaxMessageSize = o.maxMessageSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
