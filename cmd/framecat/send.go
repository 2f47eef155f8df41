package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSendCommand(root *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send [line...]",
		Short: "Send lines and print the replies",
		Long: `Send each argument as one message, or each line of standard input when no
arguments are given, then print every reply until the server closes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if len(lines) == 0 {
				var err error
				if lines, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			return runSend(ctx, root.cfg, root.logger, lines, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Give up after this long (0 waits forever)")

	return cmd
}

func runSend(ctx context.Context, cfg config, logger zlogger, lines []string, out io.Writer) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", cfg.Addr)
	}
	defer conn.Close()

	logger.Debug("connected", "addr", cfg.Addr, "lines", len(lines))

	return newEndpoint(cfg).send(ctx, conn, cfg.options(logger, nil), lines, out)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	return lines, nil
}
