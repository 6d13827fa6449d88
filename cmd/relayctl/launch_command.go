package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-relay/pkg/launcher"
)

func newLaunchCommand() *cobra.Command {
	var (
		timeout       time.Duration
		elevate       bool
		interpreter   string
		passwordStdin bool
		verbose       bool
	)
	cmd := &cobra.Command{
		Use:   "launch <path> [args...]",
		Short: "Run a helper process with a timeout and optional privilege elevation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
			}
			opts := []launcher.Option{
				launcher.WithInterpreter(interpreter),
				launcher.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
				launcher.WithLogger(log),
			}
			if passwordStdin {
				opts = append(opts, launcher.WithCredentialSource(stdinCredential(cmd.InOrStdin())))
			}
			res, err := launcher.New(opts...).Launch(cmd.Context(), args[0], args[1:], timeout, elevate)
			fmt.Fprintf(cmd.ErrOrStderr(), "launch %s: state=%s exit=%d", res.Handle.ID, res.State, res.ExitCode)
			if len(res.Signals) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), " signals=%s", strings.Join(res.Signals, ","))
			}
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if res.ExitCode > 0 {
				return fmt.Errorf("process exited with code %d", res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Terminate after this long; 0 returns once started")
	cmd.Flags().BoolVar(&elevate, "elevate", false, "Run through sudo; the password is sent on its stdin")
	cmd.Flags().StringVar(&interpreter, "interpreter", "", "Interpreter to run the script with, e.g. python3")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the elevation password from stdin instead of prompting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log escalation steps")
	return cmd
}

// stdinCredential reads one line from r; the trailing newline is not part of the secret.
func stdinCredential(r io.Reader) launcher.CredentialSource {
	return launcher.CredentialFunc(func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := bufio.NewReader(r).ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			return nil, errors.New("read credential: empty password on stdin")
		}
		return line, nil
	})
}
