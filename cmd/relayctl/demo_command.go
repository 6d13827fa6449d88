package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-relay/pkg/codec"
	"github.com/joeydtaylor/steeze-relay/pkg/config"
	"github.com/joeydtaylor/steeze-relay/pkg/relayfx"
	"github.com/joeydtaylor/steeze-relay/pkg/transport"
)

type demoOptions struct {
	port     int
	inMemory bool
	count    int
	logDir   string
	wait     time.Duration
}

func newDemoCommand() *cobra.Command {
	o := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Feed {\"test\": i} through a request bridge to an ack server and print the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().IntVar(&o.port, "port", 5555, "TCP port the ack server binds")
	cmd.Flags().BoolVar(&o.inMemory, "in-memory", false, "Use an in-process transport instead of TCP")
	cmd.Flags().IntVar(&o.count, "count", 10, "Number of requests to feed")
	cmd.Flags().StringVar(&o.logDir, "log-dir", "log", "Directory for the shared relay log")
	cmd.Flags().DurationVar(&o.wait, "reply-timeout", 5*time.Second, "How long to wait for each reply")
	return cmd
}

func demoConfig(o demoOptions) *config.Config {
	bind, dial := transport.BindTCP(o.port), transport.ConnectTCP("", o.port)
	if o.inMemory {
		bind, dial = "mem://demo", "mem://demo"
	}
	return &config.Config{
		Log:    config.Log{Dir: o.logDir},
		Queues: []config.Queue{{Name: "requests"}, {Name: "replies"}},
		Servers: []config.Server{{
			Loop:    config.Loop{Name: "ack", Endpoint: bind},
			Handler: "ack",
		}},
		Bridges: []config.Bridge{{
			Loop:     config.Loop{Name: "feed", Endpoint: dial},
			Inbound:  "requests",
			Outbound: "replies",
		}},
	}
}

// runDemo waits for each reply before sending the next request, so nothing
// is coalesced and every request gets an answer.
func runDemo(ctx context.Context, out io.Writer, o demoOptions) error {
	var rt *relayfx.Runtime
	app := fx.New(
		relayfx.Module(relayfx.Options{Config: demoConfig(o)}),
		fx.Populate(&rt),
		fx.NopLogger,
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	in, replies := rt.Queues.Get("requests"), rt.Queues.Get("replies")
	for i := 0; i < o.count; i++ {
		if err := in.Put(ctx, codec.Message{"test": i}); err != nil {
			return err
		}
		waitCtx, cancel := context.WithTimeout(ctx, o.wait)
		reply, err := replies.Get(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("request %d: no reply: %w", i, err)
		}
		b, err := codec.Encode(codec.JSON, reply)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
	}
	return nil
}
