package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-relay/pkg/config"
	"github.com/joeydtaylor/steeze-relay/pkg/relayfx"
)

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the loops and launches declared in the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				relayfx.Module(relayfx.Options{ManifestPath: *configFlag}),
				fx.NopLogger,
			)
			return runApp(cmd, app)
		},
	}
}

// runApp starts app and blocks until the command context ends or a loop
// failure requests shutdown.
func runApp(cmd *cobra.Command, app *fx.App) error {
	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	code := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		code = sig.ExitCode
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("relay exited with code %d", code)
	}
	return nil
}

func newCheckCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the manifest and print what it declares",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ManifestPath(*configFlag)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", path)
			fmt.Fprintf(out, "queues=%d servers=%d bridges=%d publishers=%d subscribers=%d launches=%d\n",
				len(cfg.Queues), len(cfg.Servers), len(cfg.Bridges), len(cfg.Publishers), len(cfg.Subscribers), len(cfg.Launches))
			return nil
		},
	}
}
