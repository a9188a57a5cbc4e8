package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"covercat/internal/daemon"
	"covercat/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and optionally watch the covers directory) until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				d, err := daemon.New(a.cfg, daemon.Deps{
					Store:       a.store,
					Engine:      a.engine,
					Coordinator: a.coordinator,
					Review:      a.review,
					Ingester:    a.ingester,
					Metrics:     a.metrics,
					Notifier:    a.notifier,
				}, a.logger, daemon.WithWatch(watch))
				if err != nil {
					return fmt.Errorf("create daemon: %w", err)
				}
				if err := d.Start(signalCtx); err != nil {
					return err
				}
				defer d.Stop()

				fmt.Fprintf(cmd.OutOrStdout(), "covercat listening on %s\n", d.Addr())
				<-signalCtx.Done()
				a.logger.Info("covercat daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Ingest new files from covers_dir while serving")
	return cmd
}
