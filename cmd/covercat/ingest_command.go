package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"covercat/internal/config"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Add cover images from a directory as new records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				dir := a.cfg.Paths.CoversDir
				if len(args) == 1 {
					expanded, err := config.ExpandPath(strings.TrimSpace(args[0]))
					if err != nil {
						return fmt.Errorf("resolve directory: %w", err)
					}
					dir = expanded
				}
				if dir == "" {
					return fmt.Errorf("no directory given and covers_dir is not configured")
				}

				result, err := a.ingester.Scan(cmd.Context(), dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added %d, duplicates %d, ignored %d\n", len(result.Added), len(result.Duplicates), len(result.Ignored))
				for _, id := range result.Added {
					fmt.Fprintf(out, "  + %s\n", id)
				}
				if !watch {
					return nil
				}

				watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)
				return a.ingester.Watch(watchCtx, dir, func(id string) {
					fmt.Fprintf(out, "  + %s\n", id)
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and ingest new files as they appear")
	return cmd
}
