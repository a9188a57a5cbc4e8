package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/notifications"
	"covercat/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		stageName string
		all       bool
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run [id...]",
		Short: "Run the current (or named) stage for records",
		Long: "Run executes one stage per record. With several ids, or --all, records run " +
			"in order and rate-limited stages pause between items.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass record ids or --all")
			}
			return ctx.withApp(cmd, func(a *app) error {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				target := strings.TrimSpace(stageName)
				started := time.Now()

				var result workflow.BatchResult
				switch {
				case all:
					n := limit
					if n <= 0 {
						n = a.cfg.Workflow.BatchDefaultLimit
					}
					var err error
					if result, err = a.coordinator.RunPending(runCtx, n, target); err != nil {
						return err
					}
				case len(args) == 1:
					outcome, err := a.coordinator.RunOne(runCtx, args[0], target)
					if err != nil {
						return err
					}
					result.Items = []workflow.BatchItem{{RecordID: args[0], Outcome: outcome}}
				default:
					result = a.coordinator.RunBatch(runCtx, args, target)
				}
				if all || len(args) > 1 {
					if err := a.notifier.Publish(cmd.Context(), notifications.EventBatchCompleted, result.Payload(time.Since(started))); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: batch notification failed: %v\n", err)
					}
				}

				if asJSON {
					return writeJSON(cmd, api.FromBatch(result))
				}
				printBatch(cmd, result)
				if failed := result.Failed(); failed > 0 {
					return fmt.Errorf("%d of %d runs failed", failed, len(result.Items))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&stageName, "stage", "s", "", "Stage to run instead of each record's current stage")
	cmd.Flags().BoolVar(&all, "all", false, "Run every runnable record")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum records selected by --all (defaults to workflow.batch_default_limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func printBatch(cmd *cobra.Command, result workflow.BatchResult) {
	out := cmd.OutOrStdout()
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "Nothing to run")
		return
	}
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		rows = append(rows, []string{
			item.RecordID,
			item.Outcome.Stage,
			runResult(item),
			item.Outcome.AdvancedTo,
			strconv.Itoa(item.Outcome.Attempts),
			runMessage(item),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Record", "Stage", "Result", "Now At", "Attempts", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	if result.Stopped {
		fmt.Fprintf(out, "Stopped after %d item(s)\n", len(result.Items))
	}
}

func runResult(item workflow.BatchItem) string {
	switch {
	case item.Err != nil:
		return "error"
	case item.Outcome.Noop:
		return "done"
	case item.Outcome.Escalated():
		return "review"
	default:
		return string(item.Outcome.Status)
	}
}

func runMessage(item workflow.BatchItem) string {
	if item.Err != nil {
		return item.Err.Error()
	}
	return item.Outcome.Message
}
