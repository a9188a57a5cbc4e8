package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/config"
	"covercat/internal/preflight"
	"covercat/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show environment checks, daemon state, and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				counts, err := a.store.Counts(cmd.Context())
				if err != nil {
					return err
				}
				status := api.DaemonStatus{
					Running:      daemonRunning(a.cfg),
					PID:          os.Getpid(),
					DatabasePath: a.store.Path(),
					LockFilePath: a.cfg.DaemonLockPath(),
					Counts:       api.MergeCounts(counts),
					Checks:       api.FromChecks(preflight.RunAll(cmd.Context(), a.cfg)),
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// daemonRunning reports whether another process holds the serve lock.
func daemonRunning(cfg *config.Config) bool {
	fl := flock.New(cfg.DaemonLockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = fl.Unlock()
		return false
	}
	return true
}

func printStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon:   %s\n", runningLabel(status.Running))
	fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)

	rows := make([][]string, 0, len(status.Checks))
	for _, check := range status.Checks {
		result := "ok"
		if !check.Passed {
			result = "FAIL"
		}
		rows = append(rows, []string{check.Name, result, check.Detail})
	}
	fmt.Fprint(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))

	countRows := make([][]string, 0, len(status.Counts))
	for _, s := range records.AllStatuses() {
		countRows = append(countRows, []string{string(s), strconv.Itoa(status.Counts[string(s)])})
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Records"}, countRows, []columnAlignment{alignLeft, alignRight}))
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
