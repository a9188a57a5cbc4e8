package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/textutil"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"queue"},
		Short:   "Summarize records by stage and status and list the review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				snap, err := a.review.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromSnapshot(snap))
				}
				printSnapshot(cmd, a.engine.Registry().Names(), snap)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printSnapshot(cmd *cobra.Command, stageOrder []string, snap review.Snapshot) {
	out := cmd.OutOrStdout()
	if snap.Total == 0 {
		fmt.Fprintln(out, "No records")
		return
	}
	fmt.Fprint(out, renderTable(
		append([]string{"Stage"}, statusHeaders()...),
		buildCountRows(append(stageOrder, records.StageDone), snap),
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintf(out, "Total: %d\n", snap.Total)

	if len(snap.Review) == 0 {
		fmt.Fprintln(out, "Review queue is empty")
		return
	}
	rows := make([][]string, 0, len(snap.Review))
	for _, item := range snap.Review {
		rows = append(rows, []string{
			item.RecordID,
			item.Stage,
			strconv.Itoa(item.Attempts),
			item.Since.Local().Format("2006-01-02 15:04"),
			textutil.Truncate(item.Reason, 60),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Review", "Stage", "Attempts", "Since", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func statusHeaders() []string {
	statuses := records.AllStatuses()
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

// buildCountRows lays counts out one row per stage in pipeline order,
// skipping stages with no records.
func buildCountRows(stageOrder []string, snap review.Snapshot) [][]string {
	grid := make(map[string]map[records.Status]int)
	for _, c := range snap.Counts {
		if grid[c.Stage] == nil {
			grid[c.Stage] = make(map[records.Status]int)
		}
		grid[c.Stage][c.Status] += c.Count
	}
	rows := make([][]string, 0, len(grid))
	for _, name := range stageOrder {
		byStatus, ok := grid[name]
		if !ok {
			continue
		}
		row := []string{name}
		for _, status := range records.AllStatuses() {
			row = append(row, strconv.Itoa(byStatus[status]))
		}
		rows = append(rows, row)
	}
	return rows
}
