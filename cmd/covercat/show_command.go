package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/records"
	"covercat/internal/textutil"
	"covercat/internal/workflow"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a record with its attributes and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				id := args[0]
				rec, err := a.store.Get(cmd.Context(), id)
				if err != nil {
					return workflow.TranslateStoreError(id, err)
				}
				events, err := a.store.Events(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.RecordResponse{Record: api.FromRecord(rec), Events: api.FromEvents(events)})
				}
				printRecord(cmd, rec, events)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRecord(cmd *cobra.Command, rec *records.Record, events []records.Event) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Record:   %s\n", rec.ID)
	fmt.Fprintf(out, "Stage:    %s\n", rec.CurrentStage)
	fmt.Fprintf(out, "Status:   %s\n", rec.Status)
	fmt.Fprintf(out, "Review:   %s\n", yesNo(rec.Status == records.StatusReview))
	if rec.ReviewReason != "" {
		fmt.Fprintf(out, "Reason:   %s\n", rec.ReviewReason)
	}
	if rec.LastError != "" {
		fmt.Fprintf(out, "Error:    %s\n", rec.LastError)
	}
	if len(rec.Attempts) > 0 {
		stages := make([]string, 0, len(rec.Attempts))
		for name := range rec.Attempts {
			stages = append(stages, name)
		}
		sort.Strings(stages)
		parts := make([]string, 0, len(stages))
		for _, name := range stages {
			parts = append(parts, fmt.Sprintf("%s=%d", name, rec.Attempts[name]))
		}
		fmt.Fprintf(out, "Attempts: %s\n", strings.Join(parts, " "))
	}

	if keys := rec.Attributes.Keys(); len(keys) > 0 {
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, textutil.Truncate(rec.Attributes[key], 80)})
		}
		fmt.Fprint(out, renderTable([]string{"Attribute", "Value"}, rows, nil))
	}

	if len(events) > 0 {
		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []string{
				ev.At.Local().Format("2006-01-02 15:04:05"),
				ev.Type,
				ev.Stage,
				textutil.Truncate(ev.Message, 80),
			})
		}
		fmt.Fprint(out, renderTable([]string{"When", "Event", "Stage", "Message"}, rows, nil))
	}
}
