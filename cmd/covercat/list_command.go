package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/records"
	"covercat/internal/textutil"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		req    api.ListRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records, optionally filtered by stage and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Status = strings.ToLower(strings.TrimSpace(req.Status))
			if err := api.Validate(req); err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				recs, err := a.review.List(cmd.Context(), req.Filter())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromRecordList(recs))
				}
				printRecordList(cmd, recs)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.Stage, "stage", "s", "", "Only records whose current stage is this (or done)")
	cmd.Flags().StringVar(&req.Status, "status", "", "Only records with this status")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 0, "Maximum records to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRecordList(cmd *cobra.Command, recs []*records.Record) {
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No matching records")
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		note := rec.ReviewReason
		if note == "" {
			note = rec.LastError
		}
		rows = append(rows, []string{
			rec.ID,
			rec.CurrentStage,
			string(rec.Status),
			textutil.Truncate(rec.Attributes[records.AttrTitle], 40),
			textutil.Truncate(note, 60),
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Record", "Stage", "Status", "Title", "Note", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}
