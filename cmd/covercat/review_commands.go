package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"covercat/internal/api"
	"covercat/internal/records"
)

func newReviewCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newApproveCommand(ctx),
		newRetryCommand(ctx),
		newMarkReviewCommand(ctx),
		newEditCommand(ctx),
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Accept a record in review and advance it one stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseApproveSets(sets)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				rec, err := a.review.Approve(cmd.Context(), args[0], req.Corrected())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s; now at %s (%s)\n", rec.ID, rec.CurrentStage, rec.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Corrected attribute as key=value (repeatable)")
	return cmd
}

func parseApproveSets(sets []string) (api.ApproveRequest, error) {
	attrs, err := parseSets(sets)
	if err != nil {
		return api.ApproveRequest{}, err
	}
	req := api.ApproveRequest{Attributes: attrs}
	return req, api.Validate(req)
}

// parseSets turns repeated key=value flags into a map; nil when empty.
func parseSets(sets []string) (map[string]string, error) {
	var attrs map[string]string
	for _, raw := range sets {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", raw)
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[key] = value
	}
	return attrs, nil
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Overwrite stage outputs without moving the record",
		Long: "Edit replaces attributes produced by stages (title, team, imdb_id, plot_es, ...) " +
			"while keeping the record's stage and status. Records in review stay in review.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseSets(sets)
			if err != nil {
				return err
			}
			if err := api.Validate(api.EditRequest{Attributes: attrs}); err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				rec, err := a.review.Edit(cmd.Context(), args[0], records.Attributes(attrs))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s on %s (still %s at %s)\n",
					strings.Join(records.Attributes(attrs).Keys(), ", "), rec.ID, rec.Status, rec.CurrentStage)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Attribute as key=value (repeatable, at least one)")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id> <stage>",
		Short: "Rewind a record to a stage with a fresh attempt count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				rec, err := a.review.RetryFrom(cmd.Context(), args[0], strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %s rewound to %s\n", rec.ID, rec.CurrentStage)
				return nil
			})
		},
	}
}

func newMarkReviewCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "mark-review <id>",
		Short: "Move a record into the review queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.Validate(api.ReviewRequest{Reason: reason}); err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				rec, err := a.review.MarkReview(cmd.Context(), args[0], strings.TrimSpace(reason))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %s flagged for review at %s: %s\n", rec.ID, rec.CurrentStage, reasonOrDefault(rec))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the record needs review")
	return cmd
}

func reasonOrDefault(rec *records.Record) string {
	if rec.ReviewReason == "" {
		return records.DefaultReviewReason
	}
	return rec.ReviewReason
}
