package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"covercat/internal/api"
)

func newStagesCommand(ctx *commandContext) *cobra.Command {
	var (
		check  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				registry := a.engine.Registry()
				infos := api.FromDescriptors(registry.Descriptors())
				var health []api.StageHealth
				if check {
					health = api.StageHealthSlice(registry.CheckAll(cmd.Context()))
				}
				if asJSON {
					if check {
						return writeJSON(cmd, health)
					}
					return writeJSON(cmd, infos)
				}

				headers := []string{"#", "Stage", "Inputs", "Produces", "Rate Limited", "Timeout", "Attempts"}
				if check {
					headers = append(headers, "Ready", "Detail")
				}
				rows := make([][]string, 0, len(infos))
				for i, info := range infos {
					limited := yesNo(info.RateLimited)
					if info.RateLimited && info.DelayMS > 0 {
						limited = fmt.Sprintf("yes (%dms)", info.DelayMS)
					}
					row := []string{
						strconv.Itoa(i + 1),
						info.Name,
						strings.Join(info.Inputs, ", "),
						strings.Join(info.Produces, ", "),
						limited,
						fmt.Sprintf("%ds", info.TimeoutSeconds),
						strconv.Itoa(info.MaxAttempts),
					}
					if check && i < len(health) {
						row = append(row, yesNo(health[i].Ready), health[i].Detail)
					}
					rows = append(rows, row)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Run stage health checks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
