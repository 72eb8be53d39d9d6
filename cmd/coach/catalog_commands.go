package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExerciseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exercise <id>",
		Short: "Show a catalog exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.catalogClient(cmd.Context())
			if err != nil {
				return err
			}
			exercise, err := client.GetExercise(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", exercise.Name, exercise.ID)
			if exercise.Description != "" {
				fmt.Fprintf(out, "  %s\n", exercise.Description)
			}
			fmt.Fprintf(out, "  %d sets x %d reps\n", exercise.Sets, exercise.Reps)
			phases := make([]string, len(exercise.Phases))
			for i, p := range exercise.Phases {
				phases[i] = string(p)
			}
			fmt.Fprintf(out, "  phases: %s\n", strings.Join(phases, " > "))
			if exercise.Focus != "" {
				fmt.Fprintf(out, "  focus: %s\n", exercise.Focus)
			}
			return nil
		},
	}
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show progress and achievements",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.catalogClient(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := client.GetProgressSummary(cmd.Context())
			if err != nil {
				return err
			}
			achievements, err := client.ListAchievements(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"progress":     summary,
					"achievements": achievements,
				})
			}

			fmt.Fprintf(out, "Sessions: %d\n", summary.TotalSessions)
			fmt.Fprintf(out, "Reps:     %d\n", summary.TotalReps)
			fmt.Fprintf(out, "Average:  %.1f\n", summary.AverageScore)
			fmt.Fprintf(out, "Minutes:  %.1f\n", summary.TotalMinutes)
			for _, a := range achievements {
				fmt.Fprintf(out, "  * %s: %s\n", a.Name, a.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
