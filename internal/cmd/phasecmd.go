package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/phase"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newPhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Execute and inspect workflow phases",
	}
	cmd.AddCommand(newPhaseRunCmd())
	cmd.AddCommand(newPhaseStatusCmd())
	return cmd
}

func newPhaseRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <project-id>",
		Short: "Execute the project's current phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			result, err := app.engine.ExecutePhase(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if emitErr := emit(result, func() string {
				headline := ux.StatusBadge("completed") + " " + result.Message
				if !result.Success {
					headline = ux.StatusBadge("failed") + " " + result.Message
				}
				details := make([]string, 0, len(result.Artifacts))
				for _, a := range result.Artifacts {
					details = append(details, fmt.Sprintf("%s (v%d, %s)", a.Filename, a.Version, a.ContentHash[:12]))
				}
				return ux.Summary(headline, details...)
			}); emitErr != nil {
				return emitErr
			}

			if !result.Success {
				return errors.New(errors.ErrCodePhaseExecFailed, result.Message)
			}
			return nil
		},
	}
}

func newPhaseStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show phase progress, gates, and execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}

			project, err := store.GetProject(args[0])
			if err != nil {
				return err
			}
			records, err := store.ExecutionRecords(project.ID)
			if err != nil {
				return err
			}
			gates, err := store.GatesForPhase(project.ID, project.CurrentPhase)
			if err != nil {
				return err
			}

			status := struct {
				Project *phase.Project          `json:"project"`
				Gates   []phase.ApprovalGate    `json:"gates,omitempty"`
				Records []phase.ExecutionRecord `json:"records,omitempty"`
			}{project, gates, records}

			return emit(status, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "%s (%s)\n\n", project.Name, project.ID)

				completed := make(map[phase.Tag]bool)
				for _, t := range project.CompletedPhases {
					completed[t] = true
				}
				for _, tag := range phase.Phases {
					b.WriteString(ux.PhaseLine(string(tag), tag == project.CurrentPhase, completed[tag]))
					b.WriteString("\n")
				}

				if project.Blocked {
					fmt.Fprintf(&b, "\n%s %s\n", ux.StatusBadge("blocked"), project.BlockedReason)
				}
				for _, g := range gates {
					fmt.Fprintf(&b, "\ngate %s: %s", g.GateName, ux.StatusBadge(g.Status))
				}
				return strings.TrimRight(b.String(), "\n")
			})
		},
		Args: cobra.ExactArgs(1),
	}
}
