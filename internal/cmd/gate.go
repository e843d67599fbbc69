package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/phase"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Approve or reject blocking approval gates",
	}
	cmd.AddCommand(newGateDecisionCmd("approve", "Approve a gate so the phase can complete"))
	cmd.AddCommand(newGateDecisionCmd("reject", "Reject a gate and send the phase back for rework"))
	return cmd
}

func newGateDecisionCmd(decision, short string) *cobra.Command {
	var approver, notes string

	cmd := &cobra.Command{
		Use:   decision + " <project-id> <gate-name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			gate, err := app.engine.ApproveGate(cmd.Context(), args[0], args[1], decision, approver, notes)
			if err != nil {
				return err
			}

			return emit(gate, func() string {
				line := fmt.Sprintf("gate %s: %s", gate.GateName, ux.StatusBadge(gate.Status))
				if gate.Status == phase.GateRejected {
					return ux.Summary(line, "phase returned for rework")
				}
				return line
			})
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "who made the decision")
	cmd.Flags().StringVar(&notes, "notes", "", "decision notes recorded on the gate")
	cmd.MarkFlagRequired("approver")
	return cmd
}
