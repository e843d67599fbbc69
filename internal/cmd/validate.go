package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <project-id>",
		Short: "Validate the current phase's artifacts, auto-remedying failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			run, err := app.engine.ValidatePhase(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if emitErr := emit(run, func() string {
				if run.Passed {
					line := ux.StatusBadge("passed") + " validation passed"
					if run.WarningCount > 0 {
						line += fmt.Sprintf(" (%d warnings)", run.WarningCount)
					}
					return line
				}
				return ux.Summary(ux.StatusBadge("failed")+" validation failed", run.FailureReasons...)
			}); emitErr != nil {
				return emitErr
			}

			if !run.Passed {
				return errors.New(errors.ErrCodePhaseExecFailed,
					"validation failed: "+strings.Join(run.FailureReasons, "; "))
			}
			return nil
		},
	}
}
