package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/phase"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <project-id> <phase> <snapshot-number>",
		Short: "Restore a phase's artifacts from a snapshot",
		Long: `Restores every artifact captured in the snapshot as a new version.
Snapshots are never deleted; a rollback can itself be rolled back.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := phase.Tag(args[1])
			if !phase.Known(tag) {
				return errors.New(errors.ErrCodePhaseUnknown, fmt.Sprintf("unknown phase %q", args[1]))
			}
			number, err := strconv.Atoi(args[2])
			if err != nil {
				return errors.New(errors.ErrCodeSnapshotNotFound, fmt.Sprintf("invalid snapshot number %q", args[2]))
			}

			app, err := newApp()
			if err != nil {
				return err
			}

			restored, err := app.engine.RollbackPhase(cmd.Context(), args[0], tag, number)
			if err != nil {
				return err
			}

			return emit(restored, func() string {
				details := make([]string, 0, len(restored))
				for _, a := range restored {
					details = append(details, fmt.Sprintf("%s restored as v%d", a.Filename, a.Version))
				}
				headline := fmt.Sprintf("%s rolled back %s to snapshot %d",
					ux.StatusBadge("completed"), strings.ToLower(args[1]), number)
				return ux.Summary(headline, details...)
			})
		},
	}
}
