package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/phase"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var name, brief string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project starting at the intake phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}

			p := &phase.Project{Name: name, Brief: brief}
			if err := store.CreateProject(p); err != nil {
				return err
			}

			return emit(p, func() string {
				return ux.Summary(fmt.Sprintf("created project %s", p.ID),
					"name: "+p.Name,
					"phase: "+string(p.CurrentPhase))
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&brief, "brief", "", "original project brief, seeded into the intake phase")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}

			projects, err := store.ListProjects()
			if err != nil {
				return err
			}

			return emit(projects, func() string {
				if len(projects) == 0 {
					return "no projects"
				}
				var b strings.Builder
				for _, p := range projects {
					fmt.Fprintf(&b, "%s  %-20s %s\n", p.ID, p.Name, ux.StatusBadge(string(p.CurrentPhase)))
				}
				return strings.TrimRight(b.String(), "\n")
			})
		},
	}
}
