package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/internal/provider"
	"github.com/felixgeelhaar/specflow/internal/ux"
)

func newBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect configured generation backends",
	}
	cmd.AddCommand(newBackendListCmd())
	cmd.AddCommand(newBackendCheckCmd())
	return cmd
}

type backendInfo struct {
	ID           string                `json:"id"`
	Capabilities provider.Capabilities `json:"capabilities"`
	Preset       provider.Preset       `json:"preset"`
}

func newBackendListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled backends with their capabilities and presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}

			ids := registry.List()
			sort.Strings(ids)

			infos := make([]backendInfo, 0, len(ids))
			for _, id := range ids {
				caps, preset, err := registry.Describe(id)
				if err != nil {
					return err
				}
				infos = append(infos, backendInfo{ID: id, Capabilities: *caps, Preset: *preset})
			}

			return emit(infos, func() string {
				if len(infos) == 0 {
					return "no enabled backends"
				}
				var b strings.Builder
				for _, info := range infos {
					fmt.Fprintf(&b, "%-20s max_output=%d max_context=%d temperature=%.2f\n",
						info.ID,
						info.Capabilities.MaxOutputTokens,
						info.Capabilities.MaxContextTokens,
						info.Preset.Temperature)
				}
				return strings.TrimRight(b.String(), "\n")
			})
		},
	}
}

func newBackendCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the selected backend with a minimal generation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			ok := app.client.TestConnectivity(cmd.Context())
			result := struct {
				Backend   string `json:"backend"`
				Reachable bool   `json:"reachable"`
			}{app.client.BackendID(), ok}

			if emitErr := emit(result, func() string {
				if ok {
					return ux.StatusBadge("completed") + " backend " + result.Backend + " is reachable"
				}
				return ux.StatusBadge("failed") + " backend " + result.Backend + " is not reachable"
			}); emitErr != nil {
				return emitErr
			}

			if !ok {
				return fmt.Errorf("network check failed for backend %s", result.Backend)
			}
			return nil
		},
	}
}
