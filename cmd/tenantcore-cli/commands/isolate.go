package commands

import (
	"net/url"

	"github.com/spf13/cobra"
)

// NewIsolateCmd creates the isolate command.
func NewIsolateCmd() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "isolate <key>",
		Short: "Show how a raw key is isolated for the configured tenant scope",
		Long: `Derive the isolated forms of a raw key at a given hierarchy level,
using the tenant scope from the CLI configuration. Useful for debugging
isolation configuration before pointing real workloads at it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewClient()
			if err != nil {
				return err
			}

			query := url.Values{"key": {args[0]}}
			if level != "" {
				query.Set("level", level)
			}

			data, err := client.Do(cmd.Context(), "GET", "/api/v1/isolate?"+query.Encode(), nil)
			if err != nil {
				return err
			}

			return PrintJSON(data)
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", "", "Isolation level (tenant, organization, department, user)")

	return cmd
}

// NewContextCmd creates the context command.
func NewContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Show the isolation context the daemon derives for this CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewClient()
			if err != nil {
				return err
			}

			data, err := client.Do(cmd.Context(), "GET", "/api/v1/context", nil)
			if err != nil {
				return err
			}

			return PrintJSON(data)
		},
	}
}
