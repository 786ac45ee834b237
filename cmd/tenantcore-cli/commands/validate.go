package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/tenantcore/internal/config"
)

// NewValidateCmd creates the validate command. Validation runs locally so it
// works without a running daemon; pass --remote to validate through the API
// of a live instance instead.
func NewValidateCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a tenantcore configuration file",
		Long: `Validate the multi-tenancy section of a configuration file.

Structural violations (for example a key-prefix strategy without a
key_prefix) are reported as errors and make the command exit non-zero.
Risky but well-formed settings are reported as warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return validateRemote(cmd, args[0])
			}

			return validateLocal(args[0])
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Validate through a running daemon's admin API")

	return cmd
}

func validateLocal(path string) error {
	cfg, err := config.Load(path, config.Options{})
	if err != nil {
		return err
	}

	result := config.Validate(&cfg.MultiTenancy)

	return printValidation(result)
}

func validateRemote(cmd *cobra.Command, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	client, err := NewClient()
	if err != nil {
		return err
	}

	data, err := client.Do(cmd.Context(), "POST", "/api/v1/config/validate", body)
	if len(data) > 0 {
		_ = PrintJSON(data)
	}

	return err
}

func printValidation(result config.ValidationResult) error {
	out, err := yaml.Marshal(result)
	if err != nil {
		return err
	}

	fmt.Print(string(out))

	if !result.Valid {
		return fmt.Errorf("configuration is invalid (%d error(s))", len(result.Errors))
	}

	return nil
}
