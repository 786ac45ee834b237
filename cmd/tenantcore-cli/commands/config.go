package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Configure the tenantcore CLI with endpoint and tenant scope.`,
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value. Available keys:
  endpoint     - The tenantcore admin API endpoint URL
  tenant       - The tenant identifier sent with every request
  organization - The organization identifier
  department   - The department identifier
  user         - The user identifier
  token        - A bearer token carrying the tenant scope`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])
			value := args[1]

			cfg, err := LoadConfig()
			if err != nil {
				cfg = DefaultConfig()
			}

			switch key {
			case "endpoint":
				cfg.Endpoint = value
			case "tenant", "tenant-id":
				cfg.TenantID = value
			case "organization", "organization-id", "org":
				cfg.OrganizationID = value
			case "department", "department-id":
				cfg.DepartmentID = value
			case "user", "user-id":
				cfg.UserID = value
			case "token":
				cfg.Token = value
			default:
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if err := SaveConfig(cfg); err != nil {
				return err
			}

			fmt.Printf("Set %s = %s\n", key, maskSecret(key, value))
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])

			cfg, err := LoadConfig()
			if err != nil {
				return err
			}

			var value string
			switch key {
			case "endpoint":
				value = cfg.Endpoint
			case "tenant", "tenant-id":
				value = cfg.TenantID
			case "organization", "organization-id", "org":
				value = cfg.OrganizationID
			case "department", "department-id":
				value = cfg.DepartmentID
			case "user", "user-id":
				value = cfg.UserID
			case "token":
				value = maskSecret(key, cfg.Token)
			default:
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			fmt.Println(value)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show all configuration values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("endpoint:     %s\n", cfg.Endpoint)
			fmt.Printf("tenant:       %s\n", cfg.TenantID)
			fmt.Printf("organization: %s\n", cfg.OrganizationID)
			fmt.Printf("department:   %s\n", cfg.DepartmentID)
			fmt.Printf("user:         %s\n", cfg.UserID)
			fmt.Printf("token:        %s\n", maskSecret("token", cfg.Token))
			return nil
		},
	}
}

// maskSecret masks a secret value, showing only first and last 4 chars
func maskSecret(key, value string) string {
	if key != "token" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****" + value[len(value)-4:]
}
