package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/piwi3910/tenantcore/cmd/tenantcore-cli/commands"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tenantcore-cli",
		Short: "tenantcore CLI - multi-tenant isolation engine client",
		Long: `tenantcore CLI is a command-line interface for operating a tenantcore
daemon: validating isolation configuration, inspecting lockout state, and
exercising the tenant-scoped key-value store.

Configure your endpoint and tenant scope:
  tenantcore-cli config set endpoint http://localhost:9400
  tenantcore-cli config set tenant t1
  tenantcore-cli config set user 42

Or use environment variables:
  TENANTCORE_ENDPOINT
  TENANTCORE_TENANT_ID
  TENANTCORE_ORGANIZATION_ID
  TENANTCORE_DEPARTMENT_ID
  TENANTCORE_USER_ID
  TENANTCORE_TOKEN`,
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
	}

	// Add sub-commands
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewValidateCmd())
	rootCmd.AddCommand(commands.NewIsolateCmd())
	rootCmd.AddCommand(commands.NewContextCmd())
	rootCmd.AddCommand(commands.NewLockoutCmd())
	rootCmd.AddCommand(commands.NewStoreCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
