package commands

import (
	"net/url"

	"github.com/spf13/cobra"
)

// NewLockoutCmd creates the lockout command.
func NewLockoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lockout",
		Short: "Inspect and drive the authentication lockout policy",
	}

	cmd.AddCommand(newLockoutStatusCmd())
	cmd.AddCommand(newLockoutFailureCmd())
	cmd.AddCommand(newLockoutSuccessCmd())

	return cmd
}

func newLockoutStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <principal>",
		Short: "Show the lockout state of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lockoutRequest(cmd, "GET", args[0], "")
		},
	}
}

func newLockoutFailureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failure <principal>",
		Short: "Record a failed authentication attempt for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lockoutRequest(cmd, "POST", args[0], "/failure")
		},
	}
}

func newLockoutSuccessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "success <principal>",
		Short: "Record a successful authentication attempt for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lockoutRequest(cmd, "POST", args[0], "/success")
		},
	}
}

func lockoutRequest(cmd *cobra.Command, method, principal, suffix string) error {
	client, err := NewClient()
	if err != nil {
		return err
	}

	path := "/api/v1/lockouts/" + url.PathEscape(principal) + suffix

	data, err := client.Do(cmd.Context(), method, path, nil)
	if err != nil {
		return err
	}

	return PrintJSON(data)
}
