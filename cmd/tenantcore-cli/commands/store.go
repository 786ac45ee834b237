package commands

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// NewStoreCmd creates the store command.
func NewStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Access the tenant-scoped key-value store",
		Long: `Read and write the daemon's key-value store within the tenant scope
from the CLI configuration. Keys are isolated server-side; two tenants using
the same raw key never see each other's values.`,
	}

	cmd.AddCommand(newStoreListCmd())
	cmd.AddCommand(newStoreGetCmd())
	cmd.AddCommand(newStorePutCmd())
	cmd.AddCommand(newStoreDeleteCmd())

	return cmd
}

func newStoreListCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List keys within the tenant scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewClient()
			if err != nil {
				return err
			}

			path := "/api/v1/store/"
			if prefix != "" {
				path += "?prefix=" + url.QueryEscape(prefix)
			}

			data, err := client.Do(cmd.Context(), "GET", path, nil)
			if err != nil {
				return err
			}

			return PrintJSON(data)
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Only list keys with this prefix")

	return cmd
}

func newStoreGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewClient()
			if err != nil {
				return err
			}

			data, err := client.Do(cmd.Context(), "GET", "/api/v1/store/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}

			_, err = os.Stdout.Write(data)

			return err
		},
	}
}

func newStorePutCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store a value under a key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value []byte

			switch {
			case fromFile != "":
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return err
				}

				value = data
			case len(args) == 2:
				value = []byte(args[1])
			default:
				return fmt.Errorf("provide a value argument or --file")
			}

			client, err := NewClient()
			if err != nil {
				return err
			}

			data, err := client.Do(cmd.Context(), "PUT", "/api/v1/store/"+url.PathEscape(args[0]), value)
			if err != nil {
				return err
			}

			return PrintJSON(data)
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read the value from a file")

	return cmd
}

func newStoreDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewClient()
			if err != nil {
				return err
			}

			_, err = client.Do(cmd.Context(), "DELETE", "/api/v1/store/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted %s\n", args[0])

			return nil
		},
	}
}
