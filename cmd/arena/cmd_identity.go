package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIdentityCommand(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the server's voter identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := flags.client().Identity(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Issue a new voter identity and forget its voted pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := flags.client().ResetIdentity(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	return cmd
}
