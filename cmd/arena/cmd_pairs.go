package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPairsCommand(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs <category>",
		Short: "List the pairs the server's identity already voted on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := flags.client().Pairs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
