package main

import (
	"fmt"

	"github.com/okian/arena/internal/domain/model"
	"github.com/spf13/cobra"
)

func newVoteCommand(flags *clientFlags) *cobra.Command {
	var category, winner string

	cmd := &cobra.Command{
		Use:     "vote <candidate-a> <candidate-b>",
		Short:   "Vote for the better of two candidates in a category",
		Example: `  arena vote gpt-4o claude-3-7-sonnet --category debugging --winner gpt-4o`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := flags.client().Vote(cmd.Context(), model.VoteRequest{
				CandidateA: args[0],
				CandidateB: args[1],
				Category:   category,
				WinnerID:   winner,
			})
			if err != nil {
				return err
			}

			cat := res.Record.Category
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "voted %s in %s\n", res.Record.Winner(), cat)
			fmt.Fprintf(out, "  %-24s %d\n", res.A.ID, res.A.Ratings.Get(cat))
			fmt.Fprintf(out, "  %-24s %d\n", res.B.ID, res.B.Ratings.Get(cat))
			if res.Warning != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", model.Agentic.String(), "Category to vote in")
	cmd.Flags().StringVarP(&winner, "winner", "w", "", "Id of the winning candidate")
	_ = cmd.MarkFlagRequired("winner")
	return cmd
}
