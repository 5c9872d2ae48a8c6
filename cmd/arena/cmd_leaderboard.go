package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLeaderboardCommand(flags *clientFlags) *cobra.Command {
	var (
		sortBy    string
		limit     int
		ascending bool
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show ranked candidates",
		Long: `Show ranked candidates.

--sort accepts overall, a category name, costCredits, contextWindow or speed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := flags.client().Leaderboard(cmd.Context(), sortBy, limit, ascending)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tID\tNAME\tCOMPANY\tVALUE\tVOTES")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
					e.Rank, e.Candidate.ID, e.Candidate.Name, e.Candidate.Company,
					strconv.FormatFloat(e.Value, 'f', -1, 64), e.Candidate.VoteCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&sortBy, "sort", "s", "overall", "Sort key")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of entries")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Sort ascending")
	return cmd
}
