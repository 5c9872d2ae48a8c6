package main

import (
	"time"

	"github.com/okian/arena/internal/adapters/http/client"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	defaultServerURL = "http://localhost:9080"
	defaultTimeout   = 10 * time.Second
)

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	url     string
	timeout time.Duration
}

func (f *clientFlags) client() *client.Client {
	return client.New(f.url, client.WithTimeout(f.timeout))
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Arena - pairwise vote engine with ELO leaderboards",
		Long: `Arena collects pairwise votes between candidates, keeps per-category ELO
ratings and serves ranked leaderboards.

Run "arena serve" to start the engine and its HTTP API. The other commands
talk to a running server.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := &clientFlags{}
	cmd.PersistentFlags().StringVar(&flags.url, "url", defaultServerURL, "Base URL of a running arena server")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", defaultTimeout, "Request timeout")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newVoteCommand(flags))
	cmd.AddCommand(newLeaderboardCommand(flags))
	cmd.AddCommand(newPairsCommand(flags))
	cmd.AddCommand(newIdentityCommand(flags))

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
