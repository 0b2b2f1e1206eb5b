package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	postgresadapter "fangov/contexts/governance/proposal-engine/adapters/postgres"
	"fangov/contexts/governance/proposal-engine/application/queries"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	"fangov/internal/app/bootstrap"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newMembersCmd(opts *rootOptions) *cobra.Command {
	members := &cobra.Command{
		Use:   "members",
		Short: "Manage member voting power",
	}

	var organizationID, userID, power string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set a member's share balance in an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(strings.TrimSpace(power))
			if err != nil {
				return fmt.Errorf("--power must be a decimal: %w", err)
			}
			if amount.IsNegative() {
				return errors.New("--power must not be negative")
			}
			cfg, logger, err := opts.load("admin")
			if err != nil {
				return err
			}
			repo, closeDB, err := bootstrap.OpenRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			if err := repo.SetVotingPower(cmd.Context(), organizationID, userID, amount); err != nil {
				return err
			}
			cmd.Printf("%s now holds %s in %s\n", userID, amount.String(), organizationID)
			return nil
		},
	}
	set.Flags().StringVar(&organizationID, "org", "", "organization id")
	set.Flags().StringVar(&userID, "user", "", "member user id")
	set.Flags().StringVar(&power, "power", "", "share balance (decimal)")
	_ = set.MarkFlagRequired("org")
	_ = set.MarkFlagRequired("user")
	_ = set.MarkFlagRequired("power")

	members.AddCommand(set)
	return members
}

func newResultsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results <proposal-id>",
		Short: "Print the tally for a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load("admin")
			if err != nil {
				return err
			}
			repo, closeDB, err := bootstrap.OpenRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			result, err := queries.GetResultsUseCase{
				Proposals: repo,
				Clock:     postgresadapter.SystemClock{},
				Logger:    logger,
			}.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderResults(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func renderResults(w io.Writer, result entities.ProposalResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Option", "Text", "Voting power", "Votes"})
	for _, option := range result.Options {
		marker := ""
		if option.OptionID == result.WinningOptionID {
			marker = "*"
		}
		t.AppendRow(table.Row{marker, option.OptionID, option.Text, option.VotingPower.String(), option.VoteCount})
	}
	t.AppendFooter(table.Row{"", "Total", "", result.TotalVotingPower.String(), result.TotalVotes})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()

	quorum := "not met"
	if result.QuorumMet {
		quorum = "met"
	}
	fmt.Fprintf(w, "quorum: %s\nresults hash: %s\n", quorum, result.ResultsHash)
}
