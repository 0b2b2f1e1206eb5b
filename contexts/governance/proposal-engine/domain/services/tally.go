package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeResults tallies the snapshot's votes per option.
//
// The winner is the option with the strictly greatest aggregated power. Ties,
// including the no-votes case, go to the option whose identifier sorts first
// in byte-wise string order, so a winner is selected whenever at least one
// option exists. ComputedAt is left for the caller to stamp.
func ComputeResults(snapshot entities.ProposalSnapshot) (entities.ProposalResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return entities.ProposalResult{}, err
	}
	if power := snapshot.Proposal.EligibleVotingPowerSnapshot; power != nil && power.IsNegative() {
		return entities.ProposalResult{}, fmt.Errorf("%w: negative eligible voting power", domainerrors.ErrMalformedSnapshot)
	}

	tallies := make(map[string]*entities.OptionTally, len(snapshot.Options))
	for _, option := range snapshot.Options {
		if _, dup := tallies[option.OptionID]; dup {
			return entities.ProposalResult{}, fmt.Errorf("%w: duplicate option %q", domainerrors.ErrMalformedSnapshot, option.OptionID)
		}
		tallies[option.OptionID] = &entities.OptionTally{
			OptionID:    option.OptionID,
			Text:        option.Text,
			VotingPower: decimal.Zero,
		}
	}

	total := decimal.Zero
	for _, vote := range snapshot.Votes {
		tally, ok := tallies[vote.OptionID]
		if !ok {
			return entities.ProposalResult{}, fmt.Errorf("%w: vote %q references unknown option %q",
				domainerrors.ErrMalformedSnapshot, vote.VoteID, vote.OptionID)
		}
		if vote.VotingPower.IsNegative() {
			return entities.ProposalResult{}, fmt.Errorf("%w: vote %q has negative power", domainerrors.ErrMalformedSnapshot, vote.VoteID)
		}
		tally.VotingPower = tally.VotingPower.Add(vote.VotingPower)
		tally.VoteCount++
		total = total.Add(vote.VotingPower)
	}

	options := make([]entities.OptionTally, 0, len(tallies))
	for _, tally := range tallies {
		options = append(options, *tally)
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].OptionID < options[j].OptionID
	})

	winner := ""
	best := decimal.Zero
	for i, option := range options {
		if i == 0 || option.VotingPower.GreaterThan(best) {
			winner = option.OptionID
			best = option.VotingPower
		}
	}

	result := entities.ProposalResult{
		ProposalID:       snapshot.Proposal.ProposalID,
		TotalVotingPower: total,
		TotalVotes:       len(snapshot.Votes),
		Options:          options,
		WinningOptionID:  winner,
		QuorumMet: IsQuorumMet(
			total,
			snapshot.Proposal.QuorumRequirement,
			snapshot.Proposal.EligibleVotingPowerSnapshot,
		),
	}
	hash, err := ResultsHash(result)
	if err != nil {
		return entities.ProposalResult{}, err
	}
	result.ResultsHash = hash
	return result, nil
}

// IsQuorumMet compares cast power against requirement percent of eligible.
// A nil requirement is always met; otherwise a nil eligible snapshot never is.
// The comparison is cast*100 >= requirement*eligible, which stays exact.
func IsQuorumMet(cast decimal.Decimal, requirement *decimal.Decimal, eligible *decimal.Decimal) bool {
	if requirement == nil {
		return true
	}
	if eligible == nil {
		return false
	}
	if requirement.Sign() <= 0 {
		return true
	}
	if eligible.Sign() <= 0 {
		return false
	}
	return cast.Mul(hundred).GreaterThanOrEqual(requirement.Mul(*eligible))
}

type canonicalOption struct {
	OptionID    string `json:"option_id"`
	VotingPower string `json:"voting_power"`
	VoteCount   int    `json:"vote_count"`
}

type canonicalResult struct {
	ProposalID       string            `json:"proposal_id"`
	Options          []canonicalOption `json:"options"`
	TotalVotingPower string            `json:"total_voting_power"`
	TotalVotes       int               `json:"total_votes"`
	WinningOptionID  string            `json:"winning_option_id"`
	QuorumMet        bool              `json:"quorum_met"`
}

// ResultsHash is the hex SHA-256 of the result's canonical JSON form. It is
// what ledger adapters commit on chain.
func ResultsHash(result entities.ProposalResult) (string, error) {
	canonical := canonicalResult{
		ProposalID:       result.ProposalID,
		Options:          make([]canonicalOption, 0, len(result.Options)),
		TotalVotingPower: result.TotalVotingPower.String(),
		TotalVotes:       result.TotalVotes,
		WinningOptionID:  result.WinningOptionID,
		QuorumMet:        result.QuorumMet,
	}
	for _, option := range result.Options {
		canonical.Options = append(canonical.Options, canonicalOption{
			OptionID:    option.OptionID,
			VotingPower: option.VotingPower.String(),
			VoteCount:   option.VoteCount,
		})
	}
	sort.Slice(canonical.Options, func(i, j int) bool {
		return canonical.Options[i].OptionID < canonical.Options[j].OptionID
	})
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ContentHash fingerprints the human-readable proposal content.
func ContentHash(title string, description string) string {
	sum := sha256.Sum256([]byte(title + "\n" + description))
	return hex.EncodeToString(sum[:])
}
