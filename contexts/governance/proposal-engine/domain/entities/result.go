package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionTally struct {
	OptionID    string
	Text        string
	VotingPower decimal.Decimal
	VoteCount   int
}

// ProposalResult is the derived tally for one proposal at one point in time.
// Options are ordered by OptionID ascending.
type ProposalResult struct {
	ProposalID       string
	TotalVotingPower decimal.Decimal
	TotalVotes       int
	Options          []OptionTally
	WinningOptionID  string
	QuorumMet        bool
	ResultsHash      string
	ComputedAt       time.Time
}

// ResultSummary is the compact shape attached to lifecycle notifications.
type ResultSummary struct {
	TotalVotingPower string `json:"total_voting_power"`
	TotalVotes       int    `json:"total_votes"`
	WinningOptionID  string `json:"winning_option_id,omitempty"`
	QuorumMet        bool   `json:"quorum_met"`
	ResultsHash      string `json:"results_hash"`
}

func (r ProposalResult) Summary() ResultSummary {
	return ResultSummary{
		TotalVotingPower: r.TotalVotingPower.String(),
		TotalVotes:       r.TotalVotes,
		WinningOptionID:  r.WinningOptionID,
		QuorumMet:        r.QuorumMet,
		ResultsHash:      r.ResultsHash,
	}
}

// LifecycleTransition is the fact handed to the outbound notifier after a
// status change has been persisted.
type LifecycleTransition struct {
	ProposalID     string
	OrganizationID string
	FromStatus     ProposalStatus
	ToStatus       ProposalStatus
	Result         *ResultSummary
	TriggeredBy    string
	OccurredAt     time.Time
}
