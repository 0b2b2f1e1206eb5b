package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalStatusDraft     ProposalStatus = "Draft"
	ProposalStatusOpen      ProposalStatus = "Open"
	ProposalStatusClosed    ProposalStatus = "Closed"
	ProposalStatusFinalized ProposalStatus = "Finalized"
)

// IsKnown reports whether the status is one of the four lifecycle states.
func (s ProposalStatus) IsKnown() bool {
	switch s {
	case ProposalStatusDraft, ProposalStatusOpen, ProposalStatusClosed, ProposalStatusFinalized:
		return true
	default:
		return false
	}
}

type Proposal struct {
	ProposalID     string
	OrganizationID string
	Title          string
	Description    string
	ContentHash    string
	Status         ProposalStatus
	CreatorID      string
	StartAt        *time.Time
	EndAt          *time.Time
	// QuorumRequirement is a percentage in [0, 100]; nil means no quorum.
	QuorumRequirement *decimal.Decimal
	// EligibleVotingPowerSnapshot is captured once, at Draft -> Open.
	EligibleVotingPowerSnapshot *decimal.Decimal
	Version                     int64
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
	OpenedAt                    *time.Time
	ClosedAt                    *time.Time
	FinalizedAt                 *time.Time
}

type ProposalOption struct {
	OptionID    string
	ProposalID  string
	Text        string
	Description string
	CreatedAt   time.Time
}

type Vote struct {
	VoteID      string
	ProposalID  string
	OptionID    string
	VoterID     string
	VotingPower decimal.Decimal
	CreatedAt   time.Time
}

// ProposalSnapshot is the aggregate the rules engine evaluates: a proposal
// together with its options and cast votes.
type ProposalSnapshot struct {
	Proposal Proposal
	Options  []ProposalOption
	Votes    []Vote
}

// OptionHasVotes reports whether any vote in the snapshot references optionID.
func (s ProposalSnapshot) OptionHasVotes(optionID string) bool {
	for _, vote := range s.Votes {
		if vote.OptionID == optionID {
			return true
		}
	}
	return false
}

// HasOption reports whether optionID belongs to the snapshot's proposal.
func (s ProposalSnapshot) HasOption(optionID string) bool {
	for _, option := range s.Options {
		if option.OptionID == optionID {
			return true
		}
	}
	return false
}

// HasVoted reports whether voterID already has a vote in the snapshot.
func (s ProposalSnapshot) HasVoted(voterID string) bool {
	for _, vote := range s.Votes {
		if vote.VoterID == voterID {
			return true
		}
	}
	return false
}
