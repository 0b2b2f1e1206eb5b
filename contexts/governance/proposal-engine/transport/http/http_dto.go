package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OptionRequest struct {
	Text        string `json:"text" binding:"required"`
	Description string `json:"description,omitempty"`
}

type CreateProposalRequest struct {
	OrganizationID    string          `json:"organization_id" binding:"required"`
	Title             string          `json:"title" binding:"required"`
	Description       string          `json:"description,omitempty"`
	StartAt           *time.Time      `json:"start_at,omitempty"`
	EndAt             *time.Time      `json:"end_at,omitempty"`
	QuorumRequirement *string         `json:"quorum_requirement,omitempty"`
	Options           []OptionRequest `json:"options,omitempty"`
}

type CastVoteRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

type OptionResponse struct {
	OptionID    string    `json:"option_id"`
	ProposalID  string    `json:"proposal_id"`
	Text        string    `json:"text"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decimal quantities are rendered as strings so no precision is lost in
// JSON number handling.
type ProposalResponse struct {
	ProposalID                  string           `json:"proposal_id"`
	OrganizationID              string           `json:"organization_id"`
	Title                       string           `json:"title"`
	Description                 string           `json:"description,omitempty"`
	ContentHash                 string           `json:"content_hash"`
	Status                      string           `json:"status"`
	CreatorID                   string           `json:"creator_id"`
	StartAt                     *time.Time       `json:"start_at,omitempty"`
	EndAt                       *time.Time       `json:"end_at,omitempty"`
	QuorumRequirement           *string          `json:"quorum_requirement,omitempty"`
	EligibleVotingPowerSnapshot *string          `json:"eligible_voting_power_snapshot,omitempty"`
	Version                     int64            `json:"version"`
	CreatedAt                   time.Time        `json:"created_at"`
	UpdatedAt                   time.Time        `json:"updated_at"`
	OpenedAt                    *time.Time       `json:"opened_at,omitempty"`
	ClosedAt                    *time.Time       `json:"closed_at,omitempty"`
	FinalizedAt                 *time.Time       `json:"finalized_at,omitempty"`
	Options                     []OptionResponse `json:"options"`
}

type VoteResponse struct {
	VoteID      string    `json:"vote_id"`
	ProposalID  string    `json:"proposal_id"`
	OptionID    string    `json:"option_id"`
	VoterID     string    `json:"voter_id"`
	VotingPower string    `json:"voting_power"`
	CreatedAt   time.Time `json:"created_at"`
}

type OptionTallyResponse struct {
	OptionID    string `json:"option_id"`
	Text        string `json:"text"`
	VotingPower string `json:"voting_power"`
	VoteCount   int    `json:"vote_count"`
}

type ResultsResponse struct {
	ProposalID       string                `json:"proposal_id"`
	TotalVotingPower string                `json:"total_voting_power"`
	TotalVotes       int                   `json:"total_votes"`
	Options          []OptionTallyResponse `json:"options"`
	WinningOptionID  string                `json:"winning_option_id,omitempty"`
	QuorumMet        bool                  `json:"quorum_met"`
	ResultsHash      string                `json:"results_hash"`
	ComputedAt       time.Time             `json:"computed_at"`
}

type TransitionResponse struct {
	Proposal ProposalResponse `json:"proposal"`
	Results  *ResultsResponse `json:"results,omitempty"`
}
