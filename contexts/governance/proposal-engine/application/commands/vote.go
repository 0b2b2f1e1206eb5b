package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "fangov/contexts/governance/proposal-engine/application"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/domain/services"
	"fangov/contexts/governance/proposal-engine/ports"
)

const (
	msgAlreadyVoted  = "You have already voted on this proposal"
	msgNoVotingPower = "You have no voting power in this organization"
)

type CastVoteCommand struct {
	ProposalID string
	OptionID   string
	VoterID    string
}

// VoteUseCase records one weighted vote per voter per proposal. The voter's
// power is resolved once, at cast time, and stored on the vote.
type VoteUseCase struct {
	Proposals ports.ProposalRepository
	Votes     ports.VoteRepository
	Power     ports.VotingPowerQuery
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	voterID := strings.TrimSpace(cmd.VoterID)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	optionID := strings.TrimSpace(cmd.OptionID)
	if voterID == "" {
		return entities.Vote{}, domainerrors.ErrActorRequired
	}
	if proposalID == "" || optionID == "" {
		return entities.Vote{}, domainerrors.ErrInvalidProposalInput
	}

	snapshot, err := uc.Proposals.LoadSnapshot(ctx, proposalID)
	if err != nil {
		return entities.Vote{}, err
	}
	if !snapshot.HasOption(optionID) {
		return entities.Vote{}, domainerrors.ErrOptionNotFound
	}
	hasVoted, err := uc.Votes.HasVoted(ctx, proposalID, voterID)
	if err != nil {
		return entities.Vote{}, err
	}

	now := uc.now()
	verdict, err := services.ValidateCanVote(snapshot, hasVoted, now)
	if err != nil {
		return entities.Vote{}, err
	}
	if !verdict.Valid {
		logger.Warn("vote rejected",
			"event", "governance_vote_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposalID,
			"voter_id", voterID,
			"reason", verdict.Message,
		)
		return entities.Vote{}, verdict.Err()
	}

	power, err := uc.Power.MemberVotingPower(ctx, snapshot.Proposal.OrganizationID, voterID)
	if err != nil {
		return entities.Vote{}, err
	}
	if !power.IsPositive() {
		logger.Warn("vote rejected",
			"event", "governance_vote_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposalID,
			"voter_id", voterID,
			"reason", msgNoVotingPower,
		)
		return entities.Vote{}, domainerrors.NewValidationError(msgNoVotingPower)
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Vote{}, err
	}
	vote := entities.Vote{
		VoteID:      voteID,
		ProposalID:  proposalID,
		OptionID:    optionID,
		VoterID:     voterID,
		VotingPower: power,
		CreatedAt:   now,
	}
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			// Lost the race against a concurrent cast by the same voter.
			return entities.Vote{}, domainerrors.NewValidationError(msgAlreadyVoted)
		}
		return entities.Vote{}, err
	}

	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", proposalID,
		"option_id", optionID,
		"voter_id", voterID,
		"voting_power", power.String(),
	)
	return vote, nil
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
