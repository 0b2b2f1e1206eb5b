package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "fangov/contexts/governance/proposal-engine/application"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/domain/services"
	"fangov/contexts/governance/proposal-engine/ports"
)

type GetProposalUseCase struct {
	Proposals ports.ProposalRepository
	Logger    *slog.Logger
}

// Execute returns the proposal with its options. Votes are stripped; they are
// only exposed in aggregate through GetResultsUseCase.
func (uc GetProposalUseCase) Execute(ctx context.Context, proposalID string) (entities.ProposalSnapshot, error) {
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return entities.ProposalSnapshot{}, domainerrors.ErrInvalidProposalInput
	}
	snapshot, err := uc.Proposals.LoadSnapshot(ctx, proposalID)
	if err != nil {
		return entities.ProposalSnapshot{}, err
	}
	snapshot.Votes = nil
	return snapshot, nil
}

type GetResultsUseCase struct {
	Proposals ports.ProposalRepository
	Clock     ports.Clock
	Logger    *slog.Logger
}

// Execute serves the stored tally for Closed and Finalized proposals and a
// live tally while voting is Open. Draft proposals have no visible results.
func (uc GetResultsUseCase) Execute(ctx context.Context, proposalID string) (entities.ProposalResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return entities.ProposalResult{}, domainerrors.ErrInvalidProposalInput
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return entities.ProposalResult{}, err
	}
	if !services.AreResultsVisible(proposal.Status) {
		return entities.ProposalResult{}, domainerrors.ErrResultsNotVisible
	}

	if proposal.Status != entities.ProposalStatusOpen {
		stored, found, err := uc.Proposals.GetResult(ctx, proposalID)
		if err != nil {
			return entities.ProposalResult{}, err
		}
		if found {
			return stored, nil
		}
		logger.Warn("stored proposal result missing, recomputing",
			"event", "governance_result_missing",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", proposalID,
			"status", string(proposal.Status),
		)
	}

	snapshot, err := uc.Proposals.LoadSnapshot(ctx, proposalID)
	if err != nil {
		return entities.ProposalResult{}, err
	}
	result, err := services.ComputeResults(snapshot)
	if err != nil {
		return entities.ProposalResult{}, err
	}
	result.ComputedAt = uc.now()
	return result, nil
}

func (uc GetResultsUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
