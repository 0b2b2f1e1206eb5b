package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/domain/services"
	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/shopspring/decimal"
)

// TransitionRequest describes a status change that callers have already
// validated against the rules engine.
type TransitionRequest struct {
	Snapshot    entities.ProposalSnapshot
	Target      entities.ProposalStatus
	EligibleVP  *decimal.Decimal
	TriggeredBy string
	Now         time.Time
}

// TransitionOutcome is what was persisted and announced.
type TransitionOutcome struct {
	Proposal entities.Proposal
	Result   *entities.ProposalResult
}

// Transitioner applies a validated transition: mutate a copy of the proposal,
// tally when leaving Open, hand the fact to the notifier, then persist the
// status change and its event in one guarded write. Both the API commands and
// the lifecycle scheduler go through it.
type Transitioner struct {
	Proposals ports.ProposalRepository
	Notifier  ports.LifecycleNotifier
	Logger    *slog.Logger
}

func (t Transitioner) Apply(ctx context.Context, req TransitionRequest) (TransitionOutcome, error) {
	logger := ResolveLogger(t.Logger)
	from := req.Snapshot.Proposal.Status
	if !services.IsAllowedTransition(from, req.Target) {
		return TransitionOutcome{}, fmt.Errorf("%w: %s -> %s was not validated", domainerrors.ErrMalformedSnapshot, from, req.Target)
	}

	now := req.Now.UTC()
	proposal := req.Snapshot.Proposal
	proposal.Status = req.Target
	proposal.UpdatedAt = now
	proposal.Version++

	var result *entities.ProposalResult
	switch req.Target {
	case entities.ProposalStatusOpen:
		if proposal.EligibleVotingPowerSnapshot == nil && req.EligibleVP != nil {
			eligible := *req.EligibleVP
			proposal.EligibleVotingPowerSnapshot = &eligible
		}
		proposal.OpenedAt = &now
	case entities.ProposalStatusClosed, entities.ProposalStatusFinalized:
		computed, err := services.ComputeResults(entities.ProposalSnapshot{
			Proposal: proposal,
			Options:  req.Snapshot.Options,
			Votes:    req.Snapshot.Votes,
		})
		if err != nil {
			logger.Error("proposal tally failed",
				"event", "governance_proposal_tally_failed",
				"module", ModuleName,
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"error", err.Error(),
			)
			return TransitionOutcome{}, err
		}
		computed.ComputedAt = now
		result = &computed
		if req.Target == entities.ProposalStatusClosed {
			proposal.ClosedAt = &now
		} else {
			proposal.FinalizedAt = &now
		}
	}

	fact := entities.LifecycleTransition{
		ProposalID:     proposal.ProposalID,
		OrganizationID: proposal.OrganizationID,
		FromStatus:     from,
		ToStatus:       proposal.Status,
		TriggeredBy:    req.TriggeredBy,
		OccurredAt:     now,
	}
	if result != nil {
		summary := result.Summary()
		fact.Result = &summary
	}
	record := ports.TransitionRecord{
		Proposal:       proposal,
		ExpectedStatus: from,
		Result:         result,
	}
	if t.Notifier != nil {
		event, err := t.Notifier.PrepareTransition(ctx, fact)
		if err != nil {
			logger.Error("proposal transition event build failed",
				"event", "governance_proposal_notify_failed",
				"module", ModuleName,
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"from_status", string(from),
				"to_status", string(proposal.Status),
				"error", err.Error(),
			)
			return TransitionOutcome{}, err
		}
		record.Event = &event
	}
	if err := t.Proposals.SaveTransition(ctx, record); err != nil {
		return TransitionOutcome{}, err
	}

	logger.Info("proposal status changed",
		"event", "governance_proposal_status_changed",
		"module", ModuleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"organization_id", proposal.OrganizationID,
		"from_status", string(from),
		"to_status", string(proposal.Status),
		"triggered_by", req.TriggeredBy,
	)
	return TransitionOutcome{Proposal: proposal, Result: result}, nil
}
