package commands

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

type TransitionCommand struct {
	ProposalID string
	ActorID    string
}

type TransitionResult struct {
	Proposal entities.Proposal
	Result   *entities.ProposalResult
}

// LifecycleUseCase drives the API side of the Draft -> Open -> Closed ->
// Finalized state machine. The lifecycle scheduler races it through the same
// guarded SaveTransition.
type LifecycleUseCase struct {
	Proposals ports.ProposalRepository
	Power     ports.VotingPowerQuery
	Notifier  ports.LifecycleNotifier
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (uc LifecycleUseCase) Open(ctx context.Context, cmd TransitionCommand) (TransitionResult, error) {
	snapshot, err := uc.load(ctx, cmd)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := uc.check(snapshot, entities.ProposalStatusOpen, services.ValidateCanOpen); err != nil {
		return TransitionResult{}, err
	}
	eligible, err := uc.Power.OrganizationVotingPower(ctx, snapshot.Proposal.OrganizationID)
	if err != nil {
		return TransitionResult{}, err
	}
	return uc.apply(ctx, cmd, application.TransitionRequest{
		Snapshot:   snapshot,
		Target:     entities.ProposalStatusOpen,
		EligibleVP: &eligible,
	})
}

func (uc LifecycleUseCase) Close(ctx context.Context, cmd TransitionCommand) (TransitionResult, error) {
	snapshot, err := uc.load(ctx, cmd)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := uc.check(snapshot, entities.ProposalStatusClosed, services.ValidateCanClose); err != nil {
		return TransitionResult{}, err
	}
	return uc.apply(ctx, cmd, application.TransitionRequest{
		Snapshot: snapshot,
		Target:   entities.ProposalStatusClosed,
	})
}

func (uc LifecycleUseCase) Finalize(ctx context.Context, cmd TransitionCommand) (TransitionResult, error) {
	snapshot, err := uc.load(ctx, cmd)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := uc.check(snapshot, entities.ProposalStatusFinalized, nil); err != nil {
		return TransitionResult{}, err
	}
	return uc.apply(ctx, cmd, application.TransitionRequest{
		Snapshot: snapshot,
		Target:   entities.ProposalStatusFinalized,
	})
}

func (uc LifecycleUseCase) load(ctx context.Context, cmd TransitionCommand) (entities.ProposalSnapshot, error) {
	if strings.TrimSpace(cmd.ActorID) == "" {
		return entities.ProposalSnapshot{}, domainerrors.ErrActorRequired
	}
	proposalID := strings.TrimSpace(cmd.ProposalID)
	if proposalID == "" {
		return entities.ProposalSnapshot{}, domainerrors.ErrInvalidProposalInput
	}
	return uc.Proposals.LoadSnapshot(ctx, proposalID)
}

// check runs the action-specific rule (when given) and the state machine
// edge check. Either failing rejects the transition.
func (uc LifecycleUseCase) check(
	snapshot entities.ProposalSnapshot,
	target entities.ProposalStatus,
	actionRule func(entities.ProposalSnapshot) (services.ValidationResult, error),
) error {
	logger := application.ResolveLogger(uc.Logger)
	verdicts := make([]services.ValidationResult, 0, 2)
	if actionRule != nil {
		verdict, err := actionRule(snapshot)
		if err != nil {
			return err
		}
		verdicts = append(verdicts, verdict)
	}
	verdict, err := services.ValidateStatusTransition(snapshot, target)
	if err != nil {
		return err
	}
	verdicts = append(verdicts, verdict)

	for _, verdict := range verdicts {
		if verdict.Valid {
			continue
		}
		logger.Warn("proposal transition rejected",
			"event", "governance_proposal_transition_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", snapshot.Proposal.ProposalID,
			"from_status", string(snapshot.Proposal.Status),
			"to_status", string(target),
			"reason", verdict.Message,
		)
		return verdict.Err()
	}
	return nil
}

func (uc LifecycleUseCase) apply(
	ctx context.Context,
	cmd TransitionCommand,
	req application.TransitionRequest,
) (TransitionResult, error) {
	req.TriggeredBy = strings.TrimSpace(cmd.ActorID)
	req.Now = uc.now()
	outcome, err := application.Transitioner{
		Proposals: uc.Proposals,
		Notifier:  uc.Notifier,
		Logger:    uc.Logger,
	}.Apply(ctx, req)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Proposal: outcome.Proposal, Result: outcome.Result}, nil
}

func (uc LifecycleUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
