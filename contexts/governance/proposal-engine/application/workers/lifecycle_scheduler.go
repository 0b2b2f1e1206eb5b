package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "fangov/contexts/governance/proposal-engine/application"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/domain/services"
	"fangov/contexts/governance/proposal-engine/ports"
)

// SchedulerActor is recorded as TriggeredBy on timer-driven transitions.
const SchedulerActor = "system:lifecycle-scheduler"

type sweepOutcome int

const (
	outcomeApplied sweepOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// LifecycleScheduler closes Open proposals whose voting window has ended
// and, when AutoFinalize is set, finalizes proposals that have stayed Closed
// for AutoFinalizeAfter. It shares no locks with the API path; a lost race
// surfaces as a stale status and is skipped.
type LifecycleScheduler struct {
	Proposals         ports.ProposalRepository
	Candidates        ports.SchedulerRepository
	Notifier          ports.LifecycleNotifier
	Metrics           ports.SchedulerMetrics
	Clock             ports.Clock
	BatchSize         int
	AutoFinalize      bool
	AutoFinalizeAfter time.Duration
	Logger            *slog.Logger
}

func (j LifecycleScheduler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	started := time.Now()
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	var (
		stats ports.SweepStats
		errs  []error
	)
	defer func() {
		stats.Duration = time.Since(started)
		if j.Metrics != nil {
			j.Metrics.ObserveSweep(stats)
		}
	}()

	expired, err := j.Candidates.ListExpiredOpenProposals(ctx, now, limit)
	if err != nil {
		logger.Error("lifecycle close sweep listing failed",
			"event", "governance_scheduler_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"phase", "close",
			"error", err.Error(),
		)
		return err
	}
	for _, proposalID := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := j.advance(ctx, proposalID, entities.ProposalStatusOpen, entities.ProposalStatusClosed, now)
		recordOutcome(&stats, outcome, entities.ProposalStatusClosed)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if j.AutoFinalize {
		closedBefore := now.Add(-j.AutoFinalizeAfter)
		closed, err := j.Candidates.ListClosedProposalsBefore(ctx, closedBefore, limit)
		if err != nil {
			logger.Error("lifecycle finalize sweep listing failed",
				"event", "governance_scheduler_list_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"phase", "finalize",
				"error", err.Error(),
			)
			return errors.Join(append(errs, err)...)
		}
		for _, proposalID := range closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := j.advance(ctx, proposalID, entities.ProposalStatusClosed, entities.ProposalStatusFinalized, now)
			recordOutcome(&stats, outcome, entities.ProposalStatusFinalized)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if stats.Closed+stats.Finalized+stats.Failed > 0 {
		logger.Info("lifecycle sweep completed",
			"event", "governance_scheduler_sweep_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"closed_count", stats.Closed,
			"finalized_count", stats.Finalized,
			"skipped_count", stats.Skipped,
			"failed_count", stats.Failed,
		)
	}
	return errors.Join(errs...)
}

// advance reloads the proposal and drives it from -> to. A proposal that has
// already left from, or whose guarded write loses a race, is skipped.
func (j LifecycleScheduler) advance(
	ctx context.Context,
	proposalID string,
	from entities.ProposalStatus,
	to entities.ProposalStatus,
	now time.Time,
) (sweepOutcome, error) {
	logger := application.ResolveLogger(j.Logger)
	snapshot, err := j.Proposals.LoadSnapshot(ctx, proposalID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrProposalNotFound) {
			return outcomeSkipped, nil
		}
		return outcomeFailed, j.fail(proposalID, to, err)
	}
	if snapshot.Proposal.Status != from || !j.due(snapshot.Proposal, to, now) {
		return j.skip(proposalID, snapshot.Proposal.Status, to, "no longer eligible"), nil
	}

	checks := []func() (services.ValidationResult, error){
		func() (services.ValidationResult, error) {
			return services.ValidateStatusTransition(snapshot, to)
		},
	}
	if to == entities.ProposalStatusClosed {
		checks = append(checks, func() (services.ValidationResult, error) {
			return services.ValidateCanClose(snapshot)
		})
	}
	for _, check := range checks {
		verdict, err := check()
		if err != nil {
			return outcomeFailed, j.fail(proposalID, to, err)
		}
		if !verdict.Valid {
			return j.skip(proposalID, snapshot.Proposal.Status, to, verdict.Message), nil
		}
	}

	_, err = application.Transitioner{
		Proposals: j.Proposals,
		Notifier:  j.Notifier,
		Logger:    j.Logger,
	}.Apply(ctx, application.TransitionRequest{
		Snapshot:    snapshot,
		Target:      to,
		TriggeredBy: SchedulerActor,
		Now:         now,
	})
	if errors.Is(err, domainerrors.ErrStatusConflict) {
		return j.skip(proposalID, snapshot.Proposal.Status, to, "status changed concurrently"), nil
	}
	if err != nil {
		return outcomeFailed, j.fail(proposalID, to, err)
	}
	logger.Debug("lifecycle transition applied",
		"event", "governance_scheduler_transition_applied",
		"module", application.ModuleName,
		"layer", "worker",
		"proposal_id", proposalID,
		"to_status", string(to),
	)
	return outcomeApplied, nil
}

func (j LifecycleScheduler) due(proposal entities.Proposal, to entities.ProposalStatus, now time.Time) bool {
	switch to {
	case entities.ProposalStatusClosed:
		return proposal.EndAt != nil && now.After(*proposal.EndAt)
	case entities.ProposalStatusFinalized:
		return proposal.ClosedAt != nil && !proposal.ClosedAt.Add(j.AutoFinalizeAfter).After(now)
	default:
		return false
	}
}

func (j LifecycleScheduler) skip(
	proposalID string,
	status entities.ProposalStatus,
	to entities.ProposalStatus,
	reason string,
) sweepOutcome {
	application.ResolveLogger(j.Logger).Info("lifecycle transition skipped",
		"event", "governance_scheduler_transition_skipped",
		"module", application.ModuleName,
		"layer", "worker",
		"proposal_id", proposalID,
		"status", string(status),
		"to_status", string(to),
		"reason", reason,
	)
	return outcomeSkipped
}

func (j LifecycleScheduler) fail(proposalID string, to entities.ProposalStatus, err error) error {
	application.ResolveLogger(j.Logger).Error("lifecycle transition failed",
		"event", "governance_scheduler_transition_failed",
		"module", application.ModuleName,
		"layer", "worker",
		"proposal_id", proposalID,
		"to_status", string(to),
		"error", err.Error(),
	)
	return fmt.Errorf("proposal %s -> %s: %w", proposalID, to, err)
}

func recordOutcome(stats *ports.SweepStats, outcome sweepOutcome, to entities.ProposalStatus) {
	switch outcome {
	case outcomeApplied:
		if to == entities.ProposalStatusFinalized {
			stats.Finalized++
		} else {
			stats.Closed++
		}
	case outcomeSkipped:
		stats.Skipped++
	case outcomeFailed:
		stats.Failed++
	}
}
