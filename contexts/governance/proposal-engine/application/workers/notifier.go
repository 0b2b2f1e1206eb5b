package workers

import (
	"context"
	"log/slog"

	application "fangov/contexts/governance/proposal-engine/application"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	"fangov/contexts/governance/proposal-engine/ports"
)

// OutboxNotifier turns lifecycle facts into outbox events. The repository
// commits each event with its transition and OutboxRelay delivers it later,
// so a broker outage never blocks a transition.
type OutboxNotifier struct {
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (n OutboxNotifier) PrepareTransition(ctx context.Context, transition entities.LifecycleTransition) (ports.EventEnvelope, error) {
	logger := application.ResolveLogger(n.Logger)
	eventID, err := n.IDGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	envelope, err := newLifecycleEnvelope(eventID, transition)
	if err != nil {
		logger.Error("lifecycle event build failed",
			"event", "governance_lifecycle_event_build_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"proposal_id", transition.ProposalID,
			"to_status", string(transition.ToStatus),
			"error", err.Error(),
		)
		return ports.EventEnvelope{}, err
	}
	logger.Debug("lifecycle event prepared",
		"event", "governance_lifecycle_event_prepared",
		"module", application.ModuleName,
		"layer", "worker",
		"proposal_id", transition.ProposalID,
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
	)
	return envelope, nil
}
