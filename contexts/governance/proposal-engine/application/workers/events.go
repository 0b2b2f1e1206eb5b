package workers

import (
	"encoding/json"
	"fmt"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	"fangov/contexts/governance/proposal-engine/ports"
	contractsv1 "fangov/contracts/events/v1"
)

const sourceService = "proposal-engine"

func eventTypeFor(status entities.ProposalStatus) (string, error) {
	switch status {
	case entities.ProposalStatusOpen:
		return contractsv1.EventProposalOpened, nil
	case entities.ProposalStatusClosed:
		return contractsv1.EventProposalClosed, nil
	case entities.ProposalStatusFinalized:
		return contractsv1.EventProposalFinalized, nil
	default:
		return "", fmt.Errorf("no lifecycle event for status %q", status)
	}
}

// newLifecycleEnvelope builds the canonical envelope for a lifecycle fact.
// Events are partitioned by proposal so consumers see one proposal's
// transitions in order.
func newLifecycleEnvelope(eventID string, transition entities.LifecycleTransition) (ports.EventEnvelope, error) {
	eventType, err := eventTypeFor(transition.ToStatus)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	data := map[string]any{
		"proposal_id":     transition.ProposalID,
		"organization_id": transition.OrganizationID,
		"from_status":     string(transition.FromStatus),
		"to_status":       string(transition.ToStatus),
		"triggered_by":    transition.TriggeredBy,
		"occurred_at":     transition.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if transition.Result != nil {
		data["result"] = transition.Result
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       transition.OccurredAt.UTC(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     transition.ProposalID,
		Data:             payload,
	}, nil
}
