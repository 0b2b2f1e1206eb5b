package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	received := make(chan ports.EventEnvelope, 1)
	require.NoError(t, bus.Subscribe(ctx, "proposal.closed", "test-cg", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "proposal.opened", ports.EventEnvelope{EventID: "ignored"}))
	require.NoError(t, bus.Publish(ctx, "proposal.closed", ports.EventEnvelope{EventID: "evt-1", EventType: "proposal.closed"}))

	select {
	case event := <-received:
		assert.Equal(t, "evt-1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), "proposal.finalized", ports.EventEnvelope{EventID: "evt"}))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "governance.proposal.closed", StreamName("governance", "proposal.closed"))
	assert.Equal(t, "governance.proposal.closed", StreamName(" governance. ", "proposal.closed"))
	assert.Equal(t, "proposal.closed", StreamName("", "proposal.closed"))
}

func TestStreamValuesCarryEnvelope(t *testing.T) {
	event := ports.EventEnvelope{
		EventID:      "evt-9",
		EventType:    "proposal.opened",
		PartitionKey: "proposal-1",
		OccurredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:         json.RawMessage(`{"proposal_id":"proposal-1"}`),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	values := StreamValues(event, payload)
	assert.Equal(t, "evt-9", values["event_id"])
	assert.Equal(t, "proposal.opened", values["event_type"])
	assert.Equal(t, "proposal-1", values["partition_key"])
	assert.Equal(t, "2026-03-01T12:00:00Z", values["occurred_at"])

	var decoded ports.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.JSONEq(t, `{"proposal_id":"proposal-1"}`, string(decoded.Data))
}
