package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fangov/contexts/governance/proposal-engine/adapters/memory"
	application "fangov/contexts/governance/proposal-engine/application"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/ports"
	contractsv1 "fangov/contracts/events/v1"

	"github.com/shopspring/decimal"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type sweepRecorder struct {
	sweeps []ports.SweepStats
}

func (r *sweepRecorder) ObserveSweep(stats ports.SweepStats) {
	r.sweeps = append(r.sweeps, stats)
}

type relayRecorder struct {
	published map[string]int
	failures  map[string]int
}

func newRelayRecorder() *relayRecorder {
	return &relayRecorder{published: map[string]int{}, failures: map[string]int{}}
}

func (r *relayRecorder) ObservePublished(topic string, count int) {
	r.published[topic] += count
}

func (r *relayRecorder) ObservePublishFailure(topic string) {
	r.failures[topic]++
}

type publishedEvent struct {
	topic string
	event ports.EventEnvelope
}

type stubPublisher struct {
	events []publishedEvent
	failOn int
	calls  int
}

func (p *stubPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.calls++
	if p.failOn > 0 && p.calls == p.failOn {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return nil
}

// racingRepository simulates the API path winning the guarded write.
type racingRepository struct {
	ports.ProposalRepository
}

func (racingRepository) SaveTransition(context.Context, ports.TransitionRecord) error {
	return domainerrors.ErrStatusConflict
}

// flakyOutboxRepository fails the first transitions that carry an event, the
// way a transaction aborts when its outbox insert fails.
type flakyOutboxRepository struct {
	*memory.Store
	failures int
}

func (r *flakyOutboxRepository) SaveTransition(ctx context.Context, record ports.TransitionRecord) error {
	if record.Event != nil && r.failures > 0 {
		r.failures--
		return errors.New("outbox unavailable")
	}
	return r.Store.SaveTransition(ctx, record)
}

var sweepNow = time.Date(2026, time.April, 10, 18, 0, 0, 0, time.UTC)

func seedProposal(t *testing.T, store *memory.Store, id string, status entities.ProposalStatus, endAt *time.Time, closedAt *time.Time) {
	t.Helper()
	ctx := context.Background()
	created := sweepNow.Add(-72 * time.Hour)
	if err := store.CreateProposal(ctx, entities.Proposal{
		ProposalID:     id,
		OrganizationID: "org_1",
		Title:          "Proposal " + id,
		Status:         status,
		CreatorID:      "creator_1",
		EndAt:          endAt,
		ClosedAt:       closedAt,
		Version:        1,
		CreatedAt:      created,
		UpdatedAt:      created,
	}, nil); err != nil {
		t.Fatalf("seed proposal failed: %v", err)
	}
}

func seedOption(t *testing.T, store *memory.Store, proposalID string, optionID string) {
	t.Helper()
	// Options can only be attached while Draft or Open.
	if err := store.AddOption(context.Background(), entities.ProposalOption{
		OptionID:   optionID,
		ProposalID: proposalID,
		Text:       optionID,
		CreatedAt:  sweepNow.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("seed option failed: %v", err)
	}
}

func newScheduler(store *memory.Store, metrics ports.SchedulerMetrics) LifecycleScheduler {
	return LifecycleScheduler{
		Proposals:  store,
		Candidates: store,
		Notifier:   OutboxNotifier{IDGen: store},
		Metrics:    metrics,
		Clock:      fixedClock{now: sweepNow},
		BatchSize:  10,
	}
}

func TestSchedulerClosesOnlyExpiredOpenProposals(t *testing.T) {
	store := memory.NewStore()
	ended := sweepNow.Add(-time.Minute)
	endsNow := sweepNow
	later := sweepNow.Add(time.Hour)
	seedProposal(t, store, "p_expired", entities.ProposalStatusOpen, &ended, nil)
	seedOption(t, store, "p_expired", "opt_a")
	seedOption(t, store, "p_expired", "opt_b")
	if err := store.SaveVote(context.Background(), entities.Vote{
		VoteID:      "v_1",
		ProposalID:  "p_expired",
		OptionID:    "opt_b",
		VoterID:     "fan_1",
		VotingPower: decimal.NewFromInt(4),
		CreatedAt:   sweepNow.Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("seed vote failed: %v", err)
	}
	seedProposal(t, store, "p_boundary", entities.ProposalStatusOpen, &endsNow, nil)
	seedProposal(t, store, "p_running", entities.ProposalStatusOpen, &later, nil)
	seedProposal(t, store, "p_open_ended", entities.ProposalStatusOpen, nil, nil)
	seedProposal(t, store, "p_draft", entities.ProposalStatusDraft, &ended, nil)

	metrics := &sweepRecorder{}
	if err := newScheduler(store, metrics).RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	expectStatus := map[string]entities.ProposalStatus{
		"p_expired":    entities.ProposalStatusClosed,
		"p_boundary":   entities.ProposalStatusOpen,
		"p_running":    entities.ProposalStatusOpen,
		"p_open_ended": entities.ProposalStatusOpen,
		"p_draft":      entities.ProposalStatusDraft,
	}
	for id, want := range expectStatus {
		proposal, err := store.GetProposal(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s failed: %v", id, err)
		}
		if proposal.Status != want {
			t.Fatalf("expected %s to be %s, got %s", id, want, proposal.Status)
		}
	}

	result, found, err := store.GetResult(context.Background(), "p_expired")
	if err != nil || !found {
		t.Fatalf("expected stored result, found=%v err=%v", found, err)
	}
	if result.WinningOptionID != "opt_b" || !result.ComputedAt.Equal(sweepNow) {
		t.Fatalf("unexpected result %+v", result)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != contractsv1.EventProposalClosed {
		t.Fatalf("expected one proposal.closed event, got %+v", pending)
	}
	var envelope ports.EventEnvelope
	if err := json.Unmarshal(pending[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope failed: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if data["triggered_by"] != SchedulerActor || data["from_status"] != "Open" || data["to_status"] != "Closed" {
		t.Fatalf("unexpected event data %+v", data)
	}
	if _, ok := data["result"]; !ok {
		t.Fatalf("expected closed event to carry the result summary")
	}

	if len(metrics.sweeps) != 1 || metrics.sweeps[0].Closed != 1 || metrics.sweeps[0].Failed != 0 {
		t.Fatalf("unexpected sweep stats %+v", metrics.sweeps)
	}
}

func TestSchedulerSkipsWhenTransitionLosesRace(t *testing.T) {
	store := memory.NewStore()
	ended := sweepNow.Add(-time.Minute)
	seedProposal(t, store, "p_race", entities.ProposalStatusOpen, &ended, nil)

	metrics := &sweepRecorder{}
	scheduler := newScheduler(store, metrics)
	scheduler.Proposals = racingRepository{ProposalRepository: store}
	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("a lost race should not fail the sweep: %v", err)
	}
	if metrics.sweeps[0].Skipped != 1 || metrics.sweeps[0].Closed != 0 {
		t.Fatalf("expected one skipped proposal, got %+v", metrics.sweeps[0])
	}
	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("skipped transition must not emit events")
	}
}

func TestSchedulerRetriesCloseWhenEventWriteFails(t *testing.T) {
	store := memory.NewStore()
	ended := sweepNow.Add(-time.Minute)
	seedProposal(t, store, "p_1", entities.ProposalStatusOpen, &ended, nil)
	seedOption(t, store, "p_1", "opt_a")

	metrics := &sweepRecorder{}
	scheduler := newScheduler(store, metrics)
	scheduler.Proposals = &flakyOutboxRepository{Store: store, failures: 1}

	if err := scheduler.RunOnce(context.Background()); err == nil {
		t.Fatal("expected the first sweep to report the failed write")
	}
	proposal, _ := store.GetProposal(context.Background(), "p_1")
	if proposal.Status != entities.ProposalStatusOpen {
		t.Fatalf("failed event write must leave the proposal Open, got %s", proposal.Status)
	}

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	proposal, _ = store.GetProposal(context.Background(), "p_1")
	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if proposal.Status != entities.ProposalStatusClosed {
		t.Fatalf("expected Closed after retry, got %s", proposal.Status)
	}
	if len(pending) != 1 || pending[0].EventType != contractsv1.EventProposalClosed {
		t.Fatalf("expected the closed event to be queued, got %+v", pending)
	}
	if metrics.sweeps[0].Failed != 1 || metrics.sweeps[1].Closed != 1 {
		t.Fatalf("unexpected sweep stats %+v", metrics.sweeps)
	}
}

func TestSchedulerAutoFinalizesAfterDelay(t *testing.T) {
	store := memory.NewStore()
	closedLongAgo := sweepNow.Add(-25 * time.Hour)
	closedExactly := sweepNow.Add(-24 * time.Hour)
	closedRecently := sweepNow.Add(-time.Hour)
	seedProposal(t, store, "p_old", entities.ProposalStatusClosed, nil, &closedLongAgo)
	seedProposal(t, store, "p_exact", entities.ProposalStatusClosed, nil, &closedExactly)
	seedProposal(t, store, "p_recent", entities.ProposalStatusClosed, nil, &closedRecently)

	metrics := &sweepRecorder{}
	scheduler := newScheduler(store, metrics)
	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if metrics.sweeps[0].Finalized != 0 {
		t.Fatalf("auto-finalize is off by default")
	}

	scheduler.AutoFinalize = true
	scheduler.AutoFinalizeAfter = 24 * time.Hour
	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	for id, want := range map[string]entities.ProposalStatus{
		"p_old":    entities.ProposalStatusFinalized,
		"p_exact":  entities.ProposalStatusFinalized,
		"p_recent": entities.ProposalStatusClosed,
	} {
		proposal, _ := store.GetProposal(context.Background(), id)
		if proposal.Status != want {
			t.Fatalf("expected %s to be %s, got %s", id, want, proposal.Status)
		}
	}
	if metrics.sweeps[1].Finalized != 2 {
		t.Fatalf("expected 2 finalized, got %+v", metrics.sweeps[1])
	}
}

func TestOutboxNotifierRejectsNonLifecycleStatus(t *testing.T) {
	store := memory.NewStore()
	notifier := OutboxNotifier{IDGen: store}
	_, err := notifier.PrepareTransition(context.Background(), entities.LifecycleTransition{
		ProposalID: "p_1",
		ToStatus:   entities.ProposalStatusDraft,
	})
	if err == nil {
		t.Fatal("expected error for Draft target")
	}
}

func TestOutboxRelayPublishesInOrderAndStopsOnFailure(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	seedProposal(t, store, "p_1", entities.ProposalStatusDraft, nil, nil)
	seedOption(t, store, "p_1", "opt_a")
	seedOption(t, store, "p_1", "opt_b")
	transitioner := application.Transitioner{Proposals: store, Notifier: OutboxNotifier{IDGen: store}}
	for i, to := range []entities.ProposalStatus{
		entities.ProposalStatusOpen,
		entities.ProposalStatusClosed,
		entities.ProposalStatusFinalized,
	} {
		snapshot, err := store.LoadSnapshot(ctx, "p_1")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if _, err := transitioner.Apply(ctx, application.TransitionRequest{
			Snapshot:    snapshot,
			Target:      to,
			TriggeredBy: "creator_1",
			Now:         sweepNow.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}

	publisher := &stubPublisher{failOn: 2}
	metrics := newRelayRecorder()
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: sweepNow},
		Metrics:   metrics,
		BatchSize: 10,
	}
	if err := relay.RunOnce(ctx); err == nil {
		t.Fatal("expected publish failure")
	}
	if len(publisher.events) != 1 || publisher.events[0].topic != contractsv1.EventProposalOpened {
		t.Fatalf("expected only the opened event before the failure, got %+v", publisher.events)
	}
	if publisher.events[0].event.PartitionKey != "p_1" {
		t.Fatalf("expected partition by proposal id")
	}
	if metrics.failures[contractsv1.EventProposalClosed] != 1 || metrics.published[contractsv1.EventProposalOpened] != 1 {
		t.Fatalf("unexpected relay metrics %+v %+v", metrics.published, metrics.failures)
	}

	publisher.failOn = 0
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(publisher.events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(publisher.events))
	}
	if publisher.events[1].topic != contractsv1.EventProposalClosed || publisher.events[2].topic != contractsv1.EventProposalFinalized {
		t.Fatalf("events published out of order: %+v", publisher.events)
	}
	pending, _ := store.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("empty relay pass failed: %v", err)
	}
}
