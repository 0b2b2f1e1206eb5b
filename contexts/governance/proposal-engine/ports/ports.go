package ports

import (
	"context"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	contractsv1 "fangov/contracts/events/v1"

	"github.com/shopspring/decimal"
)

// TransitionRecord is one guarded status change. Implementations must apply
// it only while the stored status still equals ExpectedStatus and report
// domainerrors.ErrStatusConflict otherwise. Event, when set, is appended to
// the outbox in the same write: either both land or neither does.
type TransitionRecord struct {
	Proposal       entities.Proposal
	ExpectedStatus entities.ProposalStatus
	Result         *entities.ProposalResult
	Event          *EventEnvelope
}

type ProposalRepository interface {
	// CreateProposal stores a Draft proposal together with its initial
	// options, all or nothing.
	CreateProposal(ctx context.Context, proposal entities.Proposal, options []entities.ProposalOption) error
	GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error)
	LoadSnapshot(ctx context.Context, proposalID string) (entities.ProposalSnapshot, error)
	SaveTransition(ctx context.Context, record TransitionRecord) error
	GetResult(ctx context.Context, proposalID string) (entities.ProposalResult, bool, error)
}

type OptionRepository interface {
	AddOption(ctx context.Context, option entities.ProposalOption) error
	DeleteOption(ctx context.Context, proposalID string, optionID string) error
}

type VoteRepository interface {
	// SaveVote must reject a second vote by the same voter on the same
	// proposal with domainerrors.ErrAlreadyVoted.
	SaveVote(ctx context.Context, vote entities.Vote) error
	HasVoted(ctx context.Context, proposalID string, voterID string) (bool, error)
}

// SchedulerRepository lists proposals the lifecycle scheduler should act on.
type SchedulerRepository interface {
	ListExpiredOpenProposals(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListClosedProposalsBefore(ctx context.Context, closedBefore time.Time, limit int) ([]string, error)
}

// VotingPowerQuery resolves weighted share balances.
type VotingPowerQuery interface {
	MemberVotingPower(ctx context.Context, organizationID string, userID string) (decimal.Decimal, error)
	OrganizationVotingPower(ctx context.Context, organizationID string) (decimal.Decimal, error)
}

// LifecycleNotifier accepts lifecycle facts and turns each into the event
// that SaveTransition commits alongside the status change.
type LifecycleNotifier interface {
	PrepareTransition(ctx context.Context, transition entities.LifecycleTransition) (EventEnvelope, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type SweepStats struct {
	Closed    int
	Finalized int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

type SchedulerMetrics interface {
	ObserveSweep(stats SweepStats)
}

type RelayMetrics interface {
	ObservePublished(topic string, count int)
	ObservePublishFailure(topic string)
}
