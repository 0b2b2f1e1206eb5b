package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       int64
	published bool
}

// Store is an in-process implementation of every proposal-engine port. One
// mutex serializes writers, which gives SaveTransition and SaveVote the same
// check-then-write atomicity the SQL adapter gets from row locks.
type Store struct {
	mu deadlock.RWMutex

	proposals map[string]entities.Proposal
	options   map[string][]entities.ProposalOption
	votes     map[string][]entities.Vote
	results   map[string]entities.ProposalResult
	power     map[string]map[string]decimal.Decimal

	outbox    map[string]outboxRecord
	outboxSeq int64
}

func NewStore() *Store {
	return &Store{
		proposals: make(map[string]entities.Proposal),
		options:   make(map[string][]entities.ProposalOption),
		votes:     make(map[string][]entities.Vote),
		results:   make(map[string]entities.ProposalResult),
		power:     make(map[string]map[string]decimal.Decimal),
		outbox:    make(map[string]outboxRecord),
	}
}

// SetVotingPower seeds a member's share balance in an organization.
func (s *Store) SetVotingPower(organizationID string, userID string, power decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	organizationID = strings.TrimSpace(organizationID)
	members, ok := s.power[organizationID]
	if !ok {
		members = make(map[string]decimal.Decimal)
		s.power[organizationID] = members
	}
	members[strings.TrimSpace(userID)] = power
}

func (s *Store) CreateProposal(_ context.Context, proposal entities.Proposal, options []entities.ProposalOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.proposals[proposal.ProposalID]; exists {
		return domainerrors.ErrConflict
	}
	seen := make(map[string]struct{}, len(options))
	for _, option := range options {
		if option.ProposalID != proposal.ProposalID {
			return domainerrors.ErrInvalidProposalInput
		}
		if _, dup := seen[option.OptionID]; dup {
			return domainerrors.ErrConflict
		}
		seen[option.OptionID] = struct{}{}
	}
	s.proposals[proposal.ProposalID] = proposal
	if len(options) > 0 {
		s.options[proposal.ProposalID] = append([]entities.ProposalOption(nil), options...)
	}
	return nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proposal, exists := s.proposals[strings.TrimSpace(proposalID)]
	if !exists {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return proposal, nil
}

func (s *Store) LoadSnapshot(_ context.Context, proposalID string) (entities.ProposalSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proposalID = strings.TrimSpace(proposalID)
	proposal, exists := s.proposals[proposalID]
	if !exists {
		return entities.ProposalSnapshot{}, domainerrors.ErrProposalNotFound
	}
	return entities.ProposalSnapshot{
		Proposal: proposal,
		Options:  append([]entities.ProposalOption(nil), s.options[proposalID]...),
		Votes:    append([]entities.Vote(nil), s.votes[proposalID]...),
	}, nil
}

func (s *Store) SaveTransition(_ context.Context, record ports.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.proposals[record.Proposal.ProposalID]
	if !exists {
		return domainerrors.ErrProposalNotFound
	}
	if current.Status != record.ExpectedStatus {
		return domainerrors.ErrStatusConflict
	}
	var (
		event   outboxRecord
		enqueue bool
	)
	if record.Event != nil {
		var err error
		event, enqueue, err = s.stageOutbox(*record.Event)
		if err != nil {
			return err
		}
	}

	s.proposals[record.Proposal.ProposalID] = record.Proposal
	if record.Result != nil {
		result := *record.Result
		result.Options = append([]entities.OptionTally(nil), record.Result.Options...)
		s.results[record.Proposal.ProposalID] = result
	}
	if enqueue {
		s.outboxSeq++
		event.seq = s.outboxSeq
		s.outbox[event.message.OutboxID] = event
	}
	return nil
}

func (s *Store) GetResult(_ context.Context, proposalID string) (entities.ProposalResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[strings.TrimSpace(proposalID)]
	if !ok {
		return entities.ProposalResult{}, false, nil
	}
	result.Options = append([]entities.OptionTally(nil), result.Options...)
	return result, true, nil
}

func (s *Store) AddOption(_ context.Context, option entities.ProposalOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, exists := s.proposals[option.ProposalID]
	if !exists {
		return domainerrors.ErrProposalNotFound
	}
	if proposal.Status != entities.ProposalStatusDraft && proposal.Status != entities.ProposalStatusOpen {
		return domainerrors.ErrStatusConflict
	}
	for _, existing := range s.options[option.ProposalID] {
		if existing.OptionID == option.OptionID {
			return domainerrors.ErrConflict
		}
	}
	s.options[option.ProposalID] = append(s.options[option.ProposalID], option)
	return nil
}

func (s *Store) DeleteOption(_ context.Context, proposalID string, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, exists := s.proposals[proposalID]
	if !exists {
		return domainerrors.ErrProposalNotFound
	}
	if proposal.Status != entities.ProposalStatusDraft {
		return domainerrors.ErrStatusConflict
	}
	for _, vote := range s.votes[proposalID] {
		if vote.OptionID == optionID {
			return domainerrors.ErrStatusConflict
		}
	}
	options := s.options[proposalID]
	for i, option := range options {
		if option.OptionID == optionID {
			s.options[proposalID] = append(options[:i:i], options[i+1:]...)
			return nil
		}
	}
	return domainerrors.ErrOptionNotFound
}

func (s *Store) SaveVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, exists := s.proposals[vote.ProposalID]
	if !exists {
		return domainerrors.ErrProposalNotFound
	}
	if proposal.Status != entities.ProposalStatusOpen {
		return domainerrors.ErrStatusConflict
	}
	found := false
	for _, option := range s.options[vote.ProposalID] {
		if option.OptionID == vote.OptionID {
			found = true
			break
		}
	}
	if !found {
		return domainerrors.ErrOptionNotFound
	}
	for _, existing := range s.votes[vote.ProposalID] {
		if existing.VoterID == vote.VoterID {
			return domainerrors.ErrAlreadyVoted
		}
	}
	s.votes[vote.ProposalID] = append(s.votes[vote.ProposalID], vote)
	return nil
}

func (s *Store) HasVoted(_ context.Context, proposalID string, voterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, vote := range s.votes[strings.TrimSpace(proposalID)] {
		if vote.VoterID == strings.TrimSpace(voterID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListExpiredOpenProposals(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.Status == entities.ProposalStatusOpen && proposal.EndAt != nil && now.After(*proposal.EndAt) {
			items = append(items, proposal)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndAt.Equal(*items[j].EndAt) {
			return items[i].EndAt.Before(*items[j].EndAt)
		}
		return items[i].ProposalID < items[j].ProposalID
	})
	return proposalIDs(items, limit), nil
}

func (s *Store) ListClosedProposalsBefore(_ context.Context, closedBefore time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.Status == entities.ProposalStatusClosed && proposal.ClosedAt != nil && !proposal.ClosedAt.After(closedBefore) {
			items = append(items, proposal)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ClosedAt.Equal(*items[j].ClosedAt) {
			return items[i].ClosedAt.Before(*items[j].ClosedAt)
		}
		return items[i].ProposalID < items[j].ProposalID
	})
	return proposalIDs(items, limit), nil
}

func proposalIDs(items []entities.Proposal, limit int) []string {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProposalID)
	}
	return ids
}

func (s *Store) MemberVotingPower(_ context.Context, organizationID string, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	power, ok := s.power[strings.TrimSpace(organizationID)][strings.TrimSpace(userID)]
	if !ok {
		return decimal.Zero, nil
	}
	return power, nil
}

func (s *Store) OrganizationVotingPower(_ context.Context, organizationID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, power := range s.power[strings.TrimSpace(organizationID)] {
		total = total.Add(power)
	}
	return total, nil
}

// stageOutbox validates an event without writing it. A replay of an
// identical payload is accepted and reports enqueue=false. Callers hold mu.
func (s *Store) stageOutbox(envelope ports.EventEnvelope) (outboxRecord, bool, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return outboxRecord{}, false, err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return outboxRecord{}, false, domainerrors.ErrConflict
		}
		return outboxRecord{}, false, nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}, true, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.published {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].message.CreatedAt.Equal(rows[j].message.CreatedAt) {
			return rows[i].message.CreatedAt.Before(rows[j].message.CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.ProposalRepository  = (*Store)(nil)
	_ ports.OptionRepository    = (*Store)(nil)
	_ ports.VoteRepository      = (*Store)(nil)
	_ ports.SchedulerRepository = (*Store)(nil)
	_ ports.VotingPowerQuery    = (*Store)(nil)
	_ ports.OutboxRepository    = (*Store)(nil)
	_ ports.Clock               = (*Store)(nil)
	_ ports.IDGenerator         = (*Store)(nil)
)
