package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository persists proposals through gorm. It runs unchanged on the
// postgres and mysql dialects.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates or updates every governance table.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&proposalModel{},
		&optionModel{},
		&voteModel{},
		&resultModel{},
		&membershipModel{},
		&outboxModel{},
	)
}

// CreateProposal inserts the proposal and its initial options in one
// transaction.
func (r *Repository) CreateProposal(ctx context.Context, proposal entities.Proposal, options []entities.ProposalOption) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := proposalModelFromEntity(proposal)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, option := range options {
			if option.ProposalID != proposal.ProposalID {
				return domainerrors.ErrInvalidProposalInput
			}
			optionRow := optionModelFromEntity(option)
			if err := tx.Create(&optionRow).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		if !errors.Is(err, domainerrors.ErrInvalidProposalInput) {
			r.logError("create proposal failed", err, "proposal_id", proposal.ProposalID)
		}
		return err
	}
	return nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	row, err := findProposal(r.db.WithContext(ctx), strings.TrimSpace(proposalID), false)
	if err != nil {
		return entities.Proposal{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) LoadSnapshot(ctx context.Context, proposalID string) (entities.ProposalSnapshot, error) {
	proposalID = strings.TrimSpace(proposalID)
	var snapshot entities.ProposalSnapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findProposal(tx, proposalID, false)
		if err != nil {
			return err
		}

		var options []optionModel
		if err := tx.Where("proposal_id = ?", proposalID).
			Order("created_at ASC").
			Order("option_id ASC").
			Find(&options).
			Error; err != nil {
			return err
		}
		var votes []voteModel
		if err := tx.Where("proposal_id = ?", proposalID).
			Order("created_at ASC").
			Order("vote_id ASC").
			Find(&votes).
			Error; err != nil {
			return err
		}

		snapshot.Proposal = row.toEntity()
		snapshot.Options = make([]entities.ProposalOption, 0, len(options))
		for _, option := range options {
			snapshot.Options = append(snapshot.Options, option.toEntity())
		}
		snapshot.Votes = make([]entities.Vote, 0, len(votes))
		for _, vote := range votes {
			snapshot.Votes = append(snapshot.Votes, vote.toEntity())
		}
		return nil
	})
	if err != nil {
		return entities.ProposalSnapshot{}, err
	}
	return snapshot, nil
}

// SaveTransition updates the proposal only while its stored status still
// equals ExpectedStatus, and stores the result and the outbox event in the
// same transaction.
func (r *Repository) SaveTransition(ctx context.Context, record ports.TransitionRecord) error {
	proposalID := strings.TrimSpace(record.Proposal.ProposalID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&proposalModel{}).
			Where("proposal_id = ? AND status = ?", proposalID, string(record.ExpectedStatus)).
			Updates(proposalTransitionUpdates(record.Proposal))
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			if _, err := findProposal(tx, proposalID, false); err != nil {
				return err
			}
			return domainerrors.ErrStatusConflict
		}

		if record.Result != nil {
			row, err := resultModelFromEntity(*record.Result)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "proposal_id"}},
				UpdateAll: true,
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		if record.Event == nil {
			return nil
		}
		return appendOutbox(tx, *record.Event)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrStatusConflict) && !errors.Is(err, domainerrors.ErrProposalNotFound) {
		r.logError("save proposal transition failed", err,
			"proposal_id", proposalID,
			"expected_status", string(record.ExpectedStatus),
			"to_status", string(record.Proposal.Status),
		)
	}
	return err
}

func (r *Repository) GetResult(ctx context.Context, proposalID string) (entities.ProposalResult, bool, error) {
	var row resultModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProposalResult{}, false, nil
		}
		return entities.ProposalResult{}, false, err
	}
	result, err := row.toEntity()
	if err != nil {
		return entities.ProposalResult{}, false, err
	}
	return result, true, nil
}

func (r *Repository) AddOption(ctx context.Context, option entities.ProposalOption) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := findProposal(tx, option.ProposalID, true)
		if err != nil {
			return err
		}
		status := entities.ProposalStatus(proposal.Status)
		if status != entities.ProposalStatusDraft && status != entities.ProposalStatusOpen {
			return domainerrors.ErrStatusConflict
		}
		row := optionModelFromEntity(option)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return err
		}
		return nil
	})
}

func (r *Repository) DeleteOption(ctx context.Context, proposalID string, optionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := findProposal(tx, proposalID, true)
		if err != nil {
			return err
		}
		if entities.ProposalStatus(proposal.Status) != entities.ProposalStatusDraft {
			return domainerrors.ErrStatusConflict
		}
		var votes int64
		if err := tx.Model(&voteModel{}).
			Where("proposal_id = ? AND option_id = ?", proposalID, optionID).
			Count(&votes).
			Error; err != nil {
			return err
		}
		if votes > 0 {
			return domainerrors.ErrStatusConflict
		}
		result := tx.Where("proposal_id = ? AND option_id = ?", proposalID, optionID).
			Delete(&optionModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrOptionNotFound
		}
		return nil
	})
}

// SaveVote locks the proposal row so a vote cannot commit after a concurrent
// close. The (proposal_id, voter_id) unique index rejects double votes.
func (r *Repository) SaveVote(ctx context.Context, vote entities.Vote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := findProposal(tx, vote.ProposalID, true)
		if err != nil {
			return err
		}
		if entities.ProposalStatus(proposal.Status) != entities.ProposalStatusOpen {
			return domainerrors.ErrStatusConflict
		}
		var options int64
		if err := tx.Model(&optionModel{}).
			Where("proposal_id = ? AND option_id = ?", vote.ProposalID, vote.OptionID).
			Count(&options).
			Error; err != nil {
			return err
		}
		if options == 0 {
			return domainerrors.ErrOptionNotFound
		}
		row := voteModelFromEntity(vote)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyVoted
			}
			return err
		}
		return nil
	})
}

func (r *Repository) HasVoted(ctx context.Context, proposalID string, voterID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("proposal_id = ? AND voter_id = ?", strings.TrimSpace(proposalID), strings.TrimSpace(voterID)).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) ListExpiredOpenProposals(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("status = ? AND end_at IS NOT NULL AND end_at < ?", string(entities.ProposalStatusOpen), now.UTC()).
		Order("end_at ASC").
		Order("proposal_id ASC").
		Limit(limit).
		Pluck("proposal_id", &ids).
		Error
	return ids, err
}

func (r *Repository) ListClosedProposalsBefore(ctx context.Context, closedBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("status = ? AND closed_at IS NOT NULL AND closed_at <= ?", string(entities.ProposalStatusClosed), closedBefore.UTC()).
		Order("closed_at ASC").
		Order("proposal_id ASC").
		Limit(limit).
		Pluck("proposal_id", &ids).
		Error
	return ids, err
}

func (r *Repository) MemberVotingPower(ctx context.Context, organizationID string, userID string) (decimal.Decimal, error) {
	var row membershipModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", strings.TrimSpace(organizationID), strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return row.VotingPower, nil
}

func (r *Repository) OrganizationVotingPower(ctx context.Context, organizationID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&membershipModel{}).
		Select("SUM(voting_power)").
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SetVotingPower upserts a member's share balance.
func (r *Repository) SetVotingPower(ctx context.Context, organizationID string, userID string, power decimal.Decimal) error {
	row := membershipModel{
		OrganizationID: strings.TrimSpace(organizationID),
		UserID:         strings.TrimSpace(userID),
		VotingPower:    power,
		UpdatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"voting_power", "updated_at"}),
		}).
		Create(&row).
		Error
}

// appendOutbox inserts a pending outbox row inside tx. A replay of the same
// event id is accepted only when the payload is identical.
func appendOutbox(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	createResult := tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := tx.
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).
		Error; err != nil {
		return err
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func findProposal(tx *gorm.DB, proposalID string, forUpdate bool) (proposalModel, error) {
	query := tx
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row proposalModel
	if err := query.Where("proposal_id = ?", proposalID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return proposalModel{}, domainerrors.ErrProposalNotFound
		}
		return proposalModel{}, err
	}
	return row, nil
}

func (r *Repository) logError(message string, err error, args ...any) {
	attrs := append([]any{
		"event", "governance_repository_error",
		"module", "governance/proposal-engine",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error(message, attrs...)
}

// isUniqueViolation recognises duplicate-key errors from either dialect.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

var (
	_ ports.ProposalRepository  = (*Repository)(nil)
	_ ports.OptionRepository    = (*Repository)(nil)
	_ ports.VoteRepository      = (*Repository)(nil)
	_ ports.SchedulerRepository = (*Repository)(nil)
	_ ports.VotingPowerQuery    = (*Repository)(nil)
	_ ports.OutboxRepository    = (*Repository)(nil)
)
