package postgresadapter

import (
	"encoding/json"
	"time"

	"fangov/contexts/governance/proposal-engine/domain/entities"

	"github.com/shopspring/decimal"
)

type proposalModel struct {
	ProposalID          string              `gorm:"column:proposal_id;primaryKey;size:64"`
	OrganizationID      string              `gorm:"column:organization_id;size:64;index"`
	Title               string              `gorm:"column:title;size:200"`
	Description         string              `gorm:"column:description;type:text"`
	ContentHash         string              `gorm:"column:content_hash;size:64"`
	Status              string              `gorm:"column:status;size:16;index:idx_governance_proposals_status_end,priority:1;index:idx_governance_proposals_status_closed,priority:1"`
	CreatorID           string              `gorm:"column:creator_id;size:64"`
	StartAt             *time.Time          `gorm:"column:start_at"`
	EndAt               *time.Time          `gorm:"column:end_at;index:idx_governance_proposals_status_end,priority:2"`
	QuorumRequirement   decimal.NullDecimal `gorm:"column:quorum_requirement;type:numeric(9,4)"` // scale = services.QuorumScale
	EligibleVotingPower decimal.NullDecimal `gorm:"column:eligible_voting_power;type:numeric(38,18)"`
	Version             int64               `gorm:"column:version"`
	CreatedAt           time.Time           `gorm:"column:created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at"`
	OpenedAt            *time.Time          `gorm:"column:opened_at"`
	ClosedAt            *time.Time          `gorm:"column:closed_at;index:idx_governance_proposals_status_closed,priority:2"`
	FinalizedAt         *time.Time          `gorm:"column:finalized_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

func proposalModelFromEntity(item entities.Proposal) proposalModel {
	return proposalModel{
		ProposalID:          item.ProposalID,
		OrganizationID:      item.OrganizationID,
		Title:               item.Title,
		Description:         item.Description,
		ContentHash:         item.ContentHash,
		Status:              string(item.Status),
		CreatorID:           item.CreatorID,
		StartAt:             normalizeOptionalTime(item.StartAt),
		EndAt:               normalizeOptionalTime(item.EndAt),
		QuorumRequirement:   nullDecimal(item.QuorumRequirement),
		EligibleVotingPower: nullDecimal(item.EligibleVotingPowerSnapshot),
		Version:             item.Version,
		CreatedAt:           item.CreatedAt.UTC(),
		UpdatedAt:           item.UpdatedAt.UTC(),
		OpenedAt:            normalizeOptionalTime(item.OpenedAt),
		ClosedAt:            normalizeOptionalTime(item.ClosedAt),
		FinalizedAt:         normalizeOptionalTime(item.FinalizedAt),
	}
}

// proposalTransitionUpdates lists the columns a lifecycle transition may
// change. Authoring fields are immutable once created.
func proposalTransitionUpdates(item entities.Proposal) map[string]any {
	return map[string]any{
		"status":                string(item.Status),
		"eligible_voting_power": nullDecimal(item.EligibleVotingPowerSnapshot),
		"version":               item.Version,
		"updated_at":            item.UpdatedAt.UTC(),
		"opened_at":             normalizeOptionalTime(item.OpenedAt),
		"closed_at":             normalizeOptionalTime(item.ClosedAt),
		"finalized_at":          normalizeOptionalTime(item.FinalizedAt),
	}
}

func (m proposalModel) toEntity() entities.Proposal {
	return entities.Proposal{
		ProposalID:                  m.ProposalID,
		OrganizationID:              m.OrganizationID,
		Title:                       m.Title,
		Description:                 m.Description,
		ContentHash:                 m.ContentHash,
		Status:                      entities.ProposalStatus(m.Status),
		CreatorID:                   m.CreatorID,
		StartAt:                     normalizeOptionalTime(m.StartAt),
		EndAt:                       normalizeOptionalTime(m.EndAt),
		QuorumRequirement:           decimalPtr(m.QuorumRequirement),
		EligibleVotingPowerSnapshot: decimalPtr(m.EligibleVotingPower),
		Version:                     m.Version,
		CreatedAt:                   m.CreatedAt.UTC(),
		UpdatedAt:                   m.UpdatedAt.UTC(),
		OpenedAt:                    normalizeOptionalTime(m.OpenedAt),
		ClosedAt:                    normalizeOptionalTime(m.ClosedAt),
		FinalizedAt:                 normalizeOptionalTime(m.FinalizedAt),
	}
}

type optionModel struct {
	OptionID    string    `gorm:"column:option_id;primaryKey;size:64"`
	ProposalID  string    `gorm:"column:proposal_id;size:64;index"`
	Text        string    `gorm:"column:text;size:500"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (optionModel) TableName() string {
	return "governance_proposal_options"
}

func optionModelFromEntity(item entities.ProposalOption) optionModel {
	return optionModel{
		OptionID:    item.OptionID,
		ProposalID:  item.ProposalID,
		Text:        item.Text,
		Description: item.Description,
		CreatedAt:   item.CreatedAt.UTC(),
	}
}

func (m optionModel) toEntity() entities.ProposalOption {
	return entities.ProposalOption{
		OptionID:    m.OptionID,
		ProposalID:  m.ProposalID,
		Text:        m.Text,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type voteModel struct {
	VoteID      string          `gorm:"column:vote_id;primaryKey;size:64"`
	ProposalID  string          `gorm:"column:proposal_id;size:64;uniqueIndex:idx_governance_votes_proposal_voter,priority:1"`
	OptionID    string          `gorm:"column:option_id;size:64;index"`
	VoterID     string          `gorm:"column:voter_id;size:64;uniqueIndex:idx_governance_votes_proposal_voter,priority:2"`
	VotingPower decimal.Decimal `gorm:"column:voting_power;type:numeric(38,18)"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
}

func (voteModel) TableName() string {
	return "governance_votes"
}

func voteModelFromEntity(item entities.Vote) voteModel {
	return voteModel{
		VoteID:      item.VoteID,
		ProposalID:  item.ProposalID,
		OptionID:    item.OptionID,
		VoterID:     item.VoterID,
		VotingPower: item.VotingPower,
		CreatedAt:   item.CreatedAt.UTC(),
	}
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:      m.VoteID,
		ProposalID:  m.ProposalID,
		OptionID:    m.OptionID,
		VoterID:     m.VoterID,
		VotingPower: m.VotingPower,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type resultModel struct {
	ProposalID       string          `gorm:"column:proposal_id;primaryKey;size:64"`
	TotalVotingPower decimal.Decimal `gorm:"column:total_voting_power;type:numeric(38,18)"`
	TotalVotes       int             `gorm:"column:total_votes"`
	Options          []byte          `gorm:"column:options"`
	WinningOptionID  string          `gorm:"column:winning_option_id;size:64"`
	QuorumMet        bool            `gorm:"column:quorum_met"`
	ResultsHash      string          `gorm:"column:results_hash;size:64"`
	ComputedAt       time.Time       `gorm:"column:computed_at"`
}

func (resultModel) TableName() string {
	return "governance_proposal_results"
}

type tallyRow struct {
	OptionID    string          `json:"option_id"`
	Text        string          `json:"text"`
	VotingPower decimal.Decimal `json:"voting_power"`
	VoteCount   int             `json:"vote_count"`
}

func resultModelFromEntity(item entities.ProposalResult) (resultModel, error) {
	rows := make([]tallyRow, 0, len(item.Options))
	for _, option := range item.Options {
		rows = append(rows, tallyRow(option))
	}
	options, err := json.Marshal(rows)
	if err != nil {
		return resultModel{}, err
	}
	return resultModel{
		ProposalID:       item.ProposalID,
		TotalVotingPower: item.TotalVotingPower,
		TotalVotes:       item.TotalVotes,
		Options:          options,
		WinningOptionID:  item.WinningOptionID,
		QuorumMet:        item.QuorumMet,
		ResultsHash:      item.ResultsHash,
		ComputedAt:       item.ComputedAt.UTC(),
	}, nil
}

func (m resultModel) toEntity() (entities.ProposalResult, error) {
	var rows []tallyRow
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &rows); err != nil {
			return entities.ProposalResult{}, err
		}
	}
	options := make([]entities.OptionTally, 0, len(rows))
	for _, row := range rows {
		options = append(options, entities.OptionTally(row))
	}
	return entities.ProposalResult{
		ProposalID:       m.ProposalID,
		TotalVotingPower: m.TotalVotingPower,
		TotalVotes:       m.TotalVotes,
		Options:          options,
		WinningOptionID:  m.WinningOptionID,
		QuorumMet:        m.QuorumMet,
		ResultsHash:      m.ResultsHash,
		ComputedAt:       m.ComputedAt.UTC(),
	}, nil
}

// membershipModel holds share balances synced from the organization service.
type membershipModel struct {
	OrganizationID string          `gorm:"column:organization_id;primaryKey;size:64"`
	UserID         string          `gorm:"column:user_id;primaryKey;size:64"`
	VotingPower    decimal.Decimal `gorm:"column:voting_power;type:numeric(38,18)"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (membershipModel) TableName() string {
	return "governance_memberships"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey;size:64"`
	EventType    string     `gorm:"column:event_type;size:64"`
	PartitionKey string     `gorm:"column:partition_key;size:64"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;size:16;index:idx_governance_outbox_status_created,priority:1"`
	CreatedAt    time.Time  `gorm:"column:created_at;index:idx_governance_outbox_status_created,priority:2"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

func decimalPtr(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	d := value.Decimal
	return &d
}
