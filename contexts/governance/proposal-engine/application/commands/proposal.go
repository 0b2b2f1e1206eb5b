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

	"github.com/shopspring/decimal"
)

type OptionInput struct {
	Text        string
	Description string
}

type CreateProposalCommand struct {
	OrganizationID    string
	CreatorID         string
	Title             string
	Description       string
	StartAt           *time.Time
	EndAt             *time.Time
	QuorumRequirement *decimal.Decimal
	Options           []OptionInput
}

type CreateProposalResult struct {
	Proposal entities.Proposal
	Options  []entities.ProposalOption
}

type AddOptionCommand struct {
	ProposalID  string
	ActorID     string
	Text        string
	Description string
}

type DeleteOptionCommand struct {
	ProposalID string
	OptionID   string
	ActorID    string
}

// ProposalUseCase owns Draft authoring: proposal creation and option edits.
type ProposalUseCase struct {
	Proposals ports.ProposalRepository
	Options   ports.OptionRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (uc ProposalUseCase) CreateProposal(ctx context.Context, cmd CreateProposalCommand) (CreateProposalResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	creatorID := strings.TrimSpace(cmd.CreatorID)
	organizationID := strings.TrimSpace(cmd.OrganizationID)
	if creatorID == "" {
		return CreateProposalResult{}, domainerrors.ErrActorRequired
	}
	if organizationID == "" {
		return CreateProposalResult{}, domainerrors.ErrInvalidProposalInput
	}

	now := uc.now()
	proposal := entities.Proposal{
		OrganizationID:    organizationID,
		Title:             strings.TrimSpace(cmd.Title),
		Description:       strings.TrimSpace(cmd.Description),
		Status:            entities.ProposalStatusDraft,
		CreatorID:         creatorID,
		StartAt:           utcPtr(cmd.StartAt),
		EndAt:             utcPtr(cmd.EndAt),
		QuorumRequirement: cmd.QuorumRequirement,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if verdict := services.ValidateProposalDraft(proposal); !verdict.Valid {
		logger.Warn("proposal create validation failed",
			"event", "governance_proposal_create_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"organization_id", organizationID,
			"creator_id", creatorID,
			"reason", verdict.Message,
		)
		return CreateProposalResult{}, verdict.Err()
	}
	for _, option := range cmd.Options {
		if strings.TrimSpace(option.Text) == "" {
			return CreateProposalResult{}, domainerrors.ErrInvalidProposalInput
		}
	}

	proposalID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateProposalResult{}, err
	}
	proposal.ProposalID = proposalID
	proposal.ContentHash = services.ContentHash(proposal.Title, proposal.Description)

	options := make([]entities.ProposalOption, 0, len(cmd.Options))
	for _, input := range cmd.Options {
		option, err := uc.newOption(ctx, proposalID, input.Text, input.Description, now)
		if err != nil {
			return CreateProposalResult{}, err
		}
		options = append(options, option)
	}
	if err := uc.Proposals.CreateProposal(ctx, proposal, options); err != nil {
		return CreateProposalResult{}, err
	}

	logger.Info("proposal created",
		"event", "governance_proposal_created",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"organization_id", proposal.OrganizationID,
		"creator_id", creatorID,
		"option_count", len(options),
	)
	return CreateProposalResult{Proposal: proposal, Options: options}, nil
}

func (uc ProposalUseCase) AddOption(ctx context.Context, cmd AddOptionCommand) (entities.ProposalOption, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.ActorID) == "" {
		return entities.ProposalOption{}, domainerrors.ErrActorRequired
	}
	if strings.TrimSpace(cmd.ProposalID) == "" || strings.TrimSpace(cmd.Text) == "" {
		return entities.ProposalOption{}, domainerrors.ErrInvalidProposalInput
	}

	snapshot, err := uc.Proposals.LoadSnapshot(ctx, strings.TrimSpace(cmd.ProposalID))
	if err != nil {
		return entities.ProposalOption{}, err
	}
	verdict, err := services.ValidateCanAddOption(snapshot)
	if err != nil {
		return entities.ProposalOption{}, err
	}
	if !verdict.Valid {
		logger.Warn("proposal option add rejected",
			"event", "governance_option_add_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", snapshot.Proposal.ProposalID,
			"status", string(snapshot.Proposal.Status),
			"reason", verdict.Message,
		)
		return entities.ProposalOption{}, verdict.Err()
	}

	option, err := uc.newOption(ctx, snapshot.Proposal.ProposalID, cmd.Text, cmd.Description, uc.now())
	if err != nil {
		return entities.ProposalOption{}, err
	}
	if err := uc.Options.AddOption(ctx, option); err != nil {
		return entities.ProposalOption{}, err
	}

	logger.Info("proposal option added",
		"event", "governance_option_added",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", option.ProposalID,
		"option_id", option.OptionID,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return option, nil
}

func (uc ProposalUseCase) DeleteOption(ctx context.Context, cmd DeleteOptionCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.ActorID) == "" {
		return domainerrors.ErrActorRequired
	}
	optionID := strings.TrimSpace(cmd.OptionID)
	if strings.TrimSpace(cmd.ProposalID) == "" || optionID == "" {
		return domainerrors.ErrInvalidProposalInput
	}

	snapshot, err := uc.Proposals.LoadSnapshot(ctx, strings.TrimSpace(cmd.ProposalID))
	if err != nil {
		return err
	}
	if !snapshot.HasOption(optionID) {
		return domainerrors.ErrOptionNotFound
	}
	verdict, err := services.ValidateCanDeleteOption(snapshot, snapshot.OptionHasVotes(optionID))
	if err != nil {
		return err
	}
	if !verdict.Valid {
		logger.Warn("proposal option delete rejected",
			"event", "governance_option_delete_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", snapshot.Proposal.ProposalID,
			"option_id", optionID,
			"reason", verdict.Message,
		)
		return verdict.Err()
	}
	if err := uc.Options.DeleteOption(ctx, snapshot.Proposal.ProposalID, optionID); err != nil {
		return err
	}

	logger.Info("proposal option deleted",
		"event", "governance_option_deleted",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", snapshot.Proposal.ProposalID,
		"option_id", optionID,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return nil
}

func (uc ProposalUseCase) newOption(
	ctx context.Context,
	proposalID string,
	text string,
	description string,
	now time.Time,
) (entities.ProposalOption, error) {
	optionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.ProposalOption{}, err
	}
	return entities.ProposalOption{
		OptionID:    optionID,
		ProposalID:  proposalID,
		Text:        strings.TrimSpace(text),
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
	}, nil
}

func (uc ProposalUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
