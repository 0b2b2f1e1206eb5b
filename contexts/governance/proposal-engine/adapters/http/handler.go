package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fangov/contexts/governance/proposal-engine/application/commands"
	"fangov/contexts/governance/proposal-engine/application/queries"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"
	httptransport "fangov/contexts/governance/proposal-engine/transport/http"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Handler translates transport DTOs into use-case commands and back.
type Handler struct {
	Proposals commands.ProposalUseCase
	Lifecycle commands.LifecycleUseCase
	Votes     commands.VoteUseCase
	Get       queries.GetProposalUseCase
	Results   queries.GetResultsUseCase
	Logger    *slog.Logger
}

// CreateProposalHandler godoc
// @Summary Create a proposal
// @Description Creates a Draft proposal, optionally with its initial options.
// @Tags governance
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param request body httptransport.CreateProposalRequest true "Proposal draft"
// @Success 201 {object} httptransport.ProposalResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals [post]
func (h Handler) CreateProposalHandler(
	ctx context.Context,
	userID string,
	req httptransport.CreateProposalRequest,
) (httptransport.ProposalResponse, error) {
	var quorum *decimal.Decimal
	if req.QuorumRequirement != nil && strings.TrimSpace(*req.QuorumRequirement) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(*req.QuorumRequirement))
		if err != nil {
			return httptransport.ProposalResponse{}, fmt.Errorf("%w: quorum_requirement is not a decimal", domainerrors.ErrInvalidProposalInput)
		}
		quorum = &parsed
	}
	result, err := h.Proposals.CreateProposal(ctx, commands.CreateProposalCommand{
		OrganizationID:    req.OrganizationID,
		CreatorID:         userID,
		Title:             req.Title,
		Description:       req.Description,
		StartAt:           req.StartAt,
		EndAt:             req.EndAt,
		QuorumRequirement: quorum,
		Options: lo.Map(req.Options, func(option httptransport.OptionRequest, _ int) commands.OptionInput {
			return commands.OptionInput{Text: option.Text, Description: option.Description}
		}),
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(result.Proposal, result.Options), nil
}

// GetProposalHandler godoc
// @Summary Get a proposal
// @Description Returns the proposal and its options. Individual votes are never exposed.
// @Tags governance
// @Produce json
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.ProposalResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id} [get]
func (h Handler) GetProposalHandler(ctx context.Context, proposalID string) (httptransport.ProposalResponse, error) {
	snapshot, err := h.Get.Execute(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(snapshot.Proposal, snapshot.Options), nil
}

// AddOptionHandler godoc
// @Summary Add an option
// @Tags governance
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Param request body httptransport.OptionRequest true "Option"
// @Success 201 {object} httptransport.OptionResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/options [post]
func (h Handler) AddOptionHandler(
	ctx context.Context,
	userID string,
	proposalID string,
	req httptransport.OptionRequest,
) (httptransport.OptionResponse, error) {
	option, err := h.Proposals.AddOption(ctx, commands.AddOptionCommand{
		ProposalID:  proposalID,
		ActorID:     userID,
		Text:        req.Text,
		Description: req.Description,
	})
	if err != nil {
		return httptransport.OptionResponse{}, err
	}
	return mapOption(option), nil
}

// DeleteOptionHandler godoc
// @Summary Delete an option
// @Description Only while Draft and only when the option has no votes.
// @Tags governance
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Param option_id path string true "Option id"
// @Success 204
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/options/{option_id} [delete]
func (h Handler) DeleteOptionHandler(ctx context.Context, userID string, proposalID string, optionID string) error {
	return h.Proposals.DeleteOption(ctx, commands.DeleteOptionCommand{
		ProposalID: proposalID,
		OptionID:   optionID,
		ActorID:    userID,
	})
}

// OpenProposalHandler godoc
// @Summary Open a proposal for voting
// @Tags governance
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.TransitionResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/open [post]
func (h Handler) OpenProposalHandler(ctx context.Context, userID string, proposalID string) (httptransport.TransitionResponse, error) {
	return h.transition(ctx, h.Lifecycle.Open, userID, proposalID)
}

// CloseProposalHandler godoc
// @Summary Close voting and tally
// @Tags governance
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.TransitionResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/close [post]
func (h Handler) CloseProposalHandler(ctx context.Context, userID string, proposalID string) (httptransport.TransitionResponse, error) {
	return h.transition(ctx, h.Lifecycle.Close, userID, proposalID)
}

// FinalizeProposalHandler godoc
// @Summary Finalize a closed proposal
// @Tags governance
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.TransitionResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/finalize [post]
func (h Handler) FinalizeProposalHandler(ctx context.Context, userID string, proposalID string) (httptransport.TransitionResponse, error) {
	return h.transition(ctx, h.Lifecycle.Finalize, userID, proposalID)
}

func (h Handler) transition(
	ctx context.Context,
	apply func(context.Context, commands.TransitionCommand) (commands.TransitionResult, error),
	userID string,
	proposalID string,
) (httptransport.TransitionResponse, error) {
	result, err := apply(ctx, commands.TransitionCommand{ProposalID: proposalID, ActorID: userID})
	if err != nil {
		return httptransport.TransitionResponse{}, err
	}
	snapshot, err := h.Get.Execute(ctx, result.Proposal.ProposalID)
	if err != nil {
		return httptransport.TransitionResponse{}, err
	}
	response := httptransport.TransitionResponse{
		Proposal: mapProposal(snapshot.Proposal, snapshot.Options),
	}
	if result.Result != nil {
		results := mapResults(*result.Result)
		response.Results = &results
	}
	return response, nil
}

// CastVoteHandler godoc
// @Summary Cast a vote
// @Description Voting power is read from the member's share balance at cast time.
// @Tags governance
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller identity"
// @Param proposal_id path string true "Proposal id"
// @Param request body httptransport.CastVoteRequest true "Vote"
// @Success 201 {object} httptransport.VoteResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/votes [post]
func (h Handler) CastVoteHandler(
	ctx context.Context,
	userID string,
	proposalID string,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		ProposalID: proposalID,
		OptionID:   req.OptionID,
		VoterID:    userID,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		VoteID:      vote.VoteID,
		ProposalID:  vote.ProposalID,
		OptionID:    vote.OptionID,
		VoterID:     vote.VoterID,
		VotingPower: vote.VotingPower.String(),
		CreatedAt:   vote.CreatedAt,
	}, nil
}

// ResultsHandler godoc
// @Summary Get results
// @Description Live tally while Open, stored tally once Closed. Hidden while Draft.
// @Tags governance
// @Produce json
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.ResultsResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/proposals/{proposal_id}/results [get]
func (h Handler) ResultsHandler(ctx context.Context, proposalID string) (httptransport.ResultsResponse, error) {
	result, err := h.Results.Execute(ctx, proposalID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return mapResults(result), nil
}

func mapProposal(proposal entities.Proposal, options []entities.ProposalOption) httptransport.ProposalResponse {
	return httptransport.ProposalResponse{
		ProposalID:                  proposal.ProposalID,
		OrganizationID:              proposal.OrganizationID,
		Title:                       proposal.Title,
		Description:                 proposal.Description,
		ContentHash:                 proposal.ContentHash,
		Status:                      string(proposal.Status),
		CreatorID:                   proposal.CreatorID,
		StartAt:                     proposal.StartAt,
		EndAt:                       proposal.EndAt,
		QuorumRequirement:           decimalString(proposal.QuorumRequirement),
		EligibleVotingPowerSnapshot: decimalString(proposal.EligibleVotingPowerSnapshot),
		Version:                     proposal.Version,
		CreatedAt:                   proposal.CreatedAt,
		UpdatedAt:                   proposal.UpdatedAt,
		OpenedAt:                    proposal.OpenedAt,
		ClosedAt:                    proposal.ClosedAt,
		FinalizedAt:                 proposal.FinalizedAt,
		Options: lo.Map(options, func(option entities.ProposalOption, _ int) httptransport.OptionResponse {
			return mapOption(option)
		}),
	}
}

func mapOption(option entities.ProposalOption) httptransport.OptionResponse {
	return httptransport.OptionResponse{
		OptionID:    option.OptionID,
		ProposalID:  option.ProposalID,
		Text:        option.Text,
		Description: option.Description,
		CreatedAt:   option.CreatedAt,
	}
}

func mapResults(result entities.ProposalResult) httptransport.ResultsResponse {
	return httptransport.ResultsResponse{
		ProposalID:       result.ProposalID,
		TotalVotingPower: result.TotalVotingPower.String(),
		TotalVotes:       result.TotalVotes,
		Options: lo.Map(result.Options, func(tally entities.OptionTally, _ int) httptransport.OptionTallyResponse {
			return httptransport.OptionTallyResponse{
				OptionID:    tally.OptionID,
				Text:        tally.Text,
				VotingPower: tally.VotingPower.String(),
				VoteCount:   tally.VoteCount,
			}
		}),
		WinningOptionID: result.WinningOptionID,
		QuorumMet:       result.QuorumMet,
		ResultsHash:     result.ResultsHash,
		ComputedAt:      result.ComputedAt,
	}
}

func decimalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	rendered := value.String()
	return &rendered
}
