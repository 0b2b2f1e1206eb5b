package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"

	"github.com/shopspring/decimal"
)

const MaxTitleLength = 200

// QuorumScale is the number of decimal places a quorum requirement may carry.
// Stores keep the requirement at exactly this scale.
const QuorumScale = 4

var (
	minQuorum = decimal.Zero
	maxQuorum = decimal.NewFromInt(100)
)

// ValidationResult is the pass/fail outcome of a governance rule check.
// Message is user-facing and only set when Valid is false.
type ValidationResult struct {
	Valid   bool
	Message string
}

func pass() ValidationResult {
	return ValidationResult{Valid: true}
}

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// Err converts a failed result into a *domainerrors.ValidationError.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return domainerrors.NewValidationError(r.Message)
}

type transition struct {
	from entities.ProposalStatus
	to   entities.ProposalStatus
}

// allowedTransitions is the complete lifecycle graph. Anything absent is
// rejected, including same-state pairs.
var allowedTransitions = map[transition]struct{}{
	{entities.ProposalStatusDraft, entities.ProposalStatusOpen}:       {},
	{entities.ProposalStatusOpen, entities.ProposalStatusClosed}:      {},
	{entities.ProposalStatusClosed, entities.ProposalStatusFinalized}: {},
}

// IsAllowedTransition reports whether from -> to is an edge of the lifecycle graph.
func IsAllowedTransition(from entities.ProposalStatus, to entities.ProposalStatus) bool {
	_, ok := allowedTransitions[transition{from: from, to: to}]
	return ok
}

func ValidateStatusTransition(
	snapshot entities.ProposalSnapshot,
	target entities.ProposalStatus,
) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	if !target.IsKnown() {
		return ValidationResult{}, fmt.Errorf("%w: unknown target status %q", domainerrors.ErrMalformedSnapshot, target)
	}
	current := snapshot.Proposal.Status
	if current == target {
		return fail("Proposal is already in %s status", current), nil
	}
	if !IsAllowedTransition(current, target) {
		return fail("Cannot transition from %s to %s", current, target), nil
	}
	return pass(), nil
}

func ValidateCanOpen(snapshot entities.ProposalSnapshot) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	if snapshot.Proposal.Status != entities.ProposalStatusDraft {
		return fail("Only Draft proposals can be opened"), nil
	}
	switch len(snapshot.Options) {
	case 0:
		return fail("Proposal must have at least one option"), nil
	case 1:
		return fail("Proposal must have at least two options"), nil
	}
	return pass(), nil
}

// ValidateCanClose accepts Draft as well as Open. Callers that mutate status
// also consult ValidateStatusTransition, which only permits Open -> Closed.
func ValidateCanClose(snapshot entities.ProposalSnapshot) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	switch snapshot.Proposal.Status {
	case entities.ProposalStatusDraft, entities.ProposalStatusOpen:
		return pass(), nil
	default:
		return fail("Cannot close proposal in %s status", snapshot.Proposal.Status), nil
	}
}

// ValidateCanVote evaluates the voting window against now. Both window
// bounds are inclusive.
func ValidateCanVote(
	snapshot entities.ProposalSnapshot,
	hasExistingVote bool,
	now time.Time,
) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	proposal := snapshot.Proposal
	if proposal.Status != entities.ProposalStatusOpen {
		return fail("Cannot vote on proposal in %s state", proposal.Status), nil
	}
	if hasExistingVote {
		return fail("You have already voted on this proposal"), nil
	}
	if proposal.StartAt != nil && now.Before(*proposal.StartAt) {
		return fail("Voting has not started yet"), nil
	}
	if proposal.EndAt != nil && now.After(*proposal.EndAt) {
		return fail("Voting period has ended"), nil
	}
	return pass(), nil
}

func ValidateCanAddOption(snapshot entities.ProposalSnapshot) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	switch snapshot.Proposal.Status {
	case entities.ProposalStatusDraft, entities.ProposalStatusOpen:
		return pass(), nil
	default:
		return fail("Cannot add options to proposal in %s status", snapshot.Proposal.Status), nil
	}
}

func ValidateCanDeleteOption(
	snapshot entities.ProposalSnapshot,
	optionHasVotes bool,
) (ValidationResult, error) {
	if err := checkSnapshot(snapshot); err != nil {
		return ValidationResult{}, err
	}
	if snapshot.Proposal.Status != entities.ProposalStatusDraft {
		return fail("Cannot delete options from proposal in %s status", snapshot.Proposal.Status), nil
	}
	if optionHasVotes {
		return fail("Cannot delete an option that has votes"), nil
	}
	return pass(), nil
}

// AreResultsVisible is a policy predicate: tallies may be shown to end users
// once a proposal has left Draft.
func AreResultsVisible(status entities.ProposalStatus) bool {
	switch status {
	case entities.ProposalStatusOpen, entities.ProposalStatusClosed, entities.ProposalStatusFinalized:
		return true
	default:
		return false
	}
}

// ValidateProposalDraft checks the fields supplied when a proposal is created.
func ValidateProposalDraft(proposal entities.Proposal) ValidationResult {
	title := strings.TrimSpace(proposal.Title)
	if title == "" {
		return fail("Proposal title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fail("Proposal title must be at most %d characters", MaxTitleLength)
	}
	if q := proposal.QuorumRequirement; q != nil {
		if q.LessThan(minQuorum) || q.GreaterThan(maxQuorum) {
			return fail("Quorum requirement must be between 0 and 100")
		}
		if !q.Equal(q.Round(QuorumScale)) {
			return fail("Quorum requirement must have at most %d decimal places", QuorumScale)
		}
	}
	if proposal.StartAt != nil && proposal.EndAt != nil && !proposal.StartAt.Before(*proposal.EndAt) {
		return fail("Voting start must be before voting end")
	}
	return pass()
}

func checkSnapshot(snapshot entities.ProposalSnapshot) error {
	if strings.TrimSpace(snapshot.Proposal.ProposalID) == "" {
		return fmt.Errorf("%w: proposal id is empty", domainerrors.ErrMalformedSnapshot)
	}
	if !snapshot.Proposal.Status.IsKnown() {
		return fmt.Errorf("%w: unknown status %q", domainerrors.ErrMalformedSnapshot, snapshot.Proposal.Status)
	}
	return nil
}
