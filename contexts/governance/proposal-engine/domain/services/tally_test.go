package services

import (
	"testing"

	"fangov/contexts/governance/proposal-engine/domain/entities"
	domainerrors "fangov/contexts/governance/proposal-engine/domain/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func tallySnapshot(optionIDs []string, votes map[string][]string) entities.ProposalSnapshot {
	snapshot := entities.ProposalSnapshot{
		Proposal: entities.Proposal{
			ProposalID: "proposal-tally",
			Status:     entities.ProposalStatusClosed,
		},
	}
	for _, id := range optionIDs {
		snapshot.Options = append(snapshot.Options, entities.ProposalOption{OptionID: id, ProposalID: "proposal-tally"})
	}
	n := 0
	for _, id := range optionIDs {
		for _, power := range votes[id] {
			n++
			snapshot.Votes = append(snapshot.Votes, entities.Vote{
				VoteID:      "vote-" + string(rune('0'+n)),
				ProposalID:  "proposal-tally",
				OptionID:    id,
				VoterID:     "voter-" + string(rune('0'+n)),
				VotingPower: dec(power),
			})
		}
	}
	return snapshot
}

func TestComputeResultsAggregatesPerOption(t *testing.T) {
	snapshot := tallySnapshot([]string{"O1", "O2"}, map[string][]string{
		"O1": {"100", "50", "25"},
		"O2": {"80", "90"},
	})

	result, err := ComputeResults(snapshot)
	require.NoError(t, err)

	assert.True(t, result.TotalVotingPower.Equal(dec("345")))
	assert.Equal(t, 5, result.TotalVotes)
	require.Len(t, result.Options, 2)
	assert.Equal(t, "O1", result.Options[0].OptionID)
	assert.True(t, result.Options[0].VotingPower.Equal(dec("175")))
	assert.Equal(t, 3, result.Options[0].VoteCount)
	assert.True(t, result.Options[1].VotingPower.Equal(dec("170")))
	assert.Equal(t, 2, result.Options[1].VoteCount)
	assert.Equal(t, "O1", result.WinningOptionID)
	assert.Len(t, result.ResultsHash, 64)
}

func TestComputeResultsTieBreaksOnLowestIdentifier(t *testing.T) {
	twoWay := tallySnapshot([]string{"opt-b", "opt-a"}, map[string][]string{
		"opt-a": {"100"},
		"opt-b": {"100"},
	})
	result, err := ComputeResults(twoWay)
	require.NoError(t, err)
	assert.Equal(t, "opt-a", result.WinningOptionID)

	threeWay := tallySnapshot([]string{"opt-c", "opt-b", "opt-a", "opt-d"}, map[string][]string{
		"opt-a": {"40", "10"},
		"opt-b": {"25", "25"},
		"opt-c": {"50"},
		"opt-d": {"49.99"},
	})
	result, err = ComputeResults(threeWay)
	require.NoError(t, err)
	assert.Equal(t, "opt-a", result.WinningOptionID)

	noVotes := tallySnapshot([]string{"opt-z", "opt-m", "opt-k"}, nil)
	result, err = ComputeResults(noVotes)
	require.NoError(t, err)
	assert.Equal(t, "opt-k", result.WinningOptionID)
	assert.True(t, result.TotalVotingPower.IsZero())
}

func TestComputeResultsStrictlyGreaterWins(t *testing.T) {
	snapshot := tallySnapshot([]string{"a", "b"}, map[string][]string{
		"a": {"10"},
		"b": {"10.000001"},
	})
	result, err := ComputeResults(snapshot)
	require.NoError(t, err)
	assert.Equal(t, "b", result.WinningOptionID)
}

func TestComputeResultsQuorum(t *testing.T) {
	cases := []struct {
		name        string
		cast        string
		requirement *decimal.Decimal
		eligible    *decimal.Decimal
		met         bool
	}{
		{"exact half meets 50", "100", decPtr("50"), decPtr("200"), true},
		{"just below half misses 50", "99.99", decPtr("50"), decPtr("200"), false},
		{"zero requirement always met", "0", decPtr("0"), decPtr("200"), true},
		{"zero requirement with zero eligible", "0", decPtr("0"), decPtr("0"), true},
		{"missing snapshot never met", "1000000", decPtr("1"), nil, false},
		{"no requirement always met", "0", nil, nil, true},
		{"full requirement reached", "200", decPtr("100"), decPtr("200"), true},
		{"full requirement missed", "199.999", decPtr("100"), decPtr("200"), false},
		{"fractional requirement", "1", decPtr("33.333"), decPtr("3"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := tallySnapshot([]string{"yes", "no"}, map[string][]string{"yes": {tc.cast}})
			snapshot.Proposal.QuorumRequirement = tc.requirement
			snapshot.Proposal.EligibleVotingPowerSnapshot = tc.eligible

			result, err := ComputeResults(snapshot)
			require.NoError(t, err)
			assert.Equal(t, tc.met, result.QuorumMet)
		})
	}
}

func TestComputeResultsZeroParticipation(t *testing.T) {
	snapshot := tallySnapshot([]string{"2", "1"}, nil)
	snapshot.Proposal.QuorumRequirement = decPtr("10")
	snapshot.Proposal.EligibleVotingPowerSnapshot = decPtr("0")

	result, err := ComputeResults(snapshot)
	require.NoError(t, err)
	assert.Equal(t, "1", result.WinningOptionID)
	assert.False(t, result.QuorumMet)
}

func TestComputeResultsDoesNotMutateInput(t *testing.T) {
	snapshot := tallySnapshot([]string{"b", "a"}, map[string][]string{"a": {"1"}, "b": {"2"}})
	_, err := ComputeResults(snapshot)
	require.NoError(t, err)
	assert.Equal(t, "b", snapshot.Options[0].OptionID)
	assert.Equal(t, entities.ProposalStatusClosed, snapshot.Proposal.Status)
}

func TestComputeResultsRejectsUnknownOption(t *testing.T) {
	snapshot := tallySnapshot([]string{"a"}, nil)
	snapshot.Votes = append(snapshot.Votes, entities.Vote{VoteID: "v", OptionID: "ghost", VotingPower: dec("1")})
	_, err := ComputeResults(snapshot)
	assert.ErrorIs(t, err, domainerrors.ErrMalformedSnapshot)
}

func TestResultsHashIsStable(t *testing.T) {
	first, err := ComputeResults(tallySnapshot([]string{"a", "b"}, map[string][]string{"a": {"1.50"}, "b": {"2"}}))
	require.NoError(t, err)
	second, err := ComputeResults(tallySnapshot([]string{"b", "a"}, map[string][]string{"a": {"1.5"}, "b": {"2"}}))
	require.NoError(t, err)
	assert.Equal(t, first.ResultsHash, second.ResultsHash)

	third, err := ComputeResults(tallySnapshot([]string{"a", "b"}, map[string][]string{"a": {"1.5"}, "b": {"2.1"}}))
	require.NoError(t, err)
	assert.NotEqual(t, first.ResultsHash, third.ResultsHash)
}
