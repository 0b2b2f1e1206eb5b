package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fangov/contexts/governance/proposal-engine/application/commands"
	"fangov/contexts/governance/proposal-engine/domain/entities"
	"fangov/internal/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		ServiceName:              "fangov",
		HTTPPort:                 "0",
		DatabaseDriver:           config.DriverMemory,
		StreamPrefix:             "governance",
		SchedulerInterval:        time.Second,
		SchedulerBatchSize:       10,
		OutboxBatchSize:          10,
		EnableLifecycleScheduler: true,
	}
}

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, ":8080", normalizeAddr(""))
	assert.Equal(t, ":9090", normalizeAddr("9090"))
	assert.Equal(t, ":7000", normalizeAddr(" :7000 "))
}

func TestBuildAPIWithMemoryDriverServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := BuildAPI(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()
	require.NotNil(t, app.embedded, "memory driver runs the worker loop inside the api")

	rr := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "governance_scheduler_sweeps_total")
}

func TestWorkerTickClosesExpiredProposalAndRelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, err := BuildWorker(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = worker.Close() }()

	store := worker.module.Store
	require.NotNil(t, store)
	store.SetVotingPower("org-1", "fan-a", decimal.NewFromInt(5))

	start := time.Now().UTC().Add(-2 * time.Hour)
	end := time.Now().UTC().Add(-time.Hour)
	created, err := worker.module.Handler.Proposals.CreateProposal(ctx, commands.CreateProposalCommand{
		OrganizationID: "org-1",
		CreatorID:      "creator-1",
		Title:          "Kit sponsor",
		StartAt:        &start,
		EndAt:          &end,
		Options:        []commands.OptionInput{{Text: "Yes"}, {Text: "No"}},
	})
	require.NoError(t, err)
	_, err = worker.module.Handler.Lifecycle.Open(ctx, commands.TransitionCommand{
		ProposalID: created.Proposal.ProposalID,
		ActorID:    "creator-1",
	})
	require.NoError(t, err)

	worker.tick(ctx)

	proposal, err := store.GetProposal(ctx, created.Proposal.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalStatusClosed, proposal.Status)

	pending, err := store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "relay publishes the opened and closed events")
}

func TestOpenRepositoryRejectsMemoryDriver(t *testing.T) {
	_, _, err := OpenRepository(memoryConfig(), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "SQL database"))
}
