package proposalengine

import (
	"log/slog"
	"time"

	httpadapter "fangov/contexts/governance/proposal-engine/adapters/http"
	"fangov/contexts/governance/proposal-engine/adapters/memory"
	"fangov/contexts/governance/proposal-engine/application/commands"
	"fangov/contexts/governance/proposal-engine/application/queries"
	"fangov/contexts/governance/proposal-engine/application/workers"
	"fangov/contexts/governance/proposal-engine/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Scheduler workers.LifecycleScheduler
	Relay     workers.OutboxRelay
	Store     *memory.Store
}

type SchedulerOptions struct {
	BatchSize         int
	AutoFinalize      bool
	AutoFinalizeAfter time.Duration
	OutboxBatchSize   int
}

type Dependencies struct {
	Proposals        ports.ProposalRepository
	Options          ports.OptionRepository
	Votes            ports.VoteRepository
	Candidates       ports.SchedulerRepository
	Power            ports.VotingPowerQuery
	Outbox           ports.OutboxRepository
	Publisher        ports.EventPublisher
	SchedulerMetrics ports.SchedulerMetrics
	RelayMetrics     ports.RelayMetrics
	Clock            ports.Clock
	IDGen            ports.IDGenerator
	Scheduling       SchedulerOptions
	Logger           *slog.Logger
}

func NewModule(deps Dependencies) Module {
	notifier := workers.OutboxNotifier{
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Proposals: commands.ProposalUseCase{
				Proposals: deps.Proposals,
				Options:   deps.Options,
				Clock:     deps.Clock,
				IDGen:     deps.IDGen,
				Logger:    deps.Logger,
			},
			Lifecycle: commands.LifecycleUseCase{
				Proposals: deps.Proposals,
				Power:     deps.Power,
				Notifier:  notifier,
				Clock:     deps.Clock,
				Logger:    deps.Logger,
			},
			Votes: commands.VoteUseCase{
				Proposals: deps.Proposals,
				Votes:     deps.Votes,
				Power:     deps.Power,
				Clock:     deps.Clock,
				IDGen:     deps.IDGen,
				Logger:    deps.Logger,
			},
			Get: queries.GetProposalUseCase{
				Proposals: deps.Proposals,
				Logger:    deps.Logger,
			},
			Results: queries.GetResultsUseCase{
				Proposals: deps.Proposals,
				Clock:     deps.Clock,
				Logger:    deps.Logger,
			},
			Logger: deps.Logger,
		},
		Scheduler: workers.LifecycleScheduler{
			Proposals:         deps.Proposals,
			Candidates:        deps.Candidates,
			Notifier:          notifier,
			Metrics:           deps.SchedulerMetrics,
			Clock:             deps.Clock,
			BatchSize:         deps.Scheduling.BatchSize,
			AutoFinalize:      deps.Scheduling.AutoFinalize,
			AutoFinalizeAfter: deps.Scheduling.AutoFinalizeAfter,
			Logger:            deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Metrics:   deps.RelayMetrics,
			BatchSize: deps.Scheduling.OutboxBatchSize,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to one memory store. The publisher may
// be nil when the relay is not run.
func NewInMemoryModule(publisher ports.EventPublisher, scheduling SchedulerOptions, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Proposals:  store,
		Options:    store,
		Votes:      store,
		Candidates: store,
		Power:      store,
		Outbox:     store,
		Publisher:  publisher,
		Clock:      store,
		IDGen:      store,
		Scheduling: scheduling,
		Logger:     logger,
	})
	module.Store = store
	return module
}
