package daovoting

import (
	"log/slog"
	"time"

	httpadapter "marketdao/contexts/governance/dao-voting/adapters/http"
	"marketdao/contexts/governance/dao-voting/adapters/memory"
	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/application/commands"
	"marketdao/contexts/governance/dao-voting/application/queries"
	"marketdao/contexts/governance/dao-voting/application/workers"
	"marketdao/contexts/governance/dao-voting/ports"
)

type Module struct {
	Handler         httpadapter.Handler
	Votes           commands.VoteUseCase
	Proposals       commands.ProposalUseCase
	OutboxRelay     workers.OutboxRelay
	FinalizeSweeper workers.FinalizeSweeper
	AutoVoteSweeper workers.AutoVoteSweeper
	AutoVoter       workers.AutoVoteConsumer
	Store           *memory.Store
}

type Dependencies struct {
	UoW            ports.UnitOfWork
	Proposals      ports.ProposalReader
	Preferences    ports.PreferencesReader
	Power          ports.VotingPowerSource
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxRepository
	Publisher      ports.EventPublisher
	Subscriber     ports.EventSubscriber
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Metrics        ports.Metrics
	Retry          application.RetryPolicy
	FanoutLimit    int
	IdempotencyTTL time.Duration
	TopicPrefix    string
	DisableFanout  bool
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	votes := commands.VoteUseCase{
		UoW:         deps.UoW,
		Proposals:   deps.Proposals,
		Preferences: deps.Preferences,
		Power:       deps.Power,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Metrics:     deps.Metrics,
		Retry:       deps.Retry,
		FanoutLimit: deps.FanoutLimit,
		Logger:      deps.Logger,
	}
	proposals := commands.ProposalUseCase{
		UoW:            deps.UoW,
		Proposals:      deps.Proposals,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		Metrics:        deps.Metrics,
		Retry:          deps.Retry,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	preferences := commands.PreferencesUseCase{
		UoW:    deps.UoW,
		Clock:  deps.Clock,
		Retry:  deps.Retry,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:       votes,
			Proposals:   proposals,
			Preferences: preferences,
			Results:     queries.ResultsQuery{Proposals: deps.Proposals, Clock: deps.Clock},
			Settings:    queries.PreferencesQuery{Preferences: deps.Preferences},
			Logger:      deps.Logger,
		},
		Votes:     votes,
		Proposals: proposals,
		OutboxRelay: workers.OutboxRelay{
			Outbox:      deps.Outbox,
			Publisher:   deps.Publisher,
			Clock:       deps.Clock,
			TopicPrefix: deps.TopicPrefix,
			Logger:      deps.Logger,
		},
		FinalizeSweeper: workers.FinalizeSweeper{
			Proposals: deps.Proposals,
			Finalizer: proposals,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
		AutoVoteSweeper: workers.AutoVoteSweeper{
			Proposals: deps.Proposals,
			Fanout:    votes,
			Clock:     deps.Clock,
			Disabled:  deps.DisableFanout,
			Logger:    deps.Logger,
		},
		AutoVoter: workers.AutoVoteConsumer{
			Subscriber:  deps.Subscriber,
			Fanout:      votes,
			TopicPrefix: deps.TopicPrefix,
			Disabled:    deps.DisableFanout,
			Logger:      deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to a single memory store. Publisher and
// subscriber stay nil until the caller sets them.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		UoW:            store,
		Proposals:      store,
		Preferences:    store,
		Power:          store,
		Idempotency:    store,
		Outbox:         store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
