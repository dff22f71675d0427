package ordersettlement

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	httpadapter "marketdao/contexts/commerce/order-settlement/adapters/http"
	"marketdao/contexts/commerce/order-settlement/adapters/memory"
	application "marketdao/contexts/commerce/order-settlement/application"
	"marketdao/contexts/commerce/order-settlement/application/workers"
	"marketdao/contexts/commerce/order-settlement/ports"
)

type Module struct {
	Handler             httpadapter.Handler
	Service             application.Service
	OutboxRelay         workers.OutboxRelay
	DistributionSweeper workers.DistributionSweeper
	Store               *memory.Store
	Ledger              *memory.Ledger
}

type Dependencies struct {
	UoW                  ports.UnitOfWork
	Orders               ports.OrderReader
	Catalog              ports.CatalogReader
	CatalogWriter        ports.CatalogWriter
	Ledger               ports.Ledger
	Idempotency          ports.IdempotencyStore
	Outbox               ports.OutboxRepository
	Publisher            ports.EventPublisher
	Clock                ports.Clock
	IDGen                ports.IDGenerator
	Metrics              ports.Metrics
	ConflictRetry        application.RetryPolicy
	LedgerRetry          application.RetryPolicy
	Accounts             application.Accounts
	FraudReviewThreshold decimal.Decimal
	AutoDistribute       bool
	IdempotencyTTL       time.Duration
	TopicPrefix          string
	Logger               *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		UoW:                  deps.UoW,
		Orders:               deps.Orders,
		Catalog:              deps.Catalog,
		CatalogWriter:        deps.CatalogWriter,
		Ledger:               deps.Ledger,
		Idempotency:          deps.Idempotency,
		Clock:                deps.Clock,
		IDGen:                deps.IDGen,
		Metrics:              deps.Metrics,
		ConflictRetry:        deps.ConflictRetry,
		LedgerRetry:          deps.LedgerRetry,
		Accounts:             deps.Accounts,
		FraudReviewThreshold: deps.FraudReviewThreshold,
		AutoDistribute:       deps.AutoDistribute,
		IdempotencyTTL:       deps.IdempotencyTTL,
		Logger:               deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{Service: service, Logger: deps.Logger},
		Service: service,
		OutboxRelay: workers.OutboxRelay{
			Outbox:      deps.Outbox,
			Publisher:   deps.Publisher,
			Clock:       deps.Clock,
			TopicPrefix: deps.TopicPrefix,
			Logger:      deps.Logger,
		},
		DistributionSweeper: workers.DistributionSweeper{
			Orders:      deps.Orders,
			Distributor: service,
			Logger:      deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to one memory store and an in-process
// ledger. The publisher stays nil until the caller sets it.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	module := NewModule(Dependencies{
		UoW:            store,
		Orders:         store,
		Catalog:        store,
		CatalogWriter:  store,
		Ledger:         ledger,
		Idempotency:    store,
		Outbox:         store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}
