// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	ordersettlement "marketdao/contexts/commerce/order-settlement"
	settlementmemory "marketdao/contexts/commerce/order-settlement/adapters/memory"
	settlementpostgres "marketdao/contexts/commerce/order-settlement/adapters/postgres"
	settlementapp "marketdao/contexts/commerce/order-settlement/application"
	daovoting "marketdao/contexts/governance/dao-voting"
	votingmemory "marketdao/contexts/governance/dao-voting/adapters/memory"
	votingpostgres "marketdao/contexts/governance/dao-voting/adapters/postgres"
	votingapp "marketdao/contexts/governance/dao-voting/application"
	"marketdao/internal/platform/config"
	"marketdao/internal/platform/db"
	"marketdao/internal/platform/metrics"
)

const bootstrapModule = "internal/app/bootstrap"

// runtime holds the process-wide wiring shared by the api and worker apps.
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	database   *db.Postgres
	metrics    *metrics.Registry
	broker     broker
	voting     daovoting.Module
	settlement ordersettlement.Module
}

type broker struct {
	publisher  messagePublisher
	subscriber messageSubscriber
	close      func() error
	wait       func()
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	threshold, err := decimal.NewFromString(cfg.FraudReviewThreshold)
	if err != nil {
		return nil, fmt.Errorf("parse fraud review threshold: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics.NewRegistry()}
	if rt.broker, err = buildBroker(cfg, logger); err != nil {
		return nil, err
	}

	votingDeps := daovoting.Dependencies{
		Publisher:      rt.broker.publisher,
		Subscriber:     rt.broker.subscriber,
		Metrics:        rt.metrics.Voting,
		Retry:          votingapp.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
		FanoutLimit:    cfg.FanoutLimit,
		IdempotencyTTL: cfg.IdempotencyTTL,
		TopicPrefix:    cfg.TopicPrefix,
		DisableFanout:  !cfg.EnableAutoVoteFanout,
		Logger:         logger,
	}
	settlementDeps := ordersettlement.Dependencies{
		Publisher:     rt.broker.publisher,
		Metrics:       rt.metrics.Settlement,
		ConflictRetry: settlementapp.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
		LedgerRetry:   settlementapp.RetryPolicy{Attempts: cfg.LedgerRetryAttempts, BaseDelay: cfg.LedgerRetryBaseDelay},
		Accounts: settlementapp.Accounts{
			Escrow:    cfg.EscrowAccount,
			Platform:  cfg.PlatformAccount,
			Franchise: cfg.FranchiseAccount,
		},
		FraudReviewThreshold: threshold,
		AutoDistribute:       cfg.EnableCommissionAutoDistribute,
		IdempotencyTTL:       cfg.IdempotencyTTL,
		TopicPrefix:          cfg.TopicPrefix,
		Logger:               logger,
	}
	// The ledger has no remote adapter yet; every driver settles against the
	// in-process ledger.
	ledger := settlementmemory.NewLedger()
	settlementDeps.Ledger = ledger

	switch cfg.StorageDriver {
	case config.StorageMemory:
		votingStore := votingmemory.NewStore()
		bindVotingStore(&votingDeps, votingStore)
		settlementStore := settlementmemory.NewStore()
		bindSettlementStore(&settlementDeps, settlementStore)

		rt.voting = daovoting.NewModule(votingDeps)
		rt.voting.Store = votingStore
		rt.settlement = ordersettlement.NewModule(settlementDeps)
		rt.settlement.Store = settlementStore
	case config.StoragePostgres, config.StorageSQLite:
		if rt.database, err = openDatabase(cfg); err != nil {
			rt.closeBroker()
			return nil, err
		}
		votingRepo := votingpostgres.NewRepository(rt.database.DB, logger)
		settlementRepo := settlementpostgres.NewRepository(rt.database.DB, logger)
		if err := votingRepo.AutoMigrate(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("migrate dao-voting schema: %w", err)
		}
		if err := settlementRepo.AutoMigrate(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("migrate order-settlement schema: %w", err)
		}
		bindVotingRepository(&votingDeps, votingRepo)
		bindSettlementRepository(&settlementDeps, settlementRepo)

		rt.voting = daovoting.NewModule(votingDeps)
		rt.settlement = ordersettlement.NewModule(settlementDeps)
	default:
		rt.closeBroker()
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	rt.settlement.Ledger = ledger
	rt.settlement.DistributionSweeper.BatchSize = 100
	rt.voting.AutoVoteSweeper.BatchSize = 100

	logger.Info("runtime wired",
		"event", "bootstrap_runtime_wired",
		"module", bootstrapModule,
		"layer", "platform",
		"storage_driver", cfg.StorageDriver,
		"broker_driver", cfg.BrokerDriver,
		"auto_vote_fanout", cfg.EnableAutoVoteFanout,
		"auto_distribute", cfg.EnableCommissionAutoDistribute,
	)
	return rt, nil
}

func openDatabase(cfg config.Config) (*db.Postgres, error) {
	if cfg.StorageDriver == config.StorageSQLite {
		return db.OpenSQLite(cfg.SQLitePath)
	}
	return db.Connect(cfg.PostgresDSN)
}

func bindVotingStore(deps *daovoting.Dependencies, store *votingmemory.Store) {
	deps.UoW = store
	deps.Proposals = store
	deps.Preferences = store
	deps.Power = store
	deps.Idempotency = store
	deps.Outbox = store
	deps.Clock = store
	deps.IDGen = store
}

func bindVotingRepository(deps *daovoting.Dependencies, repo *votingpostgres.Repository) {
	deps.UoW = repo
	deps.Proposals = repo
	deps.Preferences = repo
	deps.Power = repo
	deps.Idempotency = repo
	deps.Outbox = repo
	deps.Clock = votingpostgres.SystemClock{}
	deps.IDGen = votingpostgres.UUIDGenerator{}
}

func bindSettlementStore(deps *ordersettlement.Dependencies, store *settlementmemory.Store) {
	deps.UoW = store
	deps.Orders = store
	deps.Catalog = store
	deps.CatalogWriter = store
	deps.Idempotency = store
	deps.Outbox = store
	deps.Clock = store
	deps.IDGen = store
}

func bindSettlementRepository(deps *ordersettlement.Dependencies, repo *settlementpostgres.Repository) {
	deps.UoW = repo
	deps.Orders = repo
	deps.Catalog = repo
	deps.CatalogWriter = repo
	deps.Idempotency = repo
	deps.Outbox = repo
	deps.Clock = repo
	deps.IDGen = repo
}

func (rt *runtime) closeBroker() {
	if rt.broker.close == nil {
		return
	}
	if err := rt.broker.close(); err != nil {
		rt.logger.Warn("broker close failed",
			"event", "bootstrap_broker_close_failed",
			"module", bootstrapModule,
			"layer", "platform",
			"error", err.Error(),
		)
	}
}

func (rt *runtime) Close() error {
	rt.closeBroker()
	if rt.broker.wait != nil {
		rt.broker.wait()
	}
	if rt.database != nil {
		return rt.database.Close()
	}
	return nil
}
