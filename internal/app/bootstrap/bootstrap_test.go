package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	settlemententities "marketdao/contexts/commerce/order-settlement/domain/entities"
	"marketdao/contexts/governance/dao-voting/application/commands"
	votingentities "marketdao/contexts/governance/dao-voting/domain/entities"
	contractsv1 "marketdao/contracts/gen/events/v1"
	"marketdao/internal/platform/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildRuntimeMemory(t *testing.T) {
	rt, err := buildRuntime(context.Background(), config.Defaults(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	require.NotNil(t, rt.voting.Store)
	require.NotNil(t, rt.settlement.Store)
	require.NotNil(t, rt.settlement.Ledger)
	require.Nil(t, rt.database)
}

func TestBuildRuntimeSQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.StorageDriver = config.StorageSQLite
	cfg.SQLitePath = ":memory:"

	rt, err := buildRuntime(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	require.NotNil(t, rt.database)

	seller, err := rt.settlement.Service.UpsertSeller(context.Background(), settlemententities.Seller{
		SellerID:      "seller-1",
		Name:          "Seller One",
		Tier:          commission.TierHigh,
		WalletAddress: "0xSELLER",
		Active:        true,
	})
	require.NoError(t, err)
	require.Equal(t, "seller-1", seller.SellerID)
}

func TestBuildRuntimeRejectsBadThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.FraudReviewThreshold = "lots"
	_, err := buildRuntime(context.Background(), cfg, quietLogger())
	require.ErrorContains(t, err, "fraud review threshold")
}

func TestBuildBrokerKafkaRequiresBrokers(t *testing.T) {
	cfg := config.Defaults()
	cfg.BrokerDriver = config.BrokerKafka
	cfg.KafkaBrokers = nil
	_, err := buildBroker(cfg, quietLogger())
	require.Error(t, err)
}

func TestScheduleRejectsInvalidSpec(t *testing.T) {
	cfg := config.Defaults()
	cfg.FinalizeSchedule = "every so often"
	rt, err := buildRuntime(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	worker := &WorkerApp{rt: rt, pollInterval: time.Second}
	_, err = worker.schedule(context.Background())
	require.Error(t, err)

	rt.cfg.FinalizeSchedule = "@every 1m"
	rt.cfg.AutoVoteSchedule = "sometimes"
	_, err = worker.schedule(context.Background())
	require.Error(t, err)
}

func TestWorkerRelaysOutboxToSubscribers(t *testing.T) {
	cfg := config.Defaults()
	cfg.OutboxPollInterval = 10 * time.Millisecond
	rt, err := buildRuntime(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	opened := make(chan string, 1)
	require.NoError(t, rt.broker.subscriber.Subscribe(ctx, cfg.TopicPrefix+"proposal.opened", "test-cg",
		func(_ context.Context, event contractsv1.Envelope) error {
			opened <- event.EventType
			return nil
		}))

	created, err := rt.voting.Proposals.CreateProposal(ctx, commands.CreateProposalCommand{
		IdempotencyKey: "create-1",
		Title:          "Lower fees",
		Category:       votingentities.CategoryFeature,
		ProposerUserID: "user-p",
		ProposerWallet: "0xP",
		Quorum:         1,
		Threshold:      50,
		Impact:         votingentities.Impact{Cost: 10, Risk: votingentities.RiskLow},
	})
	require.NoError(t, err)
	_, err = rt.voting.Proposals.OpenVoting(ctx, commands.OpenVotingCommand{
		ProposalID: created.Proposal.ProposalID,
		ActorID:    "admin",
		Duration:   time.Hour,
	})
	require.NoError(t, err)

	worker := &WorkerApp{rt: rt, pollInterval: cfg.OutboxPollInterval}
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	select {
	case eventType := <-opened:
		require.Equal(t, "proposal.opened", eventType)
	case <-time.After(2 * time.Second):
		t.Fatal("proposal.opened was not relayed")
	}

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, worker.Close())
}
