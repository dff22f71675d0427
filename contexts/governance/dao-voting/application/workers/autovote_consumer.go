package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/application/commands"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"
)

const (
	proposalOpenedTopic  = "proposal.opened"
	defaultAutoVoteGroup = "dao-voting-autovote-cg"
)

type AutoVoteFanout interface {
	AutoVoteAll(ctx context.Context, proposalID string) (commands.FanoutResult, error)
}

// AutoVoteConsumer runs the auto-vote fan-out whenever a proposal opens.
// Proposals scheduled to start later are left to AutoVoteSweeper.
type AutoVoteConsumer struct {
	Subscriber    ports.EventSubscriber
	Fanout        AutoVoteFanout
	ConsumerGroup string
	TopicPrefix   string
	Disabled      bool
	Logger        *slog.Logger
}

func (c AutoVoteConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("auto-vote consumer disabled by feature flag",
			"event", "dao_autovote_consumer_disabled",
			"module", workerModule,
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultAutoVoteGroup
	}
	topic := c.TopicPrefix + proposalOpenedTopic
	if err := c.Subscriber.Subscribe(ctx, topic, group, c.handleProposalOpened); err != nil {
		logger.Error("auto-vote consumer subscribe failed",
			"event", "dao_autovote_consumer_subscribe_failed",
			"module", workerModule,
			"layer", "worker",
			"topic", topic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("auto-vote consumer subscribed",
		"event", "dao_autovote_consumer_started",
		"module", workerModule,
		"layer", "worker",
		"topic", topic,
		"consumer_group", group,
	)
	return nil
}

func (c AutoVoteConsumer) handleProposalOpened(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var payload struct {
		ProposalID string `json:"proposal_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return err
	}
	proposalID := strings.TrimSpace(payload.ProposalID)
	if proposalID == "" {
		proposalID = strings.TrimSpace(event.PartitionKey)
	}
	if proposalID == "" {
		return domainerrors.ErrInvalidProposalInput
	}

	_, err := c.Fanout.AutoVoteAll(ctx, proposalID)
	if errors.Is(err, domainerrors.ErrVotingNotStarted) {
		logger.Info("auto-vote fan-out deferred until the window starts",
			"event", "dao_autovote_consumer_deferred",
			"module", workerModule,
			"layer", "worker",
			"proposal_id", proposalID,
			"event_id", event.EventID,
		)
		return nil
	}
	if errors.Is(err, domainerrors.ErrVotingClosed) {
		logger.Info("auto-vote fan-out skipped for closed proposal",
			"event", "dao_autovote_consumer_skipped",
			"module", workerModule,
			"layer", "worker",
			"proposal_id", proposalID,
			"event_id", event.EventID,
		)
		return nil
	}
	return err
}
