package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/ports"
)

const workerModule = "governance/dao-voting"

// OutboxRelay publishes committed governance events.
type OutboxRelay struct {
	Outbox      ports.OutboxRepository
	Publisher   ports.EventPublisher
	Clock       ports.Clock
	BatchSize   int
	TopicPrefix string
	Logger      *slog.Logger
}

// RunOnce publishes one batch in creation order and marks a row published only
// after the publish succeeded. It stops at the first failure so the next cycle
// resumes from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("governance outbox list failed",
			"event", "dao_outbox_list_failed",
			"module", workerModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := 0
	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("governance outbox decode failed",
				"event", "dao_outbox_decode_failed",
				"module", workerModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, r.TopicPrefix+topic, event); err != nil {
			logger.Error("governance outbox publish failed",
				"event", "dao_outbox_publish_failed",
				"module", workerModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, r.now()); err != nil {
			logger.Error("governance outbox mark published failed",
				"event", "dao_outbox_mark_published_failed",
				"module", workerModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("governance outbox relay cycle completed",
		"event", "dao_outbox_relay_completed",
		"module", workerModule,
		"layer", "worker",
		"published_count", published,
	)
	return published, nil
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
