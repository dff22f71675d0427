package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "marketdao/contexts/commerce/order-settlement/application"
	"marketdao/contexts/commerce/order-settlement/ports"
)

const workerModule = "commerce/order-settlement"

// OutboxRelay publishes committed settlement events. Publish failures leave
// rows pending and never touch order state.
type OutboxRelay struct {
	Outbox      ports.OutboxRepository
	Publisher   ports.EventPublisher
	Clock       ports.Clock
	BatchSize   int
	TopicPrefix string
	Logger      *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("settlement outbox list failed",
			"event", "order_outbox_list_failed",
			"module", workerModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	published := 0
	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("settlement outbox decode failed",
				"event", "order_outbox_decode_failed",
				"module", workerModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Publisher.Publish(ctx, r.TopicPrefix+row.EventType, event); err != nil {
			logger.Error("settlement outbox publish failed",
				"event", "order_outbox_publish_failed",
				"module", workerModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", row.EventType,
				"order_id", row.PartitionKey,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, r.now()); err != nil {
			return published, err
		}
		published++
	}
	if published > 0 {
		logger.Info("settlement outbox relay cycle completed",
			"event", "order_outbox_relay_completed",
			"module", workerModule,
			"layer", "worker",
			"published_count", published,
		)
	}
	return published, nil
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
