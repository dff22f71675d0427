package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	contractsv1 "marketdao/contracts/gen/events/v1"
	"marketdao/internal/platform/config"
	"marketdao/internal/platform/messaging"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, event contractsv1.Envelope) error
}

type messageSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, contractsv1.Envelope) error) error
}

func buildBroker(cfg config.Config, logger *slog.Logger) (broker, error) {
	switch cfg.BrokerDriver {
	case config.BrokerInProcess:
		bus := messaging.NewBus(logger)
		return broker{publisher: bus, subscriber: bus, wait: bus.Wait}, nil
	case config.BrokerKafka:
		publisher, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			return broker{}, fmt.Errorf("build kafka publisher: %w", err)
		}
		subscriber, err := messaging.NewKafkaSubscriber(cfg.KafkaBrokers, logger)
		if err != nil {
			return broker{}, errors.Join(fmt.Errorf("build kafka subscriber: %w", err), publisher.Close())
		}
		return broker{
			publisher:  publisher,
			subscriber: subscriber,
			close:      publisher.Close,
			wait:       subscriber.Wait,
		}, nil
	default:
		return broker{}, fmt.Errorf("unknown broker driver %q", cfg.BrokerDriver)
	}
}
