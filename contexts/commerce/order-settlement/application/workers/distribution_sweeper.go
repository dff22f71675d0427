package workers

import (
	"context"
	"errors"
	"log/slog"

	application "marketdao/contexts/commerce/order-settlement/application"
	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

type CommissionDistributor interface {
	DistributeCommission(ctx context.Context, orderID string) (application.DistributionResult, error)
	ReverseCommission(ctx context.Context, orderID string) (entities.Order, error)
}

// DistributionSweeper pays out commissions that were computed but never
// distributed, and posts reversals that refunds left pending. Orders parked
// in manual review are left for an operator.
type DistributionSweeper struct {
	Orders      ports.OrderReader
	Distributor CommissionDistributor
	BatchSize   int
	Logger      *slog.Logger
}

func (s DistributionSweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}

	settled := 0
	for _, status := range []entities.OrderStatus{
		entities.OrderStatusConfirmed,
		entities.OrderStatusProcessing,
		entities.OrderStatusShipped,
		entities.OrderStatusDelivered,
		entities.OrderStatusRefunded,
	} {
		orders, err := s.Orders.ListOrdersByStatus(ctx, status, limit)
		if err != nil {
			logger.Error("distribution sweep list failed",
				"event", "order_distribution_sweep_list_failed",
				"module", workerModule,
				"layer", "worker",
				"status", string(status),
				"error", err.Error(),
			)
			return settled, err
		}
		for _, order := range orders {
			if err := ctx.Err(); err != nil {
				return settled, err
			}
			if order.ManualReview.Open() || !order.Commission.Computed() {
				continue
			}
			switch {
			case status == entities.OrderStatusRefunded:
				if order.Commission.Reversal.Status != entities.ReversalPending {
					continue
				}
				_, err = s.Distributor.ReverseCommission(ctx, order.OrderID)
			case !order.Commission.Distributed:
				_, err = s.Distributor.DistributeCommission(ctx, order.OrderID)
			default:
				continue
			}
			if err != nil {
				if errors.Is(err, domainerrors.ErrInvalidOrderState) {
					continue
				}
				logger.Warn("distribution sweep order failed",
					"event", "order_distribution_sweep_order_failed",
					"module", workerModule,
					"layer", "worker",
					"order_id", order.OrderID,
					"status", string(status),
					"error", err.Error(),
				)
				continue
			}
			settled++
		}
	}
	if settled > 0 {
		logger.Info("distribution sweep completed",
			"event", "order_distribution_sweep_completed",
			"module", workerModule,
			"layer", "worker",
			"settled_count", settled,
		)
	}
	return settled, nil
}
