package application

import (
	"context"
	"strings"
	"time"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

type RefundOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

type AdvanceOrderCommand struct {
	OrderID        string
	To             entities.OrderStatus
	TrackingNumber string
	ActorID        string
}

type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// RefundOrder returns the payment, restores stock and, when the commission
// was already paid out, requests a reversal.
func (s Service) RefundOrder(ctx context.Context, cmd RefundOrderCommand) (entities.Order, error) {
	logger := ResolveLogger(s.Logger)
	actor := resolveActor(cmd.ActorID, "support")
	refunded, err := s.mutate(ctx, cmd.OrderID, "refund", func(tx ports.Tx, order *entities.Order, now time.Time) (string, map[string]any, error) {
		product, err := tx.GetProduct(ctx, order.ProductID)
		if err != nil {
			return "", nil, err
		}
		productVersion := product.Version
		if err := order.Refund(cmd.Reason, actor, now); err != nil {
			return "", nil, err
		}
		product.Restore(order.Quantity)
		if err := tx.SaveProduct(ctx, product, productVersion); err != nil {
			return "", nil, err
		}
		order.Record("stock_restored", "stock restored", "system", now)
		if order.Commission.Reversal.Status == entities.ReversalPending {
			if err := s.appendOrderEvent(ctx, tx, "commission.reversal_requested", *order, now, map[string]any{
				"distribution_hash": order.Commission.DistributionHash,
			}); err != nil {
				return "", nil, err
			}
		}
		return "order.refunded", map[string]any{
			"reason":      strings.TrimSpace(cmd.Reason),
			"total_price": order.TotalPrice.String(),
			"quantity":    order.Quantity,
		}, nil
	})
	if err != nil {
		return entities.Order{}, err
	}
	if s.Metrics != nil {
		s.Metrics.OrderSettled("refunded")
	}

	if refunded.NeedsReversal() && s.AutoDistribute && s.Ledger != nil {
		if reversed, err := s.ReverseCommission(ctx, refunded.OrderID); err == nil {
			refunded = reversed
		} else {
			logger.Warn("automatic commission reversal deferred",
				"event", "order_commission_reversal_deferred",
				"module", settlementModule,
				"layer", "application",
				"order_id", refunded.OrderID,
				"error", err.Error(),
			)
			if current, getErr := s.Orders.GetOrder(ctx, refunded.OrderID); getErr == nil {
				refunded = current
			}
		}
	}
	return refunded, nil
}

func (s Service) AdvanceOrder(ctx context.Context, cmd AdvanceOrderCommand) (entities.Order, error) {
	if !cmd.To.Valid() {
		return entities.Order{}, domainerrors.ErrInvalidOrderInput
	}
	actor := resolveActor(cmd.ActorID, "fulfilment")
	return s.mutate(ctx, cmd.OrderID, "advance", func(_ ports.Tx, order *entities.Order, now time.Time) (string, map[string]any, error) {
		from := order.Status
		if err := order.Advance(cmd.To, cmd.TrackingNumber, actor, now); err != nil {
			return "", nil, err
		}
		return "order.status_changed", map[string]any{
			"from_status":     string(from),
			"tracking_number": order.Delivery.TrackingNumber,
		}, nil
	})
}

func (s Service) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (entities.Order, error) {
	actor := resolveActor(cmd.ActorID, "buyer")
	return s.mutate(ctx, cmd.OrderID, "cancel", func(_ ports.Tx, order *entities.Order, now time.Time) (string, map[string]any, error) {
		if err := order.Cancel(cmd.Reason, actor, now); err != nil {
			return "", nil, err
		}
		return "order.cancelled", map[string]any{"reason": strings.TrimSpace(cmd.Reason)}, nil
	})
}

type mutateFunc func(tx ports.Tx, order *entities.Order, now time.Time) (string, map[string]any, error)

// mutate runs a read-modify-write on one order with conflict retries. An
// empty event type from apply means nothing changed and nothing is written.
func (s Service) mutate(ctx context.Context, orderID string, step string, apply mutateFunc) (entities.Order, error) {
	logger := ResolveLogger(s.Logger)
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return entities.Order{}, domainerrors.ErrInvalidOrderInput
	}

	var updated entities.Order
	err := s.ConflictRetry.OnConflict(ctx, func() error {
		return s.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := s.now()
			order, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			expected := order.Version
			eventType, data, err := apply(tx, &order, now)
			if err != nil {
				return err
			}
			if eventType == "" {
				updated = order
				return nil
			}
			if err := tx.SaveOrder(ctx, order, expected); err != nil {
				return err
			}
			if err := s.appendOrderEvent(ctx, tx, eventType, order, now, data); err != nil {
				return err
			}
			order.Version = expected + 1
			updated = order
			return nil
		})
	})
	if err != nil {
		logger.Warn("order update failed",
			"event", "order_update_failed",
			"module", settlementModule,
			"layer", "application",
			"order_id", orderID,
			"step", step,
			"error", err.Error(),
		)
		return entities.Order{}, err
	}
	logger.Info("order updated",
		"event", "order_updated",
		"module", settlementModule,
		"layer", "application",
		"order_id", updated.OrderID,
		"step", step,
		"status", string(updated.Status),
	)
	return updated, nil
}

func resolveActor(actor string, fallback string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = strings.TrimSpace(fallback)
	}
	if actor == "" {
		return "system"
	}
	return actor
}
