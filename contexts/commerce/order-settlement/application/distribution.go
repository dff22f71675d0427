package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

const (
	legSeller    = "seller"
	legPlatform  = "platform"
	legFranchise = "franchise"

	stepDistribute = "distribute_commission"
	stepReverse    = "reverse_commission"
)

type DistributionResult struct {
	Order              entities.Order
	AlreadyDistributed bool
}

type transferLeg struct {
	leg    string
	from   string
	to     string
	amount decimal.Decimal
}

// DistributeCommission pays the computed commission out through the ledger.
// It is a no-op once the order is marked distributed. Ledger calls run
// outside the unit of work; the flag is then set with a version check.
func (s Service) DistributeCommission(ctx context.Context, orderID string) (DistributionResult, error) {
	logger := ResolveLogger(s.Logger)
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return DistributionResult{}, domainerrors.ErrInvalidOrderInput
	}
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return DistributionResult{}, err
	}
	if order.Commission.Distributed {
		s.recordDistribution("noop")
		return DistributionResult{Order: order, AlreadyDistributed: true}, nil
	}
	if err := order.CanDistribute(); err != nil {
		return DistributionResult{}, err
	}
	seller, err := s.Catalog.GetSeller(ctx, order.SellerID)
	if err != nil {
		return DistributionResult{}, err
	}

	legs := []transferLeg{
		{leg: legSeller, from: s.accounts().Escrow, to: seller.WalletAddress, amount: order.Commission.SellerAmount},
		{leg: legPlatform, from: s.accounts().Escrow, to: s.accounts().Platform, amount: order.Commission.PlatformFee},
		{leg: legFranchise, from: s.accounts().Escrow, to: s.accounts().Franchise, amount: order.Commission.FranchiseCommission},
	}
	transfers, failedLeg, err := s.postTransfers(ctx, order, legs, "distribution")
	if err != nil {
		reason := fmt.Sprintf("%s leg: %v", failedLeg, err)
		flagged, flagErr := s.flagManualReview(ctx, order.OrderID, stepDistribute, reason, transfers)
		s.recordDistribution("manual_review")
		logger.Error("commission distribution escalated to manual review",
			"event", "order_commission_distribution_failed",
			"module", settlementModule,
			"layer", "application",
			"order_id", order.OrderID,
			"step", stepDistribute,
			"leg", failedLeg,
			"posted_legs", len(transfers),
			"status", string(flagged.Status),
			"error", err.Error(),
		)
		return DistributionResult{}, errors.Join(domainerrors.ErrLedgerUnavailable, err, flagErr)
	}

	hash := hashTransfers(order.OrderID, transfers)
	var result DistributionResult
	err = s.ConflictRetry.OnConflict(ctx, func() error {
		return s.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := s.now()
			current, err := tx.GetOrder(ctx, order.OrderID)
			if err != nil {
				return err
			}
			expected := current.Version
			if !current.MarkDistributed(hash, transfers, now) {
				result = DistributionResult{Order: current, AlreadyDistributed: true}
				return nil
			}
			if err := tx.SaveOrder(ctx, current, expected); err != nil {
				return err
			}
			if err := s.appendOrderEvent(ctx, tx, "commission.distributed", current, now, map[string]any{
				"distribution_hash":    hash,
				"seller_amount":        current.Commission.SellerAmount.String(),
				"platform_fee":         current.Commission.PlatformFee.String(),
				"franchise_commission": current.Commission.FranchiseCommission.String(),
				"currency":             current.Currency,
				"legs":                 len(transfers),
			}); err != nil {
				return err
			}
			if current.Commission.Reversal.Status == entities.ReversalPending {
				if err := s.appendOrderEvent(ctx, tx, "commission.reversal_requested", current, now, map[string]any{
					"distribution_hash": hash,
				}); err != nil {
					return err
				}
			}
			current.Version = expected + 1
			result = DistributionResult{Order: current}
			return nil
		})
	})
	if err != nil {
		logger.Error("commission distribution flag update failed",
			"event", "order_commission_mark_failed",
			"module", settlementModule,
			"layer", "application",
			"order_id", order.OrderID,
			"step", stepDistribute,
			"distribution_hash", hash,
			"error", err.Error(),
		)
		return DistributionResult{}, err
	}

	if result.AlreadyDistributed {
		s.recordDistribution("noop")
		return result, nil
	}
	s.recordDistribution("distributed")
	logger.Info("commission distributed",
		"event", "order_commission_distributed",
		"module", settlementModule,
		"layer", "application",
		"order_id", order.OrderID,
		"distribution_hash", hash,
		"legs", len(transfers),
	)
	return result, nil
}

// ReverseCommission posts offsetting entries for every distributed leg of a
// refunded order. The original commission amounts are never changed.
func (s Service) ReverseCommission(ctx context.Context, orderID string) (entities.Order, error) {
	logger := ResolveLogger(s.Logger)
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return entities.Order{}, domainerrors.ErrInvalidOrderInput
	}
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if order.Commission.Reversal.Status == entities.ReversalCompleted {
		return order, nil
	}
	if !order.NeedsReversal() {
		return entities.Order{}, domainerrors.ErrInvalidOrderState
	}

	legs := make([]transferLeg, 0, len(order.Commission.Transfers))
	for _, transfer := range order.Commission.Transfers {
		legs = append(legs, transferLeg{leg: transfer.Leg, from: transfer.To, to: transfer.From, amount: transfer.Amount})
	}
	transfers, failedLeg, err := s.postTransfers(ctx, order, legs, "reversal")
	if err != nil {
		reason := fmt.Sprintf("%s leg: %v", failedLeg, err)
		_, flagErr := s.mutate(ctx, order.OrderID, stepReverse, func(tx ports.Tx, current *entities.Order, now time.Time) (string, map[string]any, error) {
			current.FailReversal(stepReverse, reason, now)
			return "commission.reversal_failed", map[string]any{"leg": failedLeg, "reason": reason}, nil
		})
		if s.Metrics != nil {
			s.Metrics.ManualReviewFlagged(stepReverse)
		}
		logger.Error("commission reversal escalated to manual review",
			"event", "order_commission_reversal_failed",
			"module", settlementModule,
			"layer", "application",
			"order_id", order.OrderID,
			"step", stepReverse,
			"leg", failedLeg,
			"error", err.Error(),
		)
		return entities.Order{}, errors.Join(domainerrors.ErrLedgerUnavailable, err, flagErr)
	}

	hash := hashTransfers(order.OrderID, transfers)
	reversed, err := s.mutate(ctx, order.OrderID, stepReverse, func(tx ports.Tx, current *entities.Order, now time.Time) (string, map[string]any, error) {
		if current.Commission.Reversal.Status == entities.ReversalCompleted {
			return "", nil, nil
		}
		current.CompleteReversal(hash, transfers, now)
		return "commission.reversed", map[string]any{
			"reversal_hash":     hash,
			"distribution_hash": current.Commission.DistributionHash,
			"legs":              len(transfers),
		}, nil
	})
	if err != nil {
		return entities.Order{}, err
	}
	logger.Info("commission reversed",
		"event", "order_commission_reversed",
		"module", settlementModule,
		"layer", "application",
		"order_id", order.OrderID,
		"reversal_hash", hash,
	)
	return reversed, nil
}

// postTransfers posts each non-zero leg with the ledger retry policy. On
// failure it returns the legs already posted and the leg that failed.
func (s Service) postTransfers(ctx context.Context, order entities.Order, legs []transferLeg, purpose string) ([]entities.Transfer, string, error) {
	logger := ResolveLogger(s.Logger)
	if s.Ledger == nil {
		return nil, "", domainerrors.ErrLedgerUnavailable
	}
	transfers := make([]entities.Transfer, 0, len(legs))
	for _, leg := range legs {
		if !leg.amount.IsPositive() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return transfers, leg.leg, err
		}
		req := ports.TransferRequest{
			Reference: order.OrderID + ":" + purpose + ":" + leg.leg,
			From:      leg.from,
			To:        leg.to,
			Amount:    leg.amount,
			Currency:  order.Currency,
			Memo:      purpose + " " + leg.leg + " for order " + order.OrderID,
		}
		var receipt ports.TransferReceipt
		err := s.LedgerRetry.External(ctx, func() error {
			var err error
			receipt, err = s.Ledger.Transfer(ctx, req)
			return err
		}, func(err error, wait time.Duration) {
			if s.Metrics != nil {
				s.Metrics.LedgerRetry(leg.leg)
			}
			logger.Warn("ledger transfer retrying",
				"event", "order_ledger_transfer_retry",
				"module", settlementModule,
				"layer", "application",
				"order_id", order.OrderID,
				"leg", leg.leg,
				"purpose", purpose,
				"wait", wait.String(),
				"error", err.Error(),
			)
		})
		if err != nil {
			return transfers, leg.leg, err
		}
		transfers = append(transfers, entities.Transfer{
			Leg:        leg.leg,
			From:       leg.from,
			To:         leg.to,
			Amount:     leg.amount,
			TransferID: receipt.TransferID,
			Hash:       receipt.Hash,
		})
	}
	return transfers, "", nil
}

func (s Service) flagManualReview(ctx context.Context, orderID string, step string, reason string, posted []entities.Transfer) (entities.Order, error) {
	if s.Metrics != nil {
		s.Metrics.ManualReviewFlagged(step)
	}
	return s.mutate(ctx, orderID, step, func(tx ports.Tx, current *entities.Order, now time.Time) (string, map[string]any, error) {
		if current.Commission.Distributed {
			return "", nil, nil
		}
		current.FlagManualReview(step, reason, now)
		current.ManualReview.Posted = append([]entities.Transfer(nil), posted...)
		return "order.manual_review", map[string]any{"step": step, "reason": reason, "posted_legs": len(posted)}, nil
	})
}

func (s Service) recordDistribution(outcome string) {
	if s.Metrics != nil {
		s.Metrics.CommissionDistributed(outcome)
	}
}

func (s Service) accounts() Accounts {
	accounts := s.Accounts
	if accounts.Escrow == "" {
		accounts.Escrow = "escrow"
	}
	if accounts.Platform == "" {
		accounts.Platform = "platform-treasury"
	}
	if accounts.Franchise == "" {
		accounts.Franchise = "franchise-pool"
	}
	return accounts
}
