package entities

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func paidOrder(t *testing.T) Order {
	t.Helper()
	order := Order{
		OrderID:    "order-1",
		Quantity:   1,
		TotalPrice: decimal.NewFromInt(1000),
		Status:     OrderStatusPending,
		Commission: Commission{Reversal: Reversal{Status: ReversalNone}},
	}
	if err := order.ConfirmPayment(Payment{Method: "card", TransactionRef: "tx-1"}, "gateway", at); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	breakdown, err := commission.Calculate(order.TotalPrice, commission.TierVIP)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if err := order.ApplyCommission(breakdown, at); err != nil {
		t.Fatalf("apply commission: %v", err)
	}
	return order
}

func TestReserveFlipsInStockOnlyAtZero(t *testing.T) {
	product := Product{Stock: 3, InStock: true}
	if err := product.Reserve(2); err != nil || product.Stock != 1 || !product.InStock {
		t.Fatalf("unexpected product after reserve: %+v (%v)", product, err)
	}
	if err := product.Reserve(2); !errors.Is(err, domainerrors.ErrInsufficientStock) || product.Stock != 1 {
		t.Fatalf("over-reserve must fail without mutation: %+v (%v)", product, err)
	}
	if err := product.Reserve(1); err != nil || product.Stock != 0 || product.InStock {
		t.Fatalf("expected empty product: %+v (%v)", product, err)
	}
	product.Restore(1)
	if product.Stock != 1 || !product.InStock {
		t.Fatalf("restore must bring the product back: %+v", product)
	}
}

func TestApplyCommissionIsWriteOnce(t *testing.T) {
	order := paidOrder(t)
	other, _ := commission.Calculate(order.TotalPrice, commission.TierBasic)
	if err := order.ApplyCommission(other, at); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("second commission must be rejected, got %v", err)
	}
	if order.Commission.Tier != commission.TierVIP {
		t.Fatalf("commission changed to %s", order.Commission.Tier)
	}
}

func TestMarkDistributedOnlyOnce(t *testing.T) {
	order := paidOrder(t)
	if err := order.CanDistribute(); err != nil {
		t.Fatalf("can distribute: %v", err)
	}
	if !order.MarkDistributed("0xabc", []Transfer{{Leg: "platform"}}, at) {
		t.Fatalf("first mark must succeed")
	}
	if order.MarkDistributed("0xdef", nil, at.Add(time.Minute)) {
		t.Fatalf("second mark must be a no-op")
	}
	if order.Commission.DistributionHash != "0xabc" || len(order.Commission.Transfers) != 1 {
		t.Fatalf("distribution record changed: %+v", order.Commission)
	}
}

func TestCanDistributeRequiresComputedCommission(t *testing.T) {
	order := Order{Status: OrderStatusConfirmed}
	if err := order.CanDistribute(); !errors.Is(err, domainerrors.ErrCommissionNotComputed) {
		t.Fatalf("expected commission not computed, got %v", err)
	}
}

func TestManualReviewRestoresPreviousStatus(t *testing.T) {
	order := paidOrder(t)
	if err := order.Advance(OrderStatusProcessing, "", "ops", at); err != nil {
		t.Fatalf("advance: %v", err)
	}
	order.FlagManualReview("distribute_commission", "ledger down", at)
	order.FlagManualReview("distribute_commission", "ledger still down", at.Add(time.Minute))
	if order.Status != OrderStatusNeedsManualReview || order.ManualReview.PreviousStatus != OrderStatusProcessing {
		t.Fatalf("unexpected review state %s / %+v", order.Status, order.ManualReview)
	}
	order.MarkDistributed("0xabc", nil, at.Add(2*time.Minute))
	if order.Status != OrderStatusProcessing || order.ManualReview.Open() {
		t.Fatalf("expected review resolved back to processing, got %s", order.Status)
	}
}

func TestRefundRequestsReversalOfDistributedCommission(t *testing.T) {
	order := paidOrder(t)
	order.MarkDistributed("0xabc", []Transfer{{Leg: "seller", Amount: decimal.NewFromInt(700)}}, at)
	if err := order.Refund("damaged", "support", at); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if order.Status != OrderStatusRefunded || !order.NeedsReversal() {
		t.Fatalf("expected refund with pending reversal: %s / %s", order.Status, order.Commission.Reversal.Status)
	}
	if !order.Commission.SellerAmount.Equal(decimal.NewFromInt(700)) || !order.Commission.Distributed {
		t.Fatalf("refund must not rewrite the commission record")
	}
	if err := order.Refund("again", "support", at); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("second refund must fail, got %v", err)
	}

	order.FailReversal("reverse_commission", "ledger down", at)
	if order.Status != OrderStatusRefunded || !order.ManualReview.Open() || !order.NeedsReversal() {
		t.Fatalf("failed reversal must stay refunded under review: %+v", order)
	}
	order.CompleteReversal("0xrev", nil, at)
	if order.NeedsReversal() || order.ManualReview.Open() {
		t.Fatalf("completed reversal must close the review")
	}
}

func TestRefundWithoutDistributionNeedsNoReversal(t *testing.T) {
	order := paidOrder(t)
	order.FlagManualReview("distribute_commission", "ledger down", at)
	if err := order.Refund("", "support", at); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if order.NeedsReversal() || order.ManualReview.Open() {
		t.Fatalf("undistributed refund must close the payout review")
	}
	if order.MarkDistributed("0xlate", nil, at) && order.Commission.Reversal.Status != ReversalPending {
		t.Fatalf("a payout landing after refund must request a reversal")
	}
}

func TestRefundKeepsReviewWhenLegsWerePosted(t *testing.T) {
	order := paidOrder(t)
	order.FlagManualReview("distribute_commission", "platform leg: ledger down", at)
	order.ManualReview.Posted = []Transfer{{Leg: "seller", From: "escrow", To: "0xseller", Amount: order.Commission.SellerAmount}}
	if err := order.Refund("", "support", at); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !order.ManualReview.Open() {
		t.Fatalf("partially posted payout must stay in review after refund")
	}
}

func TestCancelAndAdvanceGuards(t *testing.T) {
	pending := Order{Status: OrderStatusPending}
	if err := pending.Advance(OrderStatusProcessing, "", "ops", at); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("unpaid order must not advance, got %v", err)
	}
	if err := pending.Cancel("changed mind", "buyer", at); err != nil || pending.Status != OrderStatusCancelled {
		t.Fatalf("cancel: %v", err)
	}
	if err := pending.Cancel("again", "buyer", at); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("double cancel must fail, got %v", err)
	}
	if err := pending.Refund("", "support", at); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("cancelled order cannot be refunded, got %v", err)
	}
}
