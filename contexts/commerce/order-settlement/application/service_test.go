package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/adapters/memory"
	"marketdao/contexts/commerce/order-settlement/application"
	"marketdao/contexts/commerce/order-settlement/domain/commission"
	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	store   *memory.Store
	ledger  *memory.Ledger
	service application.Service
}

func newFixture(t *testing.T, tier commission.Tier, price string, stock int) fixture {
	t.Helper()
	store := memory.NewStore()
	ledger := memory.NewLedger()
	fast := application.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	service := application.Service{
		UoW:           store,
		Orders:        store,
		Catalog:       store,
		CatalogWriter: store,
		Ledger:        ledger,
		Idempotency:   store,
		Clock:         fixedClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		IDGen:         store,
		ConflictRetry: fast,
		LedgerRetry:   fast,
	}
	ctx := context.Background()
	if _, err := service.UpsertSeller(ctx, entities.Seller{
		SellerID: "seller-1", Name: "Acme", Tier: tier, WalletAddress: "0xSELLER", Active: true,
	}); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	if _, err := service.UpsertProduct(ctx, entities.Product{
		ProductID: "product-1", SellerID: "seller-1", Name: "Widget",
		Price: decimal.RequireFromString(price), Currency: "usd", Stock: stock,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return fixture{store: store, ledger: ledger, service: service}
}

func (f fixture) checkout(t *testing.T, quantity int) entities.Order {
	t.Helper()
	result, err := f.service.Checkout(context.Background(), application.CheckoutCommand{
		BuyerID: "buyer-1", ProductID: "product-1", Quantity: quantity, PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return result.Order
}

func (f fixture) pay(t *testing.T, orderID string, key string) entities.Order {
	t.Helper()
	result, err := f.service.PayOrder(context.Background(), application.PayOrderCommand{
		IdempotencyKey: key, OrderID: orderID, Method: "card", TransactionRef: "tx-" + key,
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	return result.Order
}

func (f fixture) stock(t *testing.T) entities.Product {
	t.Helper()
	product, err := f.store.GetProduct(context.Background(), "product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product
}

func countEvents(types []string, eventType string) int {
	n := 0
	for _, t := range types {
		if t == eventType {
			n++
		}
	}
	return n
}

func TestPayOrderSettlesVIPOrderAndEmptiesStock(t *testing.T) {
	f := newFixture(t, commission.TierVIP, "500", 2)
	order := f.checkout(t, 2)
	if !order.TotalPrice.Equal(decimal.NewFromInt(1000)) || order.Status != entities.OrderStatusPending {
		t.Fatalf("unexpected checked-out order: %+v", order)
	}

	paid := f.pay(t, order.OrderID, "pay-1")
	if paid.Status != entities.OrderStatusConfirmed || paid.Payment.Status != entities.PaymentStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s / %s", paid.Status, paid.Payment.Status)
	}
	c := paid.Commission
	if c.SellerAmount.String() != "700" || c.PlatformFee.String() != "180" || c.FranchiseCommission.String() != "120" {
		t.Fatalf("unexpected vip split: %s/%s/%s", c.SellerAmount, c.PlatformFee, c.FranchiseCommission)
	}
	if c.Distributed {
		t.Fatalf("payment must not distribute without auto-distribute")
	}
	product := f.stock(t)
	if product.Stock != 0 || product.InStock {
		t.Fatalf("expected empty stock, got %+v", product)
	}
	steps := make([]string, 0, len(paid.Timeline))
	for _, event := range paid.Timeline {
		steps = append(steps, event.Step)
	}
	want := []string{"created", "payment_confirmed", "commission_computed", "stock_reserved"}
	if len(steps) != len(want) {
		t.Fatalf("unexpected timeline %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("unexpected timeline %v", steps)
		}
	}
}

func TestPayOrderKeepsInStockWhileUnitsRemain(t *testing.T) {
	f := newFixture(t, commission.TierBasic, "10", 10)
	order := f.checkout(t, 1)
	f.pay(t, order.OrderID, "pay-1")
	product := f.stock(t)
	if product.Stock != 9 || !product.InStock {
		t.Fatalf("expected 9 units in stock, got %+v", product)
	}
}

func TestPayOrderValidationAbortsBeforeMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "25", 5)
	order := f.checkout(t, 3)

	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "k1", OrderID: order.OrderID, Method: "card", TransactionRef: "tx",
		Amount: decimal.RequireFromString("10"),
	}); !errors.Is(err, domainerrors.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	if _, err := f.service.UpsertProduct(ctx, entities.Product{
		ProductID: "product-1", SellerID: "seller-1", Price: decimal.RequireFromString("30"), Stock: 5,
	}); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "k2", OrderID: order.OrderID, Method: "card", TransactionRef: "tx",
	}); !errors.Is(err, domainerrors.ErrPriceMismatch) {
		t.Fatalf("expected price mismatch, got %v", err)
	}

	if _, err := f.service.UpsertProduct(ctx, entities.Product{
		ProductID: "product-1", SellerID: "seller-1", Price: decimal.RequireFromString("25"), Stock: 2,
	}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "k3", OrderID: order.OrderID, Method: "card", TransactionRef: "tx",
	}); !errors.Is(err, domainerrors.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if _, err := f.service.UpsertSeller(ctx, entities.Seller{SellerID: "seller-1", WalletAddress: "0xSELLER", Active: false}); err != nil {
		t.Fatalf("deactivate seller: %v", err)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "k4", OrderID: order.OrderID, Method: "card", TransactionRef: "tx",
	}); !errors.Is(err, domainerrors.ErrSellerInactive) || !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected inactive seller validation error, got %v", err)
	}

	current, _ := f.store.GetOrder(ctx, order.OrderID)
	if current.Status != entities.OrderStatusPending || current.Commission.Computed() || len(current.Timeline) != 1 {
		t.Fatalf("failed validation must not mutate the order: %+v", current)
	}
	if f.stock(t).Stock != 2 {
		t.Fatalf("failed validation must not touch stock")
	}
	if countEvents(f.store.PendingEventTypes(), "order.paid") != 0 {
		t.Fatalf("no payment event expected")
	}
}

func TestPayOrderReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierHigh, "40", 5)
	order := f.checkout(t, 1)
	first := f.pay(t, order.OrderID, "pay-1")

	replay, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "pay-1", OrderID: order.OrderID, Method: "card", TransactionRef: "tx-pay-1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Order.Version != first.Version {
		t.Fatalf("expected replay of v%d, got %+v", first.Version, replay)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "pay-1", OrderID: order.OrderID, Method: "crypto", TransactionRef: "tx-other",
	}); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "pay-2", OrderID: order.OrderID, Method: "card", TransactionRef: "tx-again",
	}); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("second payment must be rejected, got %v", err)
	}
	if f.stock(t).Stock != 4 {
		t.Fatalf("stock must be reserved once")
	}
}

var errIdempotencyWrite = errors.New("idempotency write failed")

// flakyIdempotencyUoW fails the next failures idempotency writes made inside
// a unit of work.
type flakyIdempotencyUoW struct {
	ports.UnitOfWork
	failures int
}

func (u *flakyIdempotencyUoW) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return u.UnitOfWork.WithinTx(ctx, func(tx ports.Tx) error {
		return fn(flakyIdempotencyTx{Tx: tx, uow: u})
	})
}

type flakyIdempotencyTx struct {
	ports.Tx
	uow *flakyIdempotencyUoW
}

func (t flakyIdempotencyTx) PutIdempotency(ctx context.Context, record ports.IdempotencyRecord) error {
	if t.uow.failures > 0 {
		t.uow.failures--
		return errIdempotencyWrite
	}
	return t.Tx.PutIdempotency(ctx, record)
}

func TestPayOrderRetriesCleanlyWhenIdempotencyWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierBasic, "25", 3)
	order := f.checkout(t, 1)
	f.service.UoW = &flakyIdempotencyUoW{UnitOfWork: f.store, failures: 1}
	cmd := application.PayOrderCommand{
		IdempotencyKey: "pay-flaky", OrderID: order.OrderID, Method: "card", TransactionRef: "tx-flaky",
	}

	if _, err := f.service.PayOrder(ctx, cmd); !errors.Is(err, errIdempotencyWrite) {
		t.Fatalf("expected idempotency write failure, got %v", err)
	}
	stored, err := f.store.GetOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != entities.OrderStatusPending || stored.Version != order.Version {
		t.Fatalf("failed payment must roll back, got %s v%d", stored.Status, stored.Version)
	}
	if f.stock(t).Stock != 3 {
		t.Fatalf("stock must not be reserved by the rolled back payment")
	}
	if got := countEvents(f.store.PendingEventTypes(), "order.paid"); got != 0 {
		t.Fatalf("rolled back payment must not emit order.paid, got %d", got)
	}

	retried, err := f.service.PayOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("retry with the same key: %v", err)
	}
	if retried.Replayed || retried.Order.Status != entities.OrderStatusConfirmed {
		t.Fatalf("expected a fresh confirmed payment, got %+v", retried)
	}
	replay, err := f.service.PayOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Order.Version != retried.Order.Version {
		t.Fatalf("expected replay of v%d, got %+v", retried.Order.Version, replay)
	}
	if f.stock(t).Stock != 2 {
		t.Fatalf("stock must be reserved once, got %d", f.stock(t).Stock)
	}
}

func TestCheckoutRollsBackWhenIdempotencyWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierBasic, "25", 3)
	f.service.UoW = &flakyIdempotencyUoW{UnitOfWork: f.store, failures: 1}
	cmd := application.CheckoutCommand{
		IdempotencyKey: "checkout-flaky", BuyerID: "buyer-1", ProductID: "product-1", Quantity: 1, PaymentMethod: "card",
	}

	if _, err := f.service.Checkout(ctx, cmd); !errors.Is(err, errIdempotencyWrite) {
		t.Fatalf("expected idempotency write failure, got %v", err)
	}
	if got := countEvents(f.store.PendingEventTypes(), "order.created"); got != 0 {
		t.Fatalf("rolled back checkout must not emit order.created, got %d", got)
	}
	first, err := f.service.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("retry checkout: %v", err)
	}
	again, err := f.service.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("replay checkout: %v", err)
	}
	if !again.Replayed || again.Order.OrderID != first.Order.OrderID {
		t.Fatalf("expected replay of %s, got %+v", first.Order.OrderID, again)
	}
	if got := countEvents(f.store.PendingEventTypes(), "order.created"); got != 1 {
		t.Fatalf("expected one order.created, got %d", got)
	}
}

func TestDistributeCommissionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierVIP, "1000", 3)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")

	first, err := f.service.DistributeCommission(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if first.AlreadyDistributed || !first.Order.Commission.Distributed || first.Order.Commission.DistributionHash == "" {
		t.Fatalf("unexpected first distribution: %+v", first.Order.Commission)
	}
	if got := f.ledger.Balance("platform-treasury"); got.String() != "180" {
		t.Fatalf("platform balance = %s", got)
	}
	calls := f.ledger.Calls()

	second, err := f.service.DistributeCommission(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if !second.AlreadyDistributed || second.Order.Commission.DistributionHash != first.Order.Commission.DistributionHash {
		t.Fatalf("second distribution must be a no-op: %+v", second)
	}
	if f.ledger.Calls() != calls || f.ledger.Balance("0xSELLER").String() != "700" {
		t.Fatalf("no-op distribution must not touch the ledger")
	}
	if countEvents(f.store.PendingEventTypes(), "commission.distributed") != 1 {
		t.Fatalf("expected exactly one distribution event")
	}
}

func TestDistributeCommissionEscalatesToManualReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "100", 3)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")

	f.ledger.FailNext(100)
	_, err := f.service.DistributeCommission(ctx, order.OrderID)
	if !errors.Is(err, domainerrors.ErrExternalDependency) {
		t.Fatalf("expected external dependency error, got %v", err)
	}
	if f.ledger.Calls() != 3 {
		t.Fatalf("expected 3 ledger attempts, got %d", f.ledger.Calls())
	}
	flagged, _ := f.store.GetOrder(ctx, order.OrderID)
	if flagged.Status != entities.OrderStatusNeedsManualReview || !flagged.ManualReview.Open() ||
		flagged.ManualReview.Step != "distribute_commission" || flagged.Commission.Distributed {
		t.Fatalf("expected open manual review, got %+v / %+v", flagged.Status, flagged.ManualReview)
	}
	queue, err := f.service.ListManualReview(ctx, 10)
	if err != nil || len(queue) != 1 {
		t.Fatalf("expected one order in review, got %d (%v)", len(queue), err)
	}

	f.ledger.FailNext(0)
	resolved, err := f.service.DistributeCommission(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("retry distribute: %v", err)
	}
	if resolved.Order.Status != entities.OrderStatusConfirmed || resolved.Order.ManualReview.Open() {
		t.Fatalf("successful retry must restore the order, got %s", resolved.Order.Status)
	}
	if !resolved.Order.Commission.SellerAmount.Equal(order.Commission.SellerAmount) {
		t.Fatalf("commission amounts must not change")
	}
}

func TestPartialDistributionKeepsReviewThroughRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "100", 3)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")

	f.ledger.FailReferences(":platform")
	if _, err := f.service.DistributeCommission(ctx, order.OrderID); !errors.Is(err, domainerrors.ErrExternalDependency) {
		t.Fatalf("expected external dependency error, got %v", err)
	}
	flagged, _ := f.store.GetOrder(ctx, order.OrderID)
	if !flagged.ManualReview.Open() || len(flagged.ManualReview.Posted) != 1 || flagged.ManualReview.Posted[0].Leg != "seller" {
		t.Fatalf("expected review recording the seller leg, got %+v", flagged.ManualReview)
	}

	refunded, err := f.service.RefundOrder(ctx, application.RefundOrderCommand{OrderID: order.OrderID})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != entities.OrderStatusRefunded || !refunded.ManualReview.Open() {
		t.Fatalf("refund must leave the partial payout in review, got %s / %+v", refunded.Status, refunded.ManualReview)
	}
}

func TestRefundRestoresStockAndReversesCommission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierHigh, "200", 10)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")
	if f.stock(t).Stock != 9 {
		t.Fatalf("expected stock 9 after settlement")
	}
	distributed, err := f.service.DistributeCommission(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	refunded, err := f.service.RefundOrder(ctx, application.RefundOrderCommand{OrderID: order.OrderID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	product := f.stock(t)
	if product.Stock != 10 || !product.InStock {
		t.Fatalf("expected stock restored to 10, got %+v", product)
	}
	if refunded.Status != entities.OrderStatusRefunded || refunded.Payment.Status != entities.PaymentStatusRefunded {
		t.Fatalf("unexpected refund state %s / %s", refunded.Status, refunded.Payment.Status)
	}
	if refunded.Commission.Reversal.Status != entities.ReversalPending {
		t.Fatalf("expected pending reversal, got %s", refunded.Commission.Reversal.Status)
	}
	if countEvents(f.store.PendingEventTypes(), "commission.reversal_requested") != 1 {
		t.Fatalf("expected reversal request event")
	}

	again, err := f.service.DistributeCommission(ctx, order.OrderID)
	if err != nil || !again.AlreadyDistributed {
		t.Fatalf("distribute after refund must be a no-op, got %+v (%v)", again, err)
	}
	if again.Order.Commission.DistributionHash != distributed.Order.Commission.DistributionHash {
		t.Fatalf("distribution record changed after refund")
	}

	reversed, err := f.service.ReverseCommission(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversed.Commission.Reversal.Status != entities.ReversalCompleted || len(reversed.Commission.Reversal.Transfers) != 3 {
		t.Fatalf("unexpected reversal: %+v", reversed.Commission.Reversal)
	}
	for _, account := range []string{"platform-treasury", "franchise-pool", "0xSELLER", "escrow"} {
		if !f.ledger.Balance(account).IsZero() {
			t.Fatalf("account %s not reconciled: %s", account, f.ledger.Balance(account))
		}
	}
	if !reversed.Commission.PlatformFee.Equal(distributed.Order.Commission.PlatformFee) {
		t.Fatalf("reversal must not rewrite commission amounts")
	}

	if _, err := f.service.RefundOrder(ctx, application.RefundOrderCommand{OrderID: order.OrderID}); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("second refund must be rejected, got %v", err)
	}
}

func TestReverseCommissionFailureOpensManualReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierBasic, "80", 4)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")
	if _, err := f.service.DistributeCommission(ctx, order.OrderID); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if _, err := f.service.RefundOrder(ctx, application.RefundOrderCommand{OrderID: order.OrderID}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	f.ledger.FailReferences(":reversal:platform")
	if _, err := f.service.ReverseCommission(ctx, order.OrderID); !errors.Is(err, domainerrors.ErrLedgerUnavailable) {
		t.Fatalf("expected ledger failure, got %v", err)
	}
	failed, _ := f.store.GetOrder(ctx, order.OrderID)
	if failed.Commission.Reversal.Status != entities.ReversalFailed || !failed.ManualReview.Open() || failed.Status != entities.OrderStatusRefunded {
		t.Fatalf("unexpected failed reversal state: %+v", failed)
	}

	f.ledger.FailReferences("")
	reversed, err := f.service.ReverseCommission(ctx, order.OrderID)
	if err != nil || reversed.Commission.Reversal.Status != entities.ReversalCompleted || reversed.ManualReview.Open() {
		t.Fatalf("retry must complete the reversal, got %+v (%v)", reversed.Commission.Reversal, err)
	}
}

func TestAutoDistributeOnPaymentAndAutoReverseOnRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierVIP, "50", 5)
	f.service.AutoDistribute = true

	paid := f.pay(t, f.checkout(t, 2).OrderID, "pay-1")
	if !paid.Commission.Distributed {
		t.Fatalf("expected automatic distribution")
	}
	refunded, err := f.service.RefundOrder(ctx, application.RefundOrderCommand{OrderID: paid.OrderID})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Commission.Reversal.Status != entities.ReversalCompleted {
		t.Fatalf("expected automatic reversal, got %s", refunded.Commission.Reversal.Status)
	}
}

func TestAutoDistributeFailureKeepsPayment(t *testing.T) {
	f := newFixture(t, commission.TierVIP, "50", 5)
	f.service.AutoDistribute = true
	f.ledger.FailNext(100)

	paid := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")
	if paid.Status != entities.OrderStatusNeedsManualReview || paid.Payment.Status != entities.PaymentStatusConfirmed {
		t.Fatalf("payment must stand while payout waits for review, got %s / %s", paid.Status, paid.Payment.Status)
	}
	if f.stock(t).Stock != 4 {
		t.Fatalf("stock reservation must stand")
	}
}

func TestFulfilmentIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "15", 5)
	order := f.pay(t, f.checkout(t, 1).OrderID, "pay-1")

	if _, err := f.service.AdvanceOrder(ctx, application.AdvanceOrderCommand{OrderID: order.OrderID, To: entities.OrderStatusShipped}); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("skipping processing must fail, got %v", err)
	}
	for _, to := range []entities.OrderStatus{entities.OrderStatusProcessing, entities.OrderStatusShipped, entities.OrderStatusDelivered} {
		updated, err := f.service.AdvanceOrder(ctx, application.AdvanceOrderCommand{OrderID: order.OrderID, To: to, TrackingNumber: "TRACK-1"})
		if err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
		order = updated
	}
	if order.Delivery.TrackingNumber != "TRACK-1" || order.Delivery.ShippedAt.IsZero() || order.Delivery.DeliveredAt.IsZero() {
		t.Fatalf("unexpected delivery record: %+v", order.Delivery)
	}
	if _, err := f.service.AdvanceOrder(ctx, application.AdvanceOrderCommand{OrderID: order.OrderID, To: entities.OrderStatusProcessing}); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("moving backwards must fail, got %v", err)
	}
	if _, err := f.service.CancelOrder(ctx, application.CancelOrderCommand{OrderID: order.OrderID}); !errors.Is(err, domainerrors.ErrInvalidOrderState) {
		t.Fatalf("paid orders cannot be cancelled, got %v", err)
	}

	pending := f.checkout(t, 1)
	cancelled, err := f.service.CancelOrder(ctx, application.CancelOrderCommand{OrderID: pending.OrderID, Reason: "changed mind"})
	if err != nil || cancelled.Status != entities.OrderStatusCancelled {
		t.Fatalf("cancel pending: %+v (%v)", cancelled.Status, err)
	}
	listed, err := f.service.ListOrdersByStatus(ctx, entities.OrderStatusCancelled, 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one cancelled order, got %d (%v)", len(listed), err)
	}
}

func TestFraudScreenBlocksSelfPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "15", 5)
	result, err := f.service.Checkout(ctx, application.CheckoutCommand{
		BuyerID: "seller-1", ProductID: "product-1", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Order.FraudCheck.Status != entities.FraudFailed {
		t.Fatalf("expected failed fraud check, got %+v", result.Order.FraudCheck)
	}
	if _, err := f.service.PayOrder(ctx, application.PayOrderCommand{
		IdempotencyKey: "k", OrderID: result.Order.OrderID, Method: "card", TransactionRef: "tx",
	}); !errors.Is(err, domainerrors.ErrFraudCheckFailed) {
		t.Fatalf("expected fraud rejection, got %v", err)
	}
}

func TestCheckoutRejectsUnknownProductAndBadQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.TierNormal, "15", 5)
	if _, err := f.service.Checkout(ctx, application.CheckoutCommand{BuyerID: "b", ProductID: "nope", Quantity: 1}); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.Checkout(ctx, application.CheckoutCommand{BuyerID: "b", ProductID: "product-1", Quantity: 0}); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.service.Checkout(ctx, application.CheckoutCommand{BuyerID: "b", ProductID: "product-1", Quantity: 6}); !errors.Is(err, domainerrors.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}
