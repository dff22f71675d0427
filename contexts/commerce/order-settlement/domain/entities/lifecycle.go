package entities

import (
	"strings"
	"time"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

// fulfilment is the forward-only shipping path of a paid order.
var fulfilment = map[OrderStatus]OrderStatus{
	OrderStatusConfirmed:  OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// Record appends to the timeline. Entries are never edited or removed.
func (o *Order) Record(step string, note string, actor string, at time.Time) {
	o.Timeline = append(o.Timeline, TimelineEvent{
		Status: o.Status,
		Step:   step,
		Note:   note,
		Actor:  actor,
		At:     at.UTC(),
	})
	o.UpdatedAt = at.UTC()
}

func (o *Order) ConfirmPayment(payment Payment, actor string, at time.Time) error {
	if o.Status != OrderStatusPending {
		return domainerrors.ErrInvalidOrderState
	}
	payment.Status = PaymentStatusConfirmed
	payment.ConfirmedAt = at.UTC()
	o.Payment = payment
	o.Status = OrderStatusConfirmed
	o.Record("payment_confirmed", "payment "+strings.TrimSpace(payment.TransactionRef)+" confirmed", actor, at)
	return nil
}

// ApplyCommission stores the breakdown once. A second call is rejected so the
// amounts recorded at payment time never change.
func (o *Order) ApplyCommission(breakdown commission.Breakdown, at time.Time) error {
	if o.Commission.Computed() {
		return domainerrors.ErrInvalidOrderState
	}
	if err := breakdown.Verify(o.TotalPrice); err != nil {
		return err
	}
	o.Commission.Breakdown = breakdown
	o.Commission.ComputedAt = at.UTC()
	o.Commission.Reversal.Status = ReversalNone
	o.Record("commission_computed", "commission computed for tier "+string(breakdown.Tier), "system", at)
	return nil
}

// CanDistribute reports whether the commission may be paid out now.
func (o Order) CanDistribute() error {
	if !o.Commission.Computed() {
		return domainerrors.ErrCommissionNotComputed
	}
	if !o.Status.Paid() {
		return domainerrors.ErrInvalidOrderState
	}
	return nil
}

// MarkDistributed flips the distributed flag. It returns false without
// mutating when the flag is already set.
func (o *Order) MarkDistributed(hash string, transfers []Transfer, at time.Time) bool {
	if o.Commission.Distributed {
		return false
	}
	o.Commission.Distributed = true
	o.Commission.DistributionHash = hash
	o.Commission.DistributedAt = at.UTC()
	o.Commission.Transfers = append([]Transfer(nil), transfers...)
	if o.Status == OrderStatusNeedsManualReview {
		o.resolveReview(at)
	}
	o.Record("commission_distributed", "commission distributed", "system", at)
	if o.Status == OrderStatusRefunded {
		// Refunded while the payout was in flight.
		o.Commission.Reversal.Status = ReversalPending
		o.Record("commission_reversal_requested", "offsetting ledger entries requested", "system", at)
	}
	return true
}

// FlagManualReview parks the order until an operator finishes step.
func (o *Order) FlagManualReview(step string, reason string, at time.Time) {
	previous := o.Status
	if o.ManualReview.Open() {
		previous = o.ManualReview.PreviousStatus
	}
	o.ManualReview = &ManualReview{
		Step:           step,
		Reason:         reason,
		PreviousStatus: previous,
		At:             at.UTC(),
	}
	if previous.Paid() {
		o.Status = OrderStatusNeedsManualReview
	}
	o.Record("manual_review", step+": "+reason, "system", at)
}

func (o *Order) resolveReview(at time.Time) {
	if !o.ManualReview.Open() {
		return
	}
	o.ManualReview.ResolvedAt = at.UTC()
	if o.Status == OrderStatusNeedsManualReview {
		o.Status = o.ManualReview.PreviousStatus
	}
}

// Advance moves a paid order one step along processing, shipped, delivered.
func (o *Order) Advance(to OrderStatus, trackingNumber string, actor string, at time.Time) error {
	next, ok := fulfilment[o.Status]
	if !ok || next != to {
		return domainerrors.ErrInvalidOrderState
	}
	switch to {
	case OrderStatusShipped:
		o.Delivery.ShippedAt = at.UTC()
		if tracking := strings.TrimSpace(trackingNumber); tracking != "" {
			o.Delivery.TrackingNumber = tracking
		}
	case OrderStatusDelivered:
		o.Delivery.DeliveredAt = at.UTC()
	}
	o.Status = to
	o.Record("status_"+string(to), "order "+string(to), actor, at)
	return nil
}

// Cancel is only available before payment.
func (o *Order) Cancel(reason string, actor string, at time.Time) error {
	if o.Status != OrderStatusPending {
		return domainerrors.ErrInvalidOrderState
	}
	o.Status = OrderStatusCancelled
	o.Record("cancelled", strings.TrimSpace(reason), actor, at)
	return nil
}

// Refund returns the payment to the buyer. A distributed commission is left
// untouched and a reversal is requested instead.
func (o *Order) Refund(reason string, actor string, at time.Time) error {
	if !o.Status.Paid() {
		return domainerrors.ErrInvalidOrderState
	}
	o.Status = OrderStatusRefunded
	o.Payment.Status = PaymentStatusRefunded
	if o.ManualReview.Open() && o.ManualReview.Step == "distribute_commission" && len(o.ManualReview.Posted) == 0 {
		o.ManualReview.ResolvedAt = at.UTC()
	}
	o.Record("refunded", strings.TrimSpace(reason), actor, at)
	if o.Commission.Distributed {
		o.Commission.Reversal.Status = ReversalPending
		o.Record("commission_reversal_requested", "offsetting ledger entries requested", "system", at)
	}
	return nil
}

// NeedsReversal reports whether distributed funds still have to be clawed back.
func (o Order) NeedsReversal() bool {
	return o.Commission.Distributed &&
		(o.Commission.Reversal.Status == ReversalPending || o.Commission.Reversal.Status == ReversalFailed)
}

func (o *Order) CompleteReversal(hash string, transfers []Transfer, at time.Time) {
	o.Commission.Reversal = Reversal{
		Status:    ReversalCompleted,
		Hash:      hash,
		Transfers: append([]Transfer(nil), transfers...),
		At:        at.UTC(),
	}
	if o.ManualReview.Open() {
		o.ManualReview.ResolvedAt = at.UTC()
	}
	o.Record("commission_reversed", "commission reversal posted", "system", at)
}

func (o *Order) FailReversal(step string, reason string, at time.Time) {
	o.Commission.Reversal.Status = ReversalFailed
	o.Commission.Reversal.At = at.UTC()
	o.FlagManualReview(step, reason, at)
}
