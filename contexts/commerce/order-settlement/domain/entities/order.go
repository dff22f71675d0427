package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
)

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusConfirmed         OrderStatus = "confirmed"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusShipped           OrderStatus = "shipped"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusNeedsManualReview OrderStatus = "needs_manual_review"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded, OrderStatusNeedsManualReview:
		return true
	}
	return false
}

// Paid reports whether the order has a confirmed payment that has not been
// returned to the buyer.
func (s OrderStatus) Paid() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusNeedsManualReview:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type ReversalStatus string

const (
	ReversalNone      ReversalStatus = "none"
	ReversalPending   ReversalStatus = "pending"
	ReversalCompleted ReversalStatus = "completed"
	ReversalFailed    ReversalStatus = "failed"
)

type FraudStatus string

const (
	FraudPassed FraudStatus = "passed"
	FraudReview FraudStatus = "review"
	FraudFailed FraudStatus = "failed"
)

type ChainMetadata struct {
	Network     string
	TxHash      string
	BlockNumber uint64
}

type Payment struct {
	Method         string
	Status         PaymentStatus
	TransactionRef string
	ConfirmedAt    time.Time
	Chain          *ChainMetadata
}

// Transfer is one posted ledger leg of a distribution or reversal.
type Transfer struct {
	Leg        string
	From       string
	To         string
	Amount     decimal.Decimal
	TransferID string
	Hash       string
}

type Reversal struct {
	Status    ReversalStatus
	Hash      string
	Transfers []Transfer
	At        time.Time
}

type Commission struct {
	commission.Breakdown
	ComputedAt       time.Time
	Distributed      bool
	DistributionHash string
	DistributedAt    time.Time
	Transfers        []Transfer
	Reversal         Reversal
}

func (c Commission) Computed() bool {
	return !c.ComputedAt.IsZero()
}

type TimelineEvent struct {
	Status OrderStatus
	Step   string
	Note   string
	Actor  string
	At     time.Time
}

type Delivery struct {
	Address        string
	TrackingNumber string
	ShippedAt      time.Time
	DeliveredAt    time.Time
}

type FraudCheck struct {
	Status    FraudStatus
	RiskScore float64
	Flags     []string
}

// ManualReview records the step an operator has to finish by hand.
// PreviousStatus is restored when the step later succeeds.
type ManualReview struct {
	Step           string
	Reason         string
	PreviousStatus OrderStatus
	// Posted holds legs the ledger accepted before the step failed.
	Posted         []Transfer
	At             time.Time
	ResolvedAt     time.Time
}

func (m *ManualReview) Open() bool {
	return m != nil && m.ResolvedAt.IsZero()
}

type Order struct {
	OrderID      string
	BuyerID      string
	SellerID     string
	ProductID    string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	Currency     string
	Payment      Payment
	Commission   Commission
	Status       OrderStatus
	Timeline     []TimelineEvent
	Delivery     Delivery
	FraudCheck   FraudCheck
	ManualReview *ManualReview
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
