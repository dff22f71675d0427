package http

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	BuyerID         string `json:"buyer_id"`
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
}

type ChainDTO struct {
	Network     string `json:"network"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

type PayOrderRequest struct {
	Method         string          `json:"method"`
	TransactionRef string          `json:"transaction_ref"`
	Amount         decimal.Decimal `json:"amount" swaggertype:"string"`
	Chain          *ChainDTO       `json:"chain,omitempty"`
	ActorID        string          `json:"actor_id,omitempty"`
}

type RefundOrderRequest struct {
	Reason  string `json:"reason,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type AdvanceOrderRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
}

type CancelOrderRequest struct {
	Reason  string `json:"reason,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type UpsertProductRequest struct {
	SellerID string          `json:"seller_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price" swaggertype:"string"`
	Currency string          `json:"currency,omitempty"`
	Stock    int             `json:"stock"`
}

type UpsertSellerRequest struct {
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	WalletAddress string `json:"wallet_address"`
	Active        bool   `json:"active"`
}

type ProductResponse struct {
	ProductID string          `json:"product_id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price" swaggertype:"string"`
	Currency  string          `json:"currency"`
	Stock     int             `json:"stock"`
	InStock   bool            `json:"in_stock"`
	Version   int64           `json:"version"`
}

type SellerResponse struct {
	SellerID      string `json:"seller_id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	WalletAddress string `json:"wallet_address"`
	Active        bool   `json:"active"`
}

type PaymentDTO struct {
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	TransactionRef string     `json:"transaction_ref,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	Chain          *ChainDTO  `json:"chain,omitempty"`
}

type TransferDTO struct {
	Leg        string          `json:"leg"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"string"`
	TransferID string          `json:"transfer_id"`
	Hash       string          `json:"hash"`
}

type ReversalDTO struct {
	Status    string        `json:"status"`
	Hash      string        `json:"hash,omitempty"`
	Transfers []TransferDTO `json:"transfers,omitempty"`
	At        *time.Time    `json:"at,omitempty"`
}

type CommissionDTO struct {
	Tier                string          `json:"tier,omitempty"`
	SellerAmount        decimal.Decimal `json:"seller_amount" swaggertype:"string"`
	PlatformFee         decimal.Decimal `json:"platform_fee" swaggertype:"string"`
	FranchiseCommission decimal.Decimal `json:"franchise_commission" swaggertype:"string"`
	SellerRate          decimal.Decimal `json:"seller_rate" swaggertype:"string"`
	PlatformRate        decimal.Decimal `json:"platform_rate" swaggertype:"string"`
	FranchiseRate       decimal.Decimal `json:"franchise_rate" swaggertype:"string"`
	ComputedAt          *time.Time      `json:"computed_at,omitempty"`
	Distributed         bool            `json:"distributed"`
	DistributionHash    string          `json:"distribution_hash,omitempty"`
	DistributedAt       *time.Time      `json:"distributed_at,omitempty"`
	Transfers           []TransferDTO   `json:"transfers,omitempty"`
	Reversal            ReversalDTO     `json:"reversal"`
}

type TimelineEventDTO struct {
	Status string    `json:"status"`
	Step   string    `json:"step"`
	Note   string    `json:"note,omitempty"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

type DeliveryDTO struct {
	Address        string     `json:"address,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

type FraudCheckDTO struct {
	Status    string   `json:"status"`
	RiskScore float64  `json:"risk_score"`
	Flags     []string `json:"flags"`
}

type ManualReviewDTO struct {
	Step           string        `json:"step"`
	Reason         string        `json:"reason"`
	PreviousStatus string        `json:"previous_status"`
	PostedLegs     []TransferDTO `json:"posted_legs,omitempty"`
	At             time.Time     `json:"at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}

type OrderResponse struct {
	OrderID      string             `json:"order_id"`
	BuyerID      string             `json:"buyer_id"`
	SellerID     string             `json:"seller_id"`
	ProductID    string             `json:"product_id"`
	Quantity     int                `json:"quantity"`
	UnitPrice    decimal.Decimal    `json:"unit_price" swaggertype:"string"`
	TotalPrice   decimal.Decimal    `json:"total_price" swaggertype:"string"`
	Currency     string             `json:"currency"`
	Status       string             `json:"status"`
	Payment      PaymentDTO         `json:"payment"`
	Commission   CommissionDTO      `json:"commission"`
	Timeline     []TimelineEventDTO `json:"timeline"`
	Delivery     DeliveryDTO        `json:"delivery"`
	FraudCheck   FraudCheckDTO      `json:"fraud_check"`
	ManualReview *ManualReviewDTO   `json:"manual_review,omitempty"`
	Version      int64              `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Replayed     bool               `json:"replayed,omitempty"`
}

type DistributionResponse struct {
	Order              OrderResponse `json:"order"`
	AlreadyDistributed bool          `json:"already_distributed"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
}
