package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	"marketdao/contexts/commerce/order-settlement/domain/entities"
)

type orderModel struct {
	ID             string          `gorm:"column:id;primaryKey"`
	BuyerID        string          `gorm:"column:buyer_id;index"`
	SellerID       string          `gorm:"column:seller_id;index"`
	ProductID      string          `gorm:"column:product_id"`
	Quantity       int             `gorm:"column:quantity"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(20,2)"`
	TotalPrice     decimal.Decimal `gorm:"column:total_price;type:numeric(20,2)"`
	Currency       string          `gorm:"column:currency"`
	Status         string          `gorm:"column:status;index"`
	PaymentStatus  string          `gorm:"column:payment_status"`
	Distributed    bool            `gorm:"column:distributed;index"`
	ReversalStatus string          `gorm:"column:reversal_status"`
	InReview       bool            `gorm:"column:in_review;index"`
	Payment        []byte          `gorm:"column:payment"`
	Commission     []byte          `gorm:"column:commission"`
	Timeline       []byte          `gorm:"column:timeline"`
	Delivery       []byte          `gorm:"column:delivery"`
	FraudCheck     []byte          `gorm:"column:fraud_check"`
	ManualReview   []byte          `gorm:"column:manual_review"`
	Version        int64           `gorm:"column:version"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (orderModel) TableName() string {
	return "settlement_orders"
}

func orderModelFromEntity(o entities.Order) (orderModel, error) {
	row := orderModel{
		ID:             strings.TrimSpace(o.OrderID),
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ProductID:      o.ProductID,
		Quantity:       o.Quantity,
		UnitPrice:      o.UnitPrice,
		TotalPrice:     o.TotalPrice,
		Currency:       o.Currency,
		Status:         string(o.Status),
		PaymentStatus:  string(o.Payment.Status),
		Distributed:    o.Commission.Distributed,
		ReversalStatus: string(o.Commission.Reversal.Status),
		InReview:       o.ManualReview.Open(),
		Version:        o.Version,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
	}
	fields := []struct {
		dst *[]byte
		src any
	}{
		{&row.Payment, o.Payment},
		{&row.Commission, o.Commission},
		{&row.Timeline, o.Timeline},
		{&row.Delivery, o.Delivery},
		{&row.FraudCheck, o.FraudCheck},
		{&row.ManualReview, o.ManualReview},
	}
	for _, field := range fields {
		raw, err := json.Marshal(field.src)
		if err != nil {
			return orderModel{}, err
		}
		*field.dst = raw
	}
	return row, nil
}

func (m orderModel) toEntity() (entities.Order, error) {
	order := entities.Order{
		OrderID:    m.ID,
		BuyerID:    m.BuyerID,
		SellerID:   m.SellerID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		TotalPrice: m.TotalPrice,
		Currency:   m.Currency,
		Status:     entities.OrderStatus(m.Status),
		Version:    m.Version,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
	fields := []struct {
		src []byte
		dst any
	}{
		{m.Payment, &order.Payment},
		{m.Commission, &order.Commission},
		{m.Timeline, &order.Timeline},
		{m.Delivery, &order.Delivery},
		{m.FraudCheck, &order.FraudCheck},
		{m.ManualReview, &order.ManualReview},
	}
	for _, field := range fields {
		if err := decodeJSON(field.src, field.dst); err != nil {
			return entities.Order{}, err
		}
	}
	return order, nil
}

type productModel struct {
	ID        string          `gorm:"column:id;primaryKey"`
	SellerID  string          `gorm:"column:seller_id;index"`
	Name      string          `gorm:"column:name"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(20,2)"`
	Currency  string          `gorm:"column:currency"`
	Stock     int             `gorm:"column:stock"`
	InStock   bool            `gorm:"column:in_stock"`
	Version   int64           `gorm:"column:version"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (productModel) TableName() string {
	return "settlement_products"
}

func productModelFromEntity(p entities.Product) productModel {
	return productModel{
		ID:       strings.TrimSpace(p.ProductID),
		SellerID: strings.TrimSpace(p.SellerID),
		Name:     p.Name,
		Price:    p.Price,
		Currency: p.Currency,
		Stock:    p.Stock,
		InStock:  p.InStock,
		Version:  p.Version,
	}
}

func (m productModel) toEntity() entities.Product {
	return entities.Product{
		ProductID: m.ID,
		SellerID:  m.SellerID,
		Name:      m.Name,
		Price:     m.Price,
		Currency:  m.Currency,
		Stock:     m.Stock,
		InStock:   m.InStock,
		Version:   m.Version,
	}
}

type sellerModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	Name          string `gorm:"column:name"`
	Tier          string `gorm:"column:tier"`
	WalletAddress string `gorm:"column:wallet_address"`
	Active        bool   `gorm:"column:active"`
}

func (sellerModel) TableName() string {
	return "settlement_sellers"
}

func (m sellerModel) toEntity() entities.Seller {
	return entities.Seller{
		SellerID:      m.ID,
		Name:          m.Name,
		Tier:          commission.ParseTier(m.Tier),
		WalletAddress: m.WalletAddress,
		Active:        m.Active,
	}
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	EntityID    string    `gorm:"column:entity_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "settlement_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "settlement_outbox"
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
