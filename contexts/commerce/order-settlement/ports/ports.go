package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	contractsv1 "marketdao/contracts/gen/events/v1"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (entities.Order, error)
	ListOrdersByStatus(ctx context.Context, status entities.OrderStatus, limit int) ([]entities.Order, error)
	ListOrdersInReview(ctx context.Context, limit int) ([]entities.Order, error)
}

type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (entities.Product, error)
	GetSeller(ctx context.Context, sellerID string) (entities.Seller, error)
}

// CatalogWriter seeds the catalog snapshot consumed by settlement.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, product entities.Product) error
	UpsertSeller(ctx context.Context, seller entities.Seller) error
}

// Tx is the write surface inside a unit of work. Save operations take the
// version the caller read and fail with ErrVersionConflict when it moved.
type Tx interface {
	OrderReader
	CatalogReader
	CreateOrder(ctx context.Context, order entities.Order) error
	SaveOrder(ctx context.Context, order entities.Order, expectedVersion int64) error
	SaveProduct(ctx context.Context, product entities.Product, expectedVersion int64) error
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
	PutIdempotency(ctx context.Context, record IdempotencyRecord) error
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type TransferRequest struct {
	// Reference is stable per order and leg. Ledgers treat a repeated
	// reference as the same transfer.
	Reference string
	From      string
	To        string
	Amount    decimal.Decimal
	Currency  string
	Memo      string
}

type TransferReceipt struct {
	TransferID string
	Hash       string
	PostedAt   time.Time
}

type Ledger interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	EntityID    string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Metrics receives settlement counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	OrderSettled(step string)
	CommissionDistributed(outcome string)
	ManualReviewFlagged(step string)
	LedgerRetry(leg string)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
