package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       int64
	published bool
}

// Store holds orders, the catalog snapshot, idempotency keys and the outbox.
// WithinTx keeps the lock for the whole unit of work and applies staged
// writes only when fn returns nil.
type Store struct {
	mu sync.RWMutex

	orders      map[string]entities.Order
	products    map[string]entities.Product
	sellers     map[string]entities.Seller
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	outboxSeq   int64
}

func NewStore() *Store {
	return &Store{
		orders:      make(map[string]entities.Order),
		products:    make(map[string]entities.Product),
		sellers:     make(map[string]entities.Seller),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		store:       s,
		orders:      make(map[string]entities.Order),
		products:    make(map[string]entities.Product),
		outbox:      make(map[string]outboxRecord),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, order := range tx.orders {
		s.orders[id] = order
	}
	for id, product := range tx.products {
		s.products[id] = product
	}
	for id, row := range tx.outbox {
		s.outbox[id] = row
	}
	for key, record := range tx.idempotency {
		s.idempotency[key] = record
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return entities.Order{}, domainerrors.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status entities.OrderStatus, limit int) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterOrders(s.orders, limit, func(order entities.Order) bool {
		return order.Status == status
	}), nil
}

func (s *Store) ListOrdersInReview(_ context.Context, limit int) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterOrders(s.orders, limit, func(order entities.Order) bool {
		return order.ManualReview.Open()
	}), nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (entities.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[strings.TrimSpace(productID)]
	if !ok {
		return entities.Product{}, domainerrors.ErrProductNotFound
	}
	return product, nil
}

func (s *Store) GetSeller(_ context.Context, sellerID string) (entities.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seller, ok := s.sellers[strings.TrimSpace(sellerID)]
	if !ok {
		return entities.Seller{}, domainerrors.ErrSellerNotFound
	}
	return seller, nil
}

// UpsertProduct replaces the catalog snapshot and bumps its version.
func (s *Store) UpsertProduct(_ context.Context, product entities.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(product.ProductID)
	if id == "" {
		return domainerrors.ErrInvalidOrderInput
	}
	product.ProductID = id
	product.Version = s.products[id].Version + 1
	s.products[id] = product
	return nil
}

func (s *Store) UpsertSeller(_ context.Context, seller entities.Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(seller.SellerID)
	if id == "" {
		return domainerrors.ErrInvalidOrderInput
	}
	seller.SellerID = id
	s.sellers[id] = seller
	return nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.TrimSpace(key)
	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.published {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(outboxID)
	row, ok := s.outbox[id]
	if !ok {
		return domainerrors.ErrOrderNotFound
	}
	row.published = true
	s.outbox[id] = row
	return nil
}

// PendingEventTypes lists unpublished event types, oldest first.
func (s *Store) PendingEventTypes() []string {
	rows, _ := s.ListPendingOutbox(context.Background(), 1<<30)
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

type storeTx struct {
	store       *Store
	orders      map[string]entities.Order
	products    map[string]entities.Product
	outbox      map[string]outboxRecord
	idempotency map[string]ports.IdempotencyRecord
}

func (t *storeTx) GetOrder(_ context.Context, orderID string) (entities.Order, error) {
	id := strings.TrimSpace(orderID)
	if order, ok := t.orders[id]; ok {
		return cloneOrder(order), nil
	}
	order, ok := t.store.orders[id]
	if !ok {
		return entities.Order{}, domainerrors.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (t *storeTx) ListOrdersByStatus(_ context.Context, status entities.OrderStatus, limit int) ([]entities.Order, error) {
	return filterOrders(t.merged(), limit, func(order entities.Order) bool {
		return order.Status == status
	}), nil
}

func (t *storeTx) ListOrdersInReview(_ context.Context, limit int) ([]entities.Order, error) {
	return filterOrders(t.merged(), limit, func(order entities.Order) bool {
		return order.ManualReview.Open()
	}), nil
}

func (t *storeTx) merged() map[string]entities.Order {
	merged := make(map[string]entities.Order, len(t.store.orders)+len(t.orders))
	for id, order := range t.store.orders {
		merged[id] = order
	}
	for id, order := range t.orders {
		merged[id] = order
	}
	return merged
}

func (t *storeTx) GetProduct(_ context.Context, productID string) (entities.Product, error) {
	id := strings.TrimSpace(productID)
	if product, ok := t.products[id]; ok {
		return product, nil
	}
	product, ok := t.store.products[id]
	if !ok {
		return entities.Product{}, domainerrors.ErrProductNotFound
	}
	return product, nil
}

func (t *storeTx) GetSeller(_ context.Context, sellerID string) (entities.Seller, error) {
	seller, ok := t.store.sellers[strings.TrimSpace(sellerID)]
	if !ok {
		return entities.Seller{}, domainerrors.ErrSellerNotFound
	}
	return seller, nil
}

func (t *storeTx) CreateOrder(_ context.Context, order entities.Order) error {
	id := strings.TrimSpace(order.OrderID)
	if id == "" {
		return domainerrors.ErrInvalidOrderInput
	}
	if _, ok := t.orders[id]; ok {
		return domainerrors.ErrVersionConflict
	}
	if _, ok := t.store.orders[id]; ok {
		return domainerrors.ErrVersionConflict
	}
	order.OrderID = id
	order.Version = 1
	t.orders[id] = cloneOrder(order)
	return nil
}

func (t *storeTx) SaveOrder(ctx context.Context, order entities.Order, expectedVersion int64) error {
	current, err := t.GetOrder(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrVersionConflict
	}
	order.Version = expectedVersion + 1
	t.orders[current.OrderID] = cloneOrder(order)
	return nil
}

func (t *storeTx) SaveProduct(ctx context.Context, product entities.Product, expectedVersion int64) error {
	current, err := t.GetProduct(ctx, product.ProductID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrVersionConflict
	}
	if product.Stock < 0 {
		return domainerrors.ErrInsufficientStock
	}
	product.Version = expectedVersion + 1
	t.products[current.ProductID] = product
	return nil
}

func (t *storeTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	for _, rows := range []map[string]outboxRecord{t.outbox, t.store.outbox} {
		if existing, ok := rows[outboxID]; ok {
			if !bytes.Equal(existing.message.Payload, payload) {
				return domainerrors.ErrIdempotencyConflict
			}
			return nil
		}
	}
	t.store.outboxSeq++
	t.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		seq: t.store.outboxSeq,
	}
	return nil
}

func (t *storeTx) PutIdempotency(_ context.Context, record ports.IdempotencyRecord) error {
	key := strings.TrimSpace(record.Key)
	if key == "" {
		return domainerrors.ErrIdempotencyKeyRequired
	}
	for _, records := range []map[string]ports.IdempotencyRecord{t.idempotency, t.store.idempotency} {
		if existing, ok := records[key]; ok && existing.RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyConflict
		}
	}
	record.Key = key
	t.idempotency[key] = record
	return nil
}

func filterOrders(orders map[string]entities.Order, limit int, keep func(entities.Order) bool) []entities.Order {
	if limit <= 0 {
		limit = 50
	}
	items := make([]entities.Order, 0)
	for _, order := range orders {
		if keep(order) {
			items = append(items, cloneOrder(order))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OrderID < items[j].OrderID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func cloneOrder(order entities.Order) entities.Order {
	order.Timeline = append([]entities.TimelineEvent(nil), order.Timeline...)
	order.FraudCheck.Flags = append([]string(nil), order.FraudCheck.Flags...)
	order.Commission.Transfers = append([]entities.Transfer(nil), order.Commission.Transfers...)
	order.Commission.Reversal.Transfers = append([]entities.Transfer(nil), order.Commission.Reversal.Transfers...)
	if order.Payment.Chain != nil {
		chain := *order.Payment.Chain
		order.Payment.Chain = &chain
	}
	if order.ManualReview != nil {
		review := *order.ManualReview
		review.Posted = append([]entities.Transfer(nil), review.Posted...)
		order.ManualReview = &review
	}
	return order
}
