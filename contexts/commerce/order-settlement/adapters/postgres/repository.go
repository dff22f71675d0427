package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository persists orders and the catalog snapshot through gorm. Money
// columns are numeric; payment, commission and timeline are JSON columns.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&orderModel{},
		&productModel{},
		&sellerModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("order_repo_automigrate_failed", err)
	}
	return nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, logger: r.logger})
	})
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (entities.Order, error) {
	var row orderModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(orderID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Order{}, domainerrors.ErrOrderNotFound
		}
		return entities.Order{}, r.logError("order_repo_get_order_failed", err, "order_id", strings.TrimSpace(orderID))
	}
	order, err := row.toEntity()
	if err != nil {
		return entities.Order{}, r.logError("order_repo_decode_order_failed", err, "order_id", row.ID)
	}
	return order, nil
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status entities.OrderStatus, limit int) ([]entities.Order, error) {
	return r.listOrders(ctx, "order_repo_list_orders_failed", limit, "status = ?", string(status))
}

func (r *Repository) ListOrdersInReview(ctx context.Context, limit int) ([]entities.Order, error) {
	return r.listOrders(ctx, "order_repo_list_review_failed", limit, "in_review = ?", true)
}

func (r *Repository) listOrders(ctx context.Context, event string, limit int, where string, arg any) ([]entities.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []orderModel
	if err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError(event, err, "filter", where)
	}
	items := make([]entities.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.toEntity()
		if err != nil {
			return nil, r.logError("order_repo_decode_order_failed", err, "order_id", row.ID)
		}
		items = append(items, order)
	}
	return items, nil
}

func (r *Repository) CreateOrder(ctx context.Context, order entities.Order) error {
	order.Version = 1
	row, err := orderModelFromEntity(order)
	if err != nil {
		return r.logError("order_repo_encode_order_failed", err, "order_id", order.OrderID)
	}
	if row.ID == "" {
		return domainerrors.ErrInvalidOrderInput
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrVersionConflict
		}
		return r.logError("order_repo_create_order_failed", err, "order_id", row.ID)
	}
	return nil
}

// SaveOrder writes the order only while the stored version still equals
// expectedVersion, then bumps it.
func (r *Repository) SaveOrder(ctx context.Context, order entities.Order, expectedVersion int64) error {
	row, err := orderModelFromEntity(order)
	if err != nil {
		return r.logError("order_repo_encode_order_failed", err, "order_id", order.OrderID)
	}
	result := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("id = ? AND version = ?", row.ID, expectedVersion).
		Updates(map[string]any{
			"status":          row.Status,
			"payment_status":  row.PaymentStatus,
			"distributed":     row.Distributed,
			"reversal_status": row.ReversalStatus,
			"in_review":       row.InReview,
			"payment":         row.Payment,
			"commission":      row.Commission,
			"timeline":        row.Timeline,
			"delivery":        row.Delivery,
			"fraud_check":     row.FraudCheck,
			"manual_review":   row.ManualReview,
			"version":         expectedVersion + 1,
			"updated_at":      row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("order_repo_save_order_failed", result.Error,
			"order_id", row.ID,
			"expected_version", expectedVersion,
		)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetOrder(ctx, row.ID); err != nil {
			return err
		}
		return domainerrors.ErrVersionConflict
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, productID string) (entities.Product, error) {
	var row productModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(productID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Product{}, domainerrors.ErrProductNotFound
		}
		return entities.Product{}, r.logError("order_repo_get_product_failed", err, "product_id", strings.TrimSpace(productID))
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveProduct(ctx context.Context, product entities.Product, expectedVersion int64) error {
	if product.Stock < 0 {
		return domainerrors.ErrInsufficientStock
	}
	row := productModelFromEntity(product)
	result := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("id = ? AND version = ?", row.ID, expectedVersion).
		Updates(map[string]any{
			"stock":      row.Stock,
			"in_stock":   row.Stock > 0,
			"version":    expectedVersion + 1,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return r.logError("order_repo_save_product_failed", result.Error,
			"product_id", row.ID,
			"expected_version", expectedVersion,
		)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetProduct(ctx, row.ID); err != nil {
			return err
		}
		return domainerrors.ErrVersionConflict
	}
	return nil
}

// UpsertProduct replaces the catalog row and bumps its version so in-flight
// stock reservations retry against the new snapshot.
func (r *Repository) UpsertProduct(ctx context.Context, product entities.Product) error {
	row := productModelFromEntity(product)
	row.Version = 1
	row.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seller_id":  row.SellerID,
			"name":       row.Name,
			"price":      row.Price,
			"currency":   row.Currency,
			"stock":      row.Stock,
			"in_stock":   row.InStock,
			"version":    gorm.Expr("settlement_products.version + 1"),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return r.logError("order_repo_upsert_product_failed", err, "product_id", row.ID)
	}
	return nil
}

func (r *Repository) GetSeller(ctx context.Context, sellerID string) (entities.Seller, error) {
	var row sellerModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(sellerID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Seller{}, domainerrors.ErrSellerNotFound
		}
		return entities.Seller{}, r.logError("order_repo_get_seller_failed", err, "seller_id", strings.TrimSpace(sellerID))
	}
	return row.toEntity(), nil
}

func (r *Repository) UpsertSeller(ctx context.Context, seller entities.Seller) error {
	row := sellerModel{
		ID:            strings.TrimSpace(seller.SellerID),
		Name:          seller.Name,
		Tier:          string(seller.Tier),
		WalletAddress: strings.TrimSpace(seller.WalletAddress),
		Active:        seller.Active,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "tier", "wallet_address", "active"}),
	}).Create(&row).Error; err != nil {
		return r.logError("order_repo_upsert_seller_failed", err, "seller_id", row.ID)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("order_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("order_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		EntityID:    row.EntityID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) PutIdempotency(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		EntityID:    strings.TrimSpace(record.EntityID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("order_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("order_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.EntityID != row.EntityID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("order_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("order_repo_append_outbox_insert_failed", create.Error, "outbox_id", row.OutboxID)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("order_repo_append_outbox_load_existing_failed", err, "outbox_id", row.OutboxID)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("order_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("order_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *Repository) Now() time.Time {
	return time.Now().UTC()
}

func (r *Repository) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "commerce/order-settlement",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("settlement repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ ports.UnitOfWork = (*Repository)(nil)
var _ ports.Tx = (*Repository)(nil)
var _ ports.OrderReader = (*Repository)(nil)
var _ ports.CatalogReader = (*Repository)(nil)
var _ ports.CatalogWriter = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.IDGenerator = (*Repository)(nil)
