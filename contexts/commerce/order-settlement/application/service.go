package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	"marketdao/contexts/commerce/order-settlement/domain/entities"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	"marketdao/contexts/commerce/order-settlement/ports"
)

const settlementModule = "commerce/order-settlement"

// Accounts names the ledger accounts commission legs move between.
type Accounts struct {
	Escrow    string
	Platform  string
	Franchise string
}

type Service struct {
	UoW                  ports.UnitOfWork
	Orders               ports.OrderReader
	Catalog              ports.CatalogReader
	CatalogWriter        ports.CatalogWriter
	Ledger               ports.Ledger
	Idempotency          ports.IdempotencyStore
	Clock                ports.Clock
	IDGen                ports.IDGenerator
	Metrics              ports.Metrics
	ConflictRetry        RetryPolicy
	LedgerRetry          RetryPolicy
	Accounts             Accounts
	FraudReviewThreshold decimal.Decimal
	AutoDistribute       bool
	IdempotencyTTL       time.Duration
	Logger               *slog.Logger
}

type CheckoutCommand struct {
	IdempotencyKey  string
	BuyerID         string
	ProductID       string
	Quantity        int
	PaymentMethod   string
	DeliveryAddress string
}

type PayOrderCommand struct {
	IdempotencyKey string
	OrderID        string
	Method         string
	TransactionRef string
	// Amount is checked against the order total when non-zero.
	Amount  decimal.Decimal
	Chain   *entities.ChainMetadata
	ActorID string
}

type OrderResult struct {
	Order    entities.Order
	Replayed bool
}

func (s Service) Checkout(ctx context.Context, cmd CheckoutCommand) (OrderResult, error) {
	logger := ResolveLogger(s.Logger)
	cmd.BuyerID = strings.TrimSpace(cmd.BuyerID)
	cmd.ProductID = strings.TrimSpace(cmd.ProductID)
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	if cmd.BuyerID == "" || cmd.ProductID == "" || cmd.Quantity <= 0 {
		return OrderResult{}, domainerrors.ErrInvalidOrderInput
	}

	now := s.now()
	requestHash := hashPayload(map[string]any{
		"buyer_id":   cmd.BuyerID,
		"product_id": cmd.ProductID,
		"quantity":   cmd.Quantity,
		"method":     strings.TrimSpace(cmd.PaymentMethod),
		"address":    strings.TrimSpace(cmd.DeliveryAddress),
	})
	if replay, found, err := s.replay(ctx, cmd.IdempotencyKey, requestHash, now); err != nil || found {
		return replay, err
	}

	product, err := s.Catalog.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return OrderResult{}, err
	}
	seller, err := s.Catalog.GetSeller(ctx, product.SellerID)
	if err != nil {
		return OrderResult{}, err
	}
	if !seller.Active {
		return OrderResult{}, domainerrors.ErrSellerInactive
	}
	if product.Stock < cmd.Quantity {
		return OrderResult{}, domainerrors.ErrInsufficientStock
	}

	orderID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return OrderResult{}, err
	}
	total := product.Price.Mul(decimal.NewFromInt(int64(cmd.Quantity))).Round(commission.MinorUnitPlaces)
	order := entities.Order{
		OrderID:    orderID,
		BuyerID:    cmd.BuyerID,
		SellerID:   seller.SellerID,
		ProductID:  product.ProductID,
		Quantity:   cmd.Quantity,
		UnitPrice:  product.Price,
		TotalPrice: total,
		Currency:   entities.NormalizeCurrency(product.Currency),
		Payment: entities.Payment{
			Method: strings.TrimSpace(cmd.PaymentMethod),
			Status: entities.PaymentStatusPending,
		},
		Commission: entities.Commission{Reversal: entities.Reversal{Status: entities.ReversalNone}},
		Status:     entities.OrderStatusPending,
		Delivery:   entities.Delivery{Address: strings.TrimSpace(cmd.DeliveryAddress)},
		FraudCheck: screenOrder(cmd.BuyerID, seller.SellerID, cmd.Quantity, total, s.fraudReviewThreshold()),
		Version:    1,
		CreatedAt:  now,
	}
	order.Record("created", "order placed", cmd.BuyerID, now)

	if err := s.UoW.WithinTx(ctx, func(tx ports.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.remember(ctx, tx, cmd.IdempotencyKey, requestHash, order.OrderID, now); err != nil {
			return err
		}
		return s.appendOrderEvent(ctx, tx, "order.created", order, now, map[string]any{
			"buyer_id":     order.BuyerID,
			"seller_id":    order.SellerID,
			"product_id":   order.ProductID,
			"quantity":     order.Quantity,
			"total_price":  order.TotalPrice.String(),
			"currency":     order.Currency,
			"fraud_status": string(order.FraudCheck.Status),
		})
	}); err != nil {
		return OrderResult{}, err
	}

	if order.FraudCheck.Status != entities.FraudPassed {
		logger.Warn("order flagged by fraud screen",
			"event", "order_fraud_flagged",
			"module", settlementModule,
			"layer", "application",
			"order_id", order.OrderID,
			"fraud_status", string(order.FraudCheck.Status),
			"flags", order.FraudCheck.Flags,
		)
	}
	logger.Info("order created",
		"event", "order_created",
		"module", settlementModule,
		"layer", "application",
		"order_id", order.OrderID,
		"buyer_id", order.BuyerID,
		"product_id", order.ProductID,
		"total_price", order.TotalPrice.String(),
	)
	return OrderResult{Order: order}, nil
}

// PayOrder validates the order against the catalog, then confirms payment,
// computes the commission and reserves stock in one unit of work.
func (s Service) PayOrder(ctx context.Context, cmd PayOrderCommand) (OrderResult, error) {
	logger := ResolveLogger(s.Logger)
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	cmd.Method = strings.TrimSpace(cmd.Method)
	cmd.TransactionRef = strings.TrimSpace(cmd.TransactionRef)
	if cmd.IdempotencyKey == "" {
		return OrderResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if cmd.OrderID == "" || cmd.Method == "" || cmd.TransactionRef == "" {
		return OrderResult{}, domainerrors.ErrInvalidOrderInput
	}
	if cmd.Amount.IsNegative() {
		return OrderResult{}, domainerrors.ErrInvalidAmount
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		actor = "payment-gateway"
	}

	now := s.now()
	requestHash := hashPayload(map[string]any{
		"order_id":        cmd.OrderID,
		"method":          cmd.Method,
		"transaction_ref": cmd.TransactionRef,
		"amount":          cmd.Amount.String(),
		"chain":           cmd.Chain,
	})
	if replay, found, err := s.replay(ctx, cmd.IdempotencyKey, requestHash, now); err != nil || found {
		return replay, err
	}

	var paid entities.Order
	step := "validate"
	err := s.ConflictRetry.OnConflict(ctx, func() error {
		step = "validate"
		return s.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			order, err := tx.GetOrder(ctx, cmd.OrderID)
			if err != nil {
				return err
			}
			product, err := tx.GetProduct(ctx, order.ProductID)
			if err != nil {
				return err
			}
			seller, err := tx.GetSeller(ctx, order.SellerID)
			if err != nil {
				return err
			}
			if err := validatePayment(order, product, seller, cmd.Amount); err != nil {
				return err
			}

			now := s.now()
			orderVersion := order.Version
			productVersion := product.Version
			step = "confirm_payment"
			if err := order.ConfirmPayment(entities.Payment{
				Method:         cmd.Method,
				TransactionRef: cmd.TransactionRef,
				Chain:          cmd.Chain,
			}, actor, now); err != nil {
				return err
			}
			step = "compute_commission"
			breakdown, err := commission.Calculate(order.TotalPrice, seller.Tier)
			if err != nil {
				return err
			}
			if err := order.ApplyCommission(breakdown, now); err != nil {
				return err
			}
			step = "reserve_stock"
			if err := product.Reserve(order.Quantity); err != nil {
				return err
			}
			order.Record("stock_reserved", "stock reserved", "system", now)
			if err := tx.SaveProduct(ctx, product, productVersion); err != nil {
				return err
			}
			step = "persist"
			if err := tx.SaveOrder(ctx, order, orderVersion); err != nil {
				return err
			}
			if err := s.remember(ctx, tx, cmd.IdempotencyKey, requestHash, order.OrderID, now); err != nil {
				return err
			}
			if err := s.appendOrderEvent(ctx, tx, "order.paid", order, now, map[string]any{
				"transaction_ref":      cmd.TransactionRef,
				"total_price":          order.TotalPrice.String(),
				"seller_amount":        order.Commission.SellerAmount.String(),
				"platform_fee":         order.Commission.PlatformFee.String(),
				"franchise_commission": order.Commission.FranchiseCommission.String(),
				"tier":                 string(order.Commission.Tier),
			}); err != nil {
				return err
			}
			order.Version = orderVersion + 1
			paid = order
			return nil
		})
	})
	if err != nil {
		logger.Warn("order payment failed",
			"event", "order_payment_failed",
			"module", settlementModule,
			"layer", "application",
			"order_id", cmd.OrderID,
			"step", step,
			"error", err.Error(),
		)
		return OrderResult{}, err
	}
	if s.Metrics != nil {
		s.Metrics.OrderSettled("paid")
	}
	logger.Info("order paid",
		"event", "order_paid",
		"module", settlementModule,
		"layer", "application",
		"order_id", paid.OrderID,
		"total_price", paid.TotalPrice.String(),
		"tier", string(paid.Commission.Tier),
	)

	if s.AutoDistribute && s.Ledger != nil {
		// A failed payout leaves the order in manual review; the payment
		// itself already committed.
		result, err := s.DistributeCommission(ctx, paid.OrderID)
		if err == nil {
			paid = result.Order
		} else if current, getErr := s.Orders.GetOrder(ctx, paid.OrderID); getErr == nil {
			paid = current
		}
	}
	return OrderResult{Order: paid}, nil
}

func validatePayment(order entities.Order, product entities.Product, seller entities.Seller, amount decimal.Decimal) error {
	switch {
	case order.Status != entities.OrderStatusPending:
		return domainerrors.ErrInvalidOrderState
	case !seller.Active:
		return domainerrors.ErrSellerInactive
	case order.FraudCheck.Status == entities.FraudFailed:
		return domainerrors.ErrFraudCheckFailed
	case !product.Price.Equal(order.UnitPrice):
		return domainerrors.ErrPriceMismatch
	case !amount.IsZero() && !amount.Equal(order.TotalPrice):
		return domainerrors.ErrAmountMismatch
	case product.Stock < order.Quantity:
		return domainerrors.ErrInsufficientStock
	}
	return nil
}

func (s Service) GetOrder(ctx context.Context, orderID string) (entities.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return entities.Order{}, domainerrors.ErrInvalidOrderInput
	}
	return s.Orders.GetOrder(ctx, orderID)
}

func (s Service) ListOrdersByStatus(ctx context.Context, status entities.OrderStatus, limit int) ([]entities.Order, error) {
	if !status.Valid() {
		return nil, domainerrors.ErrInvalidOrderInput
	}
	if limit <= 0 {
		limit = 50
	}
	return s.Orders.ListOrdersByStatus(ctx, status, limit)
}

// ListManualReview returns orders with an unresolved manual review record.
func (s Service) ListManualReview(ctx context.Context, limit int) ([]entities.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.Orders.ListOrdersInReview(ctx, limit)
}

func (s Service) UpsertProduct(ctx context.Context, product entities.Product) (entities.Product, error) {
	product.ProductID = strings.TrimSpace(product.ProductID)
	product.SellerID = strings.TrimSpace(product.SellerID)
	if product.ProductID == "" || product.SellerID == "" || product.Stock < 0 || product.Price.IsNegative() {
		return entities.Product{}, domainerrors.ErrInvalidOrderInput
	}
	if _, err := s.Catalog.GetSeller(ctx, product.SellerID); err != nil {
		return entities.Product{}, err
	}
	product.Currency = entities.NormalizeCurrency(product.Currency)
	product.InStock = product.Stock > 0
	if err := s.CatalogWriter.UpsertProduct(ctx, product); err != nil {
		return entities.Product{}, err
	}
	return s.Catalog.GetProduct(ctx, product.ProductID)
}

func (s Service) UpsertSeller(ctx context.Context, seller entities.Seller) (entities.Seller, error) {
	seller.SellerID = strings.TrimSpace(seller.SellerID)
	seller.WalletAddress = strings.TrimSpace(seller.WalletAddress)
	if seller.SellerID == "" || seller.WalletAddress == "" {
		return entities.Seller{}, domainerrors.ErrInvalidOrderInput
	}
	seller.Tier = commission.ParseTier(string(seller.Tier))
	if err := s.CatalogWriter.UpsertSeller(ctx, seller); err != nil {
		return entities.Seller{}, err
	}
	return seller, nil
}

func (s Service) replay(ctx context.Context, key string, requestHash string, now time.Time) (OrderResult, bool, error) {
	if key == "" || s.Idempotency == nil {
		return OrderResult{}, false, nil
	}
	record, found, err := s.Idempotency.Get(ctx, key, now)
	if err != nil || !found {
		return OrderResult{}, false, err
	}
	if record.RequestHash != requestHash {
		return OrderResult{}, false, domainerrors.ErrIdempotencyConflict
	}
	order, err := s.Orders.GetOrder(ctx, record.EntityID)
	if err != nil {
		return OrderResult{}, false, err
	}
	return OrderResult{Order: order, Replayed: true}, true, nil
}

// remember stages the idempotency record on tx so it commits with the order.
func (s Service) remember(ctx context.Context, tx ports.Tx, key string, requestHash string, orderID string, now time.Time) error {
	if key == "" {
		return nil
	}
	return tx.PutIdempotency(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		EntityID:    orderID,
		ExpiresAt:   now.Add(s.idempotencyTTL()),
	})
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func (s Service) fraudReviewThreshold() decimal.Decimal {
	if s.FraudReviewThreshold.IsPositive() {
		return s.FraudReviewThreshold
	}
	return decimal.NewFromInt(10000)
}
