package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "marketdao/contexts/commerce/order-settlement/application"
	"marketdao/contexts/commerce/order-settlement/domain/commission"
	"marketdao/contexts/commerce/order-settlement/domain/entities"
	httptransport "marketdao/contexts/commerce/order-settlement/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CheckoutHandler(ctx context.Context, idempotencyKey string, req httptransport.CheckoutRequest) (httptransport.OrderResponse, error) {
	result, err := h.Service.Checkout(ctx, application.CheckoutCommand{
		IdempotencyKey:  idempotencyKey,
		BuyerID:         req.BuyerID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	resp := mapOrder(result.Order)
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) PayOrderHandler(ctx context.Context, idempotencyKey string, orderID string, req httptransport.PayOrderRequest) (httptransport.OrderResponse, error) {
	cmd := application.PayOrderCommand{
		IdempotencyKey: idempotencyKey,
		OrderID:        orderID,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		Amount:         req.Amount,
		ActorID:        req.ActorID,
	}
	if req.Chain != nil {
		cmd.Chain = &entities.ChainMetadata{
			Network:     req.Chain.Network,
			TxHash:      req.Chain.TxHash,
			BlockNumber: req.Chain.BlockNumber,
		}
	}
	result, err := h.Service.PayOrder(ctx, cmd)
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	resp := mapOrder(result.Order)
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) DistributeHandler(ctx context.Context, orderID string) (httptransport.DistributionResponse, error) {
	result, err := h.Service.DistributeCommission(ctx, orderID)
	if err != nil {
		return httptransport.DistributionResponse{}, err
	}
	return httptransport.DistributionResponse{
		Order:              mapOrder(result.Order),
		AlreadyDistributed: result.AlreadyDistributed,
	}, nil
}

func (h Handler) ReverseHandler(ctx context.Context, orderID string) (httptransport.OrderResponse, error) {
	order, err := h.Service.ReverseCommission(ctx, orderID)
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	return mapOrder(order), nil
}

func (h Handler) RefundHandler(ctx context.Context, orderID string, req httptransport.RefundOrderRequest) (httptransport.OrderResponse, error) {
	order, err := h.Service.RefundOrder(ctx, application.RefundOrderCommand{
		OrderID: orderID,
		Reason:  req.Reason,
		ActorID: req.ActorID,
	})
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	return mapOrder(order), nil
}

func (h Handler) AdvanceHandler(ctx context.Context, orderID string, req httptransport.AdvanceOrderRequest) (httptransport.OrderResponse, error) {
	order, err := h.Service.AdvanceOrder(ctx, application.AdvanceOrderCommand{
		OrderID:        orderID,
		To:             entities.OrderStatus(req.Status),
		TrackingNumber: req.TrackingNumber,
		ActorID:        req.ActorID,
	})
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	return mapOrder(order), nil
}

func (h Handler) CancelHandler(ctx context.Context, orderID string, req httptransport.CancelOrderRequest) (httptransport.OrderResponse, error) {
	order, err := h.Service.CancelOrder(ctx, application.CancelOrderCommand{
		OrderID: orderID,
		Reason:  req.Reason,
		ActorID: req.ActorID,
	})
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	return mapOrder(order), nil
}

func (h Handler) GetOrderHandler(ctx context.Context, orderID string) (httptransport.OrderResponse, error) {
	order, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		return httptransport.OrderResponse{}, err
	}
	return mapOrder(order), nil
}

func (h Handler) ListOrdersHandler(ctx context.Context, status string, limit int) (httptransport.OrderListResponse, error) {
	orders, err := h.Service.ListOrdersByStatus(ctx, entities.OrderStatus(status), limit)
	if err != nil {
		return httptransport.OrderListResponse{}, err
	}
	return mapOrders(orders), nil
}

func (h Handler) ManualReviewHandler(ctx context.Context, limit int) (httptransport.OrderListResponse, error) {
	orders, err := h.Service.ListManualReview(ctx, limit)
	if err != nil {
		return httptransport.OrderListResponse{}, err
	}
	return mapOrders(orders), nil
}

func (h Handler) UpsertProductHandler(ctx context.Context, productID string, req httptransport.UpsertProductRequest) (httptransport.ProductResponse, error) {
	product, err := h.Service.UpsertProduct(ctx, entities.Product{
		ProductID: productID,
		SellerID:  req.SellerID,
		Name:      req.Name,
		Price:     req.Price,
		Currency:  req.Currency,
		Stock:     req.Stock,
	})
	if err != nil {
		return httptransport.ProductResponse{}, err
	}
	return httptransport.ProductResponse{
		ProductID: product.ProductID,
		SellerID:  product.SellerID,
		Name:      product.Name,
		Price:     product.Price,
		Currency:  product.Currency,
		Stock:     product.Stock,
		InStock:   product.InStock,
		Version:   product.Version,
	}, nil
}

func (h Handler) UpsertSellerHandler(ctx context.Context, sellerID string, req httptransport.UpsertSellerRequest) (httptransport.SellerResponse, error) {
	seller, err := h.Service.UpsertSeller(ctx, entities.Seller{
		SellerID:      sellerID,
		Name:          req.Name,
		Tier:          commission.Tier(req.Tier),
		WalletAddress: req.WalletAddress,
		Active:        req.Active,
	})
	if err != nil {
		return httptransport.SellerResponse{}, err
	}
	return httptransport.SellerResponse{
		SellerID:      seller.SellerID,
		Name:          seller.Name,
		Tier:          string(seller.Tier),
		WalletAddress: seller.WalletAddress,
		Active:        seller.Active,
	}, nil
}

func mapOrders(orders []entities.Order) httptransport.OrderListResponse {
	items := make([]httptransport.OrderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, mapOrder(order))
	}
	return httptransport.OrderListResponse{Orders: items}
}

func mapTransfers(transfers []entities.Transfer) []httptransport.TransferDTO {
	if len(transfers) == 0 {
		return nil
	}
	items := make([]httptransport.TransferDTO, 0, len(transfers))
	for _, t := range transfers {
		items = append(items, httptransport.TransferDTO{
			Leg:        t.Leg,
			From:       t.From,
			To:         t.To,
			Amount:     t.Amount,
			TransferID: t.TransferID,
			Hash:       t.Hash,
		})
	}
	return items
}

func mapOrder(order entities.Order) httptransport.OrderResponse {
	timeline := make([]httptransport.TimelineEventDTO, 0, len(order.Timeline))
	for _, event := range order.Timeline {
		timeline = append(timeline, httptransport.TimelineEventDTO{
			Status: string(event.Status),
			Step:   event.Step,
			Note:   event.Note,
			Actor:  event.Actor,
			At:     event.At,
		})
	}
	c := order.Commission
	resp := httptransport.OrderResponse{
		OrderID:    order.OrderID,
		BuyerID:    order.BuyerID,
		SellerID:   order.SellerID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		UnitPrice:  order.UnitPrice,
		TotalPrice: order.TotalPrice,
		Currency:   order.Currency,
		Status:     string(order.Status),
		Payment: httptransport.PaymentDTO{
			Method:         order.Payment.Method,
			Status:         string(order.Payment.Status),
			TransactionRef: order.Payment.TransactionRef,
			ConfirmedAt:    optionalTime(order.Payment.ConfirmedAt),
		},
		Commission: httptransport.CommissionDTO{
			Tier:                string(c.Tier),
			SellerAmount:        c.SellerAmount,
			PlatformFee:         c.PlatformFee,
			FranchiseCommission: c.FranchiseCommission,
			SellerRate:          c.Percentages.Seller,
			PlatformRate:        c.Percentages.Platform,
			FranchiseRate:       c.Percentages.Franchise,
			ComputedAt:          optionalTime(c.ComputedAt),
			Distributed:         c.Distributed,
			DistributionHash:    c.DistributionHash,
			DistributedAt:       optionalTime(c.DistributedAt),
			Transfers:           mapTransfers(c.Transfers),
			Reversal: httptransport.ReversalDTO{
				Status:    string(c.Reversal.Status),
				Hash:      c.Reversal.Hash,
				Transfers: mapTransfers(c.Reversal.Transfers),
				At:        optionalTime(c.Reversal.At),
			},
		},
		Timeline: timeline,
		Delivery: httptransport.DeliveryDTO{
			Address:        order.Delivery.Address,
			TrackingNumber: order.Delivery.TrackingNumber,
			ShippedAt:      optionalTime(order.Delivery.ShippedAt),
			DeliveredAt:    optionalTime(order.Delivery.DeliveredAt),
		},
		FraudCheck: httptransport.FraudCheckDTO{
			Status:    string(order.FraudCheck.Status),
			RiskScore: order.FraudCheck.RiskScore,
			Flags:     append([]string{}, order.FraudCheck.Flags...),
		},
		Version:   order.Version,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	if chain := order.Payment.Chain; chain != nil {
		resp.Payment.Chain = &httptransport.ChainDTO{
			Network:     chain.Network,
			TxHash:      chain.TxHash,
			BlockNumber: chain.BlockNumber,
		}
	}
	if review := order.ManualReview; review != nil {
		resp.ManualReview = &httptransport.ManualReviewDTO{
			Step:           review.Step,
			Reason:         review.Reason,
			PreviousStatus: string(review.PreviousStatus),
			PostedLegs:     mapTransfers(review.Posted),
			At:             review.At,
			ResolvedAt:     optionalTime(review.ResolvedAt),
		}
	}
	return resp
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	v := value.UTC()
	return &v
}
