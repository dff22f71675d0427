package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	settlementhttp "marketdao/contexts/commerce/order-settlement/transport/http"
)

// handleCheckout godoc
// @Summary Create a pending order
// @Tags order-settlement
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body settlementhttp.CheckoutRequest true "Checkout"
// @Success 201 {object} Envelope{data=settlementhttp.OrderResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Failure 422 {object} Envelope
// @Router /orders [post]
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.CheckoutHandler(r.Context(), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		s.writeDomainError(w, r, "checkout", err)
		return
	}
	if resp.Replayed {
		writeOK(w, "order already created", resp)
		return
	}
	writeCreated(w, "order created", resp)
}

// handlePayOrder godoc
// @Summary Confirm payment, fix commission and reserve stock
// @Tags order-settlement
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param order_id path string true "Order id"
// @Param request body settlementhttp.PayOrderRequest true "Payment"
// @Success 200 {object} Envelope{data=settlementhttp.OrderResponse}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Failure 409 {object} Envelope
// @Failure 422 {object} Envelope
// @Router /orders/{order_id}/pay [post]
func (s *Server) handlePayOrder(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.PayOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.PayOrderHandler(r.Context(), r.Header.Get("Idempotency-Key"), chi.URLParam(r, "order_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "pay_order", err)
		return
	}
	writeOK(w, "payment confirmed", resp)
}

// handleDistribute godoc
// @Summary Pay seller, platform and franchise shares from escrow
// @Tags order-settlement
// @Produce json
// @Param order_id path string true "Order id"
// @Success 200 {object} Envelope{data=settlementhttp.DistributionResponse}
// @Failure 404 {object} Envelope
// @Failure 422 {object} Envelope
// @Failure 424 {object} Envelope
// @Router /orders/{order_id}/distribute [post]
func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settlement.Handler.DistributeHandler(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		s.writeDomainError(w, r, "distribute_commission", err)
		return
	}
	writeOK(w, "commission distributed", resp)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settlement.Handler.ReverseHandler(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		s.writeDomainError(w, r, "reverse_commission", err)
		return
	}
	writeOK(w, "commission reversed", resp)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.RefundOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.RefundHandler(r.Context(), chi.URLParam(r, "order_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "refund_order", err)
		return
	}
	writeOK(w, "order refunded", resp)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.AdvanceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.AdvanceHandler(r.Context(), chi.URLParam(r, "order_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "advance_order", err)
		return
	}
	writeOK(w, "order advanced", resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.CancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.CancelHandler(r.Context(), chi.URLParam(r, "order_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "cancel_order", err)
		return
	}
	writeOK(w, "order cancelled", resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settlement.Handler.GetOrderHandler(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		s.writeDomainError(w, r, "get_order", err)
		return
	}
	writeOK(w, "order", resp)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.ListOrdersHandler(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.writeDomainError(w, r, "list_orders", err)
		return
	}
	writeOK(w, "orders", resp)
}

func (s *Server) handleManualReview(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.ManualReviewHandler(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, "list_manual_review", err)
		return
	}
	writeOK(w, "orders awaiting manual review", resp)
}

func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.UpsertProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.UpsertProductHandler(r.Context(), chi.URLParam(r, "product_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "upsert_product", err)
		return
	}
	writeOK(w, "product saved", resp)
}

func (s *Server) handleUpsertSeller(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.UpsertSellerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	resp, err := s.settlement.Handler.UpsertSellerHandler(r.Context(), chi.URLParam(r, "seller_id"), req)
	if err != nil {
		s.writeDomainError(w, r, "upsert_seller", err)
		return
	}
	writeOK(w, "seller saved", resp)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
