package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	ordersettlement "marketdao/contexts/commerce/order-settlement"
	settlementerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	daovoting "marketdao/contexts/governance/dao-voting"
	votingerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/internal/platform/metrics"
)

type testServer struct {
	t          *testing.T
	handler    http.Handler
	voting     daovoting.Module
	settlement ordersettlement.Module
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	voting := daovoting.NewInMemoryModule(logger)
	settlement := ordersettlement.NewInMemoryModule(logger)
	srv := New(Options{
		Voting:     voting,
		Settlement: settlement,
		Metrics:    metrics.NewRegistry().Handler(),
		Logger:     logger,
	})
	return testServer{t: t, handler: srv.Handler(), voting: voting, settlement: settlement}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s testServer) do(method string, path string, headers map[string]string, body any) (int, response) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (s testServer) seedCatalog(stock int) {
	s.t.Helper()
	code, resp := s.do(http.MethodPut, "/catalog/sellers/seller-1", nil, map[string]any{
		"name": "Seller One", "tier": "vip", "wallet_address": "0xSELLER", "active": true,
	})
	require.Equal(s.t, http.StatusOK, code, resp.Message)
	code, resp = s.do(http.MethodPut, "/catalog/products/product-1", nil, map[string]any{
		"seller_id": "seller-1", "name": "Widget", "price": "500", "currency": "USD", "stock": stock,
	})
	require.Equal(s.t, http.StatusOK, code, resp.Message)
}

func (s testServer) checkout(key string, quantity int) string {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/orders", map[string]string{"Idempotency-Key": key}, map[string]any{
		"buyer_id": "buyer-1", "product_id": "product-1", "quantity": quantity,
	})
	require.Equal(s.t, http.StatusCreated, code, resp.Message)
	var order struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &order))
	return order.OrderID
}

func TestHealthzSwaggerAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/orders/{order_id}/distribute")

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestOrderSettlementFlow(t *testing.T) {
	s := newTestServer(t)
	s.seedCatalog(2)
	orderID := s.checkout("checkout-1", 2)

	payKey := map[string]string{"Idempotency-Key": "pay-1"}
	payBody := map[string]any{"method": "card", "transaction_ref": "tx-1", "amount": "1000"}
	code, resp := s.do(http.MethodPost, "/orders/"+orderID+"/pay", payKey, payBody)
	require.Equal(t, http.StatusOK, code, resp.Message)

	var paid struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &paid))
	require.Equal(t, "confirmed", paid.Status)

	code, resp = s.do(http.MethodPost, "/orders/"+orderID+"/pay", payKey, payBody)
	require.Equal(t, http.StatusOK, code, "replay returns the stored result")
	require.True(t, resp.Success)

	code, resp = s.do(http.MethodPost, "/orders/"+orderID+"/distribute", nil, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	require.Equal(t, "700.00", s.settlement.Ledger.Balance("0xSELLER").StringFixed(2))
	require.Equal(t, "180.00", s.settlement.Ledger.Balance("platform-treasury").StringFixed(2))
	require.Equal(t, "120.00", s.settlement.Ledger.Balance("franchise-pool").StringFixed(2))

	code, resp = s.do(http.MethodGet, "/orders?status=confirmed", nil, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	require.Contains(t, string(resp.Data), orderID)

	code, resp = s.do(http.MethodPost, "/orders/"+orderID+"/advance", nil, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	code, resp = s.do(http.MethodPost, "/orders/"+orderID+"/advance", nil, map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.False(t, resp.Success)
}

func TestOrderErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	s.seedCatalog(1)

	code, resp := s.do(http.MethodGet, "/orders/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, resp.Success)

	code, _ = s.do(http.MethodPost, "/orders", map[string]string{"Idempotency-Key": "k"}, map[string]any{
		"buyer_id": "buyer-1", "product_id": "product-1", "quantity": 5,
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)

	orderID := s.checkout("checkout-1", 1)
	code, _ = s.do(http.MethodPost, "/orders/"+orderID+"/pay", map[string]string{"Idempotency-Key": "pay-1"}, map[string]any{
		"method": "card", "transaction_ref": "tx-1", "amount": "499.99",
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = s.do(http.MethodPost, "/orders/"+orderID+"/distribute", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = s.do(http.MethodGet, "/orders?limit=zero", nil, nil)
	require.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBusinessFailuresAlwaysCarryEnvelope(t *testing.T) {
	s := newTestServer(t)
	s.seedCatalog(1)
	orderID := s.checkout("checkout-1", 1)

	cases := []struct {
		name   string
		method string
		path   string
		header map[string]string
		body   any
		want   int
	}{
		{"unknown order", http.MethodGet, "/orders/missing", nil, nil, http.StatusNotFound},
		{"insufficient stock", http.MethodPost, "/orders", map[string]string{"Idempotency-Key": "k-stock"},
			map[string]any{"buyer_id": "buyer-1", "product_id": "product-1", "quantity": 5}, http.StatusUnprocessableEntity},
		{"distribute before payment", http.MethodPost, "/orders/" + orderID + "/distribute", nil, nil, http.StatusUnprocessableEntity},
		{"bad limit", http.MethodGet, "/orders?limit=zero", nil, nil, http.StatusBadRequest},
		{"unknown proposal", http.MethodGet, "/vote/results/missing", nil, nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		code, resp := s.do(tc.method, tc.path, tc.header, tc.body)
		require.Equal(t, tc.want, code, tc.name)
		require.Less(t, code, http.StatusInternalServerError, tc.name)
		require.False(t, resp.Success, tc.name)
		require.NotEmpty(t, resp.Message, tc.name)
	}
}

func TestVotingFlow(t *testing.T) {
	s := newTestServer(t)
	s.voting.Store.SetVotingPower("0xVOTER", 10)

	code, resp := s.do(http.MethodPost, "/proposals", map[string]string{"Idempotency-Key": "p-1"}, map[string]any{
		"title": "Lower fees", "category": "feature", "proposer_user_id": "user-p", "proposer_wallet": "0xP",
		"quorum": 0.5, "threshold": 50, "impact": map[string]any{"cost": 10, "risk": "low"},
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var proposal struct {
		ProposalID string `json:"proposal_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &proposal))

	code, resp = s.do(http.MethodPost, "/vote/cast", nil, map[string]any{
		"proposal_id": proposal.ProposalID, "user_id": "user-v", "wallet_address": "0xVOTER", "choice": "yes",
	})
	require.Equal(t, http.StatusUnprocessableEntity, code, "voting is not open yet")
	require.False(t, resp.Success)

	code, resp = s.do(http.MethodPost, "/proposals/"+proposal.ProposalID+"/open", nil, map[string]any{
		"actor_id": "admin", "duration_seconds": 3600,
	})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = s.do(http.MethodPost, "/vote/cast", nil, map[string]any{
		"proposal_id": proposal.ProposalID, "user_id": "user-v", "wallet_address": "0xVOTER", "choice": "yes",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	require.Equal(t, "vote recorded", resp.Message)

	code, resp = s.do(http.MethodGet, "/vote/results/"+proposal.ProposalID, nil, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	require.Contains(t, string(resp.Data), `"voting_open":true`)

	code, _ = s.do(http.MethodGet, "/proposals/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestStatusForTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{votingerrors.ErrInvalidVoteInput, http.StatusBadRequest},
		{votingerrors.ErrVotingClosed, http.StatusUnprocessableEntity},
		{votingerrors.ErrProposalNotFound, http.StatusNotFound},
		{votingerrors.ErrVersionConflict, http.StatusConflict},
		{votingerrors.ErrVotingPowerUnavailable, http.StatusFailedDependency},
		{votingerrors.ErrTallyMismatch, http.StatusInternalServerError},
		{settlementerrors.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("distribute: %w", settlementerrors.ErrLedgerUnavailable), http.StatusFailedDependency},
		{settlementerrors.ErrCommissionMismatch, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
