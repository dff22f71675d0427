// Package httpserver mounts the dao-voting and order-settlement handlers on
// one chi router.
//
// @title marketdao API
// @version 1.0
// @description DAO auto-voting and order commission settlement.
// @BasePath /
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	ordersettlement "marketdao/contexts/commerce/order-settlement"
	daovoting "marketdao/contexts/governance/dao-voting"
	_ "marketdao/internal/platform/httpserver/docs"
	"marketdao/internal/platform/httpserver/middleware/mwlogger"
)

const serverModule = "internal/platform/httpserver"

type Server struct {
	router     chi.Router
	logger     *slog.Logger
	addr       string
	voting     daovoting.Module
	settlement ordersettlement.Module
	metrics    http.Handler
}

type Options struct {
	Voting     daovoting.Module
	Settlement ordersettlement.Module
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	Addr    string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger,
		addr:       addr,
		voting:     opts.Voting,
		settlement: opts.Settlement,
		metrics:    opts.Metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting",
			"event", "http_server_starting",
			"module", serverModule,
			"layer", "platform",
			"addr", s.addr,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down",
		"event", "http_server_stopping",
		"module", serverModule,
		"layer", "platform",
	)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// registerRoutes mounts the API. Every failure is an Envelope with success
// false and the reason in message. Business rule failures carry a 4xx status
// chosen by statusFor; 5xx is reserved for infrastructure failures.
func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwlogger.New(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/vote", func(r chi.Router) {
		r.Post("/cast", s.handleCastVote)
		r.Post("/auto-vote", s.handleAutoVote)
		r.Get("/results/{proposal_id}", s.handleResults)
	})
	r.Route("/proposals", func(r chi.Router) {
		r.Post("/", s.handleCreateProposal)
		r.Get("/{proposal_id}", s.handleGetProposal)
		r.Post("/{proposal_id}/open", s.handleOpenVoting)
		r.Post("/{proposal_id}/finalize", s.handleFinalizeProposal)
		r.Post("/{proposal_id}/execute", s.handleExecuteProposal)
	})
	r.Route("/preferences/{user_id}", func(r chi.Router) {
		r.Get("/", s.handleGetPreferences)
		r.Put("/", s.handleUpdatePreferences)
		r.Post("/delegation", s.handleSetDelegation)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Put("/products/{product_id}", s.handleUpsertProduct)
		r.Put("/sellers/{seller_id}", s.handleUpsertSeller)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.handleCheckout)
		r.Get("/", s.handleListOrders)
		r.Get("/manual-review", s.handleManualReview)
		r.Get("/{order_id}", s.handleGetOrder)
		r.Post("/{order_id}/pay", s.handlePayOrder)
		r.Post("/{order_id}/distribute", s.handleDistribute)
		r.Post("/{order_id}/reverse", s.handleReverse)
		r.Post("/{order_id}/refund", s.handleRefund)
		r.Post("/{order_id}/advance", s.handleAdvance)
		r.Post("/{order_id}/cancel", s.handleCancel)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "ok", nil)
}
