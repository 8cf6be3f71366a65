package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/server/handler"
	"github.com/brixmarket/syncengine/internal/server/middleware"
	"github.com/brixmarket/syncengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Assets    *handler.AssetHandler
	Books     *handler.BookHandler
	Trades    *handler.TradeHandler
	Candles   *handler.CandleHandler
	Wallets   *handler.WalletHandler
	Incidents *handler.IncidentHandler
	Cursors   *handler.CursorHandler
	Archives  *handler.ArchiveHandler // nil when blob storage is not wired
}

// Server is the read-only HTTP + WebSocket query API over the synchronized
// order, trade, and ledger projections.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Asset endpoints.
	mux.HandleFunc("GET /api/assets", handlers.Assets.ListAssets)
	mux.HandleFunc("GET /api/assets/{id}/stats", handlers.Assets.GetStats)
	mux.HandleFunc("GET /api/assets/{id}/book", handlers.Books.GetBook)
	mux.HandleFunc("GET /api/assets/{id}/trades", handlers.Trades.ListByAsset)
	mux.HandleFunc("GET /api/assets/{id}/candles", handlers.Candles.GetCandles)

	// Wallet endpoints.
	mux.HandleFunc("GET /api/wallets/{address}/balance", handlers.Wallets.GetBalance)
	mux.HandleFunc("GET /api/wallets/{address}/orders", handlers.Wallets.ListOrders)
	mux.HandleFunc("GET /api/wallets/{address}/trades", handlers.Wallets.ListTrades)
	mux.HandleFunc("GET /api/wallets/{address}/ledger", handlers.Wallets.ListLedger)

	// Operator endpoints.
	mux.HandleFunc("GET /api/incidents", handlers.Incidents.ListOpen)
	mux.HandleFunc("POST /api/incidents/{id}/resolve", handlers.Incidents.Resolve)
	mux.HandleFunc("GET /api/cursors", handlers.Cursors.List)
	mux.HandleFunc("PUT /api/cursors/{contract}", handlers.Cursors.Reset)
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
