package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/slotengine/internal/crypto"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/server/handler"
	"github.com/alanyoungcy/slotengine/internal/server/middleware"
	"github.com/alanyoungcy/slotengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// Signer, when set, requires signed mutating requests.
	Signer *crypto.RequestSigner
	// Limiter throttles mutating requests when set and RateLimit > 0.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
	// WriteTimeout must cover a full action settlement. Defaults to 4 minutes.
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Slots   *handler.SlotHandler
	Actions *handler.ActionHandler
}

// Server is the HTTP + WebSocket API of the slot engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Board and slot reads.
	mux.HandleFunc("GET /api/slots", handlers.Slots.GetBoard)
	mux.HandleFunc("GET /api/slots/vacant", handlers.Slots.ListVacant)
	mux.HandleFunc("GET /api/slots/active", handlers.Slots.ListActive)
	mux.HandleFunc("GET /api/slots/metrics", handlers.Slots.GetMetrics)
	mux.HandleFunc("GET /api/slots/{address}", handlers.Slots.GetSlot)
	mux.HandleFunc("GET /api/slots/{address}/quote", handlers.Slots.GetQuote)
	mux.HandleFunc("GET /api/slots/{address}/history", handlers.Slots.GetHistory)

	// Actions.
	mux.HandleFunc("POST /api/slots/{address}/claim", handlers.Actions.Claim)
	mux.HandleFunc("POST /api/slots/{address}/takeover", handlers.Actions.Takeover)
	mux.HandleFunc("POST /api/slots/{address}/renew", handlers.Actions.Renew)
	mux.HandleFunc("POST /api/slots/{address}/forfeit", handlers.Actions.Forfeit)
	mux.HandleFunc("POST /api/slots/{address}/poke", handlers.Actions.Poke)
	mux.HandleFunc("POST /api/slots/{address}/creative", handlers.Actions.UpdateCreative)
	mux.HandleFunc("GET /api/actions/pending", handlers.Actions.GetPending)
	mux.HandleFunc("GET /api/actions/recent", handlers.Actions.ListRecent)
	mux.HandleFunc("GET /api/actions/{id}", handlers.Actions.GetAction)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Innermost first: signature, rate limit, auth, logging, CORS.
	var h http.Handler = mux
	h = middleware.Signed(cfg.Signer, nil)(h)
	h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, middleware.Mutating, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 4 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
