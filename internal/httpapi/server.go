// Package httpapi implements the JSON HTTP façade spec §6 names as this
// core's external surface: snapshot generation/reporting, trading
// calendar checks, provider health/reset, and the two per-symbol
// convenience endpoints. Grounded on the teacher's
// internal/interfaces/http package (gorilla/mux router, a small
// middleware chain applied with router.Use, a responseWrapper that
// captures the status code for logging).
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"marketpulse/internal/calendar"
	"marketpulse/internal/domain"
	"marketpulse/internal/enrich"
	"marketpulse/internal/provider"
	"marketpulse/internal/snapshot"
)

// InstrumentStore is the narrow slice of the instrument repository the
// HTTP layer needs: symbol lookup for the two per-symbol endpoints, and
// a full listing for batch generation/report assembly. Implemented by
// internal/persistence/postgres.InstrumentRepo in production.
type InstrumentStore interface {
	GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)
	ListAll(ctx context.Context) ([]domain.Instrument, error)
	UpdatePrice(ctx context.Context, instrumentID int64, price float64, at time.Time) error
}

// Config holds the HTTP server's own settings (spec §6's surface is
// local-only by default, matching the teacher's ServerConfig).
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig mirrors the teacher's DefaultServerConfig defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the JSON HTTP façade over the core pipeline.
type Server struct {
	router *mux.Router
	server *http.Server
	config Config
	logger zerolog.Logger

	calendar    *calendar.Calendar
	coordinator *provider.Coordinator
	pipeline    *enrich.Pipeline
	generator   *snapshot.Generator
	store       snapshot.Store
	instruments InstrumentStore

	now func() time.Time
}

// Deps bundles every collaborator the façade dispatches to, built once
// at startup in cmd/marketpulse and passed by reference (spec §9: no
// hidden global state).
type Deps struct {
	Calendar    *calendar.Calendar
	Coordinator *provider.Coordinator
	Pipeline    *enrich.Pipeline
	Generator   *snapshot.Generator
	Store       snapshot.Store
	Instruments InstrumentStore
}

// NewServer builds the Server and registers every route, verifying the
// configured port is free the way the teacher's NewServer does.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	s := &Server{
		router:      mux.NewRouter(),
		config:      cfg,
		logger:      logger,
		calendar:    deps.Calendar,
		coordinator: deps.Coordinator,
		pipeline:    deps.Pipeline,
		generator:   deps.Generator,
		store:       deps.Store,
		instruments: deps.Instruments,
		now:         time.Now,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// setupRoutes wires spec §6's public surface onto the gorilla/mux
// router, with the request-id/logging/recovery middleware chain applied
// ahead of every handler the way the teacher's setupRoutes does.
func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/snapshots/generate", s.handleGenerateSnapshots).Methods(http.MethodPost)
	api.HandleFunc("/reports/daily", s.handleDailyReport).Methods(http.MethodGet)

	api.HandleFunc("/trading-calendar/check", s.handleCalendarCheck).Methods(http.MethodGet)
	api.HandleFunc("/trading-calendar/refresh", s.handleCalendarRefresh).Methods(http.MethodPost)

	api.HandleFunc("/providers/health", s.handleProvidersHealth).Methods(http.MethodGet)
	api.HandleFunc("/providers/reset", s.handleProvidersReset).Methods(http.MethodPost)
	api.HandleFunc("/providers/reset-all", s.handleProvidersResetAll).Methods(http.MethodPost)
	api.HandleFunc("/providers/capabilities", s.handleProvidersCapabilities).Methods(http.MethodGet)

	api.HandleFunc("/stocks/symbol/{symbol}/update-price", s.handleUpdatePrice).Methods(http.MethodGet)
	api.HandleFunc("/stocks/symbol/{symbol}/clear-cache-and-refresh", s.handleClearCacheAndRefresh).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
