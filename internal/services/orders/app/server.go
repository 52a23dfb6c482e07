// Package app composes the orders process: SQLite store, event bus,
// outbox dispatcher, projector, websocket gateway, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/cache"
	"github.com/commerceloop/orderflow/internal/services/orders/api/httpapi"
	"github.com/commerceloop/orderflow/internal/services/orders/domain"
	"github.com/commerceloop/orderflow/internal/services/orders/event"
	"github.com/commerceloop/orderflow/internal/services/orders/gateway"
	"github.com/commerceloop/orderflow/internal/services/orders/outbox"
	"github.com/commerceloop/orderflow/internal/services/orders/projection"
	"github.com/commerceloop/orderflow/internal/services/orders/query"
	"github.com/commerceloop/orderflow/internal/services/orders/storage/sqlite"
	"github.com/commerceloop/orderflow/internal/services/orders/uploads"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config defines the inputs for the orders process.
type Config struct {
	HTTPAddr      string
	DBPath        string
	TokenSecret   string
	UploadBaseURL string
	// RedisAddr, when set, enables the idempotency fast-path cache.
	RedisAddr string

	// Settlement delay bounds; zero values keep the defaults.
	SettleDelayMin time.Duration
	SettleDelayMax time.Duration
	// OutboxPollInterval overrides the dispatcher tick; zero keeps the default.
	OutboxPollInterval time.Duration

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the orders process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server

	store      *sqlite.Store
	bus        *event.Bus
	dispatcher *outbox.Dispatcher
	projector  *projection.Projector
}

// NewServer builds a fully wired orders server.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.DBPath) == "" {
		return nil, errors.New("database path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open orders store: %w", err)
	}

	verifier, err := gateway.NewTokenVerifier(config.TokenSecret)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	bus := event.NewBus()

	var dispatcherOpts []outbox.Option
	if config.OutboxPollInterval > 0 {
		dispatcherOpts = append(dispatcherOpts, outbox.WithPollInterval(config.OutboxPollInterval))
	}
	dispatcher := outbox.NewDispatcher(store, bus, dispatcherOpts...)
	nudging := &nudgingStore{Store: store, nudge: dispatcher.Nudge}

	var projectorOpts []projection.Option
	if config.SettleDelayMin > 0 && config.SettleDelayMax >= config.SettleDelayMin {
		projectorOpts = append(projectorOpts, projection.WithSettleDelay(config.SettleDelayMin, config.SettleDelayMax))
	}
	projector := projection.NewProjector(nudging, projectorOpts...)
	projector.Register(bus)

	wsGateway := gateway.NewGateway(verifier)
	wsGateway.Register(bus)

	var domainOpts []domain.Option
	if addr := strings.TrimSpace(config.RedisAddr); addr != "" {
		domainOpts = append(domainOpts, domain.WithCache(cache.NewRedisCache(addr, "orders")))
	}
	orderService := domain.NewService(nudging, domainOpts...)

	uploadBaseURL := strings.TrimSpace(config.UploadBaseURL)
	if uploadBaseURL == "" {
		uploadBaseURL = "https://uploads.local"
	}

	handler := httpapi.New(httpapi.Config{
		Orders:    orderService,
		Queries:   query.NewService(store),
		Uploads:   uploads.NewService(uploadBaseURL),
		Verifier:  verifier,
		WSHandler: wsGateway.Handler(),
	})

	dispatcher.Start(ctx)

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		projector:  projector,
	}, nil
}

// Run creates and serves an orders server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init orders server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve orders: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("orders server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	slog.Info("orders server listening", "addr", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources. Pending settlement timers are
// cancelled; the dispatcher and bus drain before the store closes.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.projector != nil {
		s.projector.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close orders store", "error", err)
		}
	}
}
