// Package main runs the waiver worker: the scheduler that resolves, re-ranks
// and expires claims, plus the HTTP API, websocket feed and metrics endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"waiver-wire/internal/config"
	"waiver-wire/internal/httpapi"
	"waiver-wire/internal/notify"
	"waiver-wire/internal/observability"
	"waiver-wire/internal/reporting"
	"waiver-wire/internal/scheduler"
	"waiver-wire/internal/seed"
	"waiver-wire/internal/storage"
	chstore "waiver-wire/internal/storage/clickhouse"
	"waiver-wire/internal/storage/memory"
	"waiver-wire/internal/storage/migrations"
	pgstore "waiver-wire/internal/storage/postgres"
	"waiver-wire/internal/waiver"
)

// Server holds all components of the worker.
type Server struct {
	cfg *config.Config
	log *logrus.Logger

	stores    *allStores
	service   *waiver.Service
	scheduler *scheduler.Scheduler
	reporter  *reporting.Reporter
	hub       *notify.Hub

	mu        sync.Mutex
	startedAt time.Time
}

// allStores holds all storage implementations.
type allStores struct {
	leagues storage.LeagueStore
	teams   storage.TeamStore
	roster  storage.RosterService
	claims  storage.ClaimStore
	events  storage.EventStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string")
	flag.BoolVar(&cfg.UseMemory, "use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.StringVar(&cfg.SeedFile, "seed-file", cfg.SeedFile, "YAML fixture loaded into memory stores")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP API, websocket and metrics address")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Resolution and re-rank check interval")
	flag.IntVar(&cfg.SweepHour, "sweep-hour", cfg.SweepHour, "UTC hour of the daily expiration sweep")
	migrate := flag.Bool("migrate", false, "Apply database migrations before starting")
	flag.Parse()

	logger := cfg.Logger()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg, *migrate, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	server := newServer(cfg, stores, logger)

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig).Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg *config.Config, migrate bool, logger *logrus.Logger) (*allStores, func(), error) {
	if cfg.UseMemory {
		leagues := memory.NewLeagueStore()
		teams := memory.NewTeamStore()
		stores := &allStores{
			leagues: leagues,
			teams:   teams,
			roster:  teams,
			claims:  memory.NewClaimStore(),
			events:  memory.NewEventStore(),
		}

		if cfg.SeedFile != "" {
			fx, err := seed.LoadFile(cfg.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			if err := fx.Apply(ctx, seed.Target{PutLeague: leagues.Put, PutTeam: teams.PutTeam}); err != nil {
				return nil, nil, fmt.Errorf("apply seed: %w", err)
			}
			logger.WithFields(logrus.Fields{"leagues": len(fx.Leagues), "teams": fx.Teams()}).Info("seed loaded")
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// ClickHouse
	var chConn *chstore.Conn
	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logger)
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	teams := pgstore.NewTeamStore(pool)
	stores := &allStores{
		// PostgreSQL stores (system of record)
		leagues: pgstore.NewLeagueStore(pool),
		teams:   teams,
		roster:  teams,
		claims:  pgstore.NewClaimStore(pool),

		// ClickHouse store (event history)
		events: chstore.NewEventStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

func newServer(cfg *config.Config, stores *allStores, logger *logrus.Logger) *Server {
	hub := notify.NewHub(nil, logger)

	reporter := reporting.NewReporter(reporting.Options{
		MaxElapsed: cfg.ReportMaxElapsed,
		Logger:     logger,
	})
	reporter.AddSink("history", stores.events)
	reporter.AddSink("websocket", hub)
	if cfg.DiscordWebhookURL != "" {
		discord, err := notify.NewDiscordSink(cfg.DiscordWebhookURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("invalid DISCORD_WEBHOOK_URL")
		}
		reporter.AddSink("discord", discord)
	}

	service := waiver.New(waiver.Options{
		Leagues:        stores.leagues,
		Teams:          stores.teams,
		Roster:         stores.roster,
		Claims:         stores.claims,
		Reporter:       reporter,
		Logger:         logger,
		LeaseTTL:       cfg.LeaseTTL,
		Workers:        cfg.RunWorkers,
		ExpiryGrace:    cfg.ExpiryGrace,
		LeagueCacheTTL: cfg.LeagueCacheTTL,
	})

	sched := scheduler.New(scheduler.SystemClock{}, time.Second, logger)
	sched.Register("waiver-resolution", scheduler.Every(cfg.PollInterval), service.ResolveDue)
	sched.Register("priority-rerank", scheduler.Every(cfg.PollInterval), service.RerankDue)
	sched.Register("expiration-sweep", scheduler.Daily{Hour: cfg.SweepHour}, func(ctx context.Context, now time.Time) error {
		n, err := service.ExpireStale(ctx, now)
		if n > 0 {
			logger.WithField("expired", n).Info("expiration sweep finished")
		}
		return err
	})

	return &Server{
		cfg:       cfg,
		log:       logger,
		stores:    stores,
		service:   service,
		scheduler: sched,
		reporter:  reporter,
		hub:       hub,
	}
}

// Run starts the scheduler and HTTP server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"http_addr":     s.cfg.HTTPAddr,
		"poll_interval": s.cfg.PollInterval,
		"sweep_hour":    s.cfg.SweepHour,
		"memory":        s.cfg.UseMemory,
		"sinks":         s.reporter.Sinks(),
	}).Info("starting waiver worker")

	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Create error channel for goroutines
	errCh := make(chan error, 2)

	go func() {
		if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	go func() {
		s.log.WithField("addr", s.cfg.HTTPAddr).Info("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("http shutdown")
	}
	return runErr
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("GET /status", s.handleStatus)

	// Live run results
	mux.Handle("GET /ws", s.hub)

	httpapi.New(s.service, s.log).WithHistory(s.stores.events).Register(mux)
	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string                `json:"status"`
	Uptime    string                `json:"uptime"`
	StartedAt time.Time             `json:"started_at"`
	Storage   string                `json:"storage"`
	Sinks     []string              `json:"sinks"`
	WSClients int                   `json:"ws_clients"`
	Jobs      []scheduler.JobStatus `json:"jobs"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	storageMode := "postgres+clickhouse"
	if s.cfg.UseMemory {
		storageMode = "memory"
	}

	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		StartedAt: startedAt,
		Storage:   storageMode,
		Sinks:     s.reporter.Sinks(),
		WSClients: s.hub.Clients(),
		Jobs:      s.scheduler.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
