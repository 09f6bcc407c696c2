package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/zaltech/callops/internal/agent"
	"github.com/zaltech/callops/internal/api/router"
	"github.com/zaltech/callops/internal/appointments"
	"github.com/zaltech/callops/internal/calls"
	appconfig "github.com/zaltech/callops/internal/config"
	"github.com/zaltech/callops/internal/leads"
	"github.com/zaltech/callops/internal/notify"
	"github.com/zaltech/callops/internal/observability/metrics"
	"github.com/zaltech/callops/internal/realtime"
	"github.com/zaltech/callops/internal/services"
	"github.com/zaltech/callops/internal/stats"
	"github.com/zaltech/callops/internal/stream"
	"github.com/zaltech/callops/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting callops API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rtMetrics := metrics.NewRealtimeMetrics(reg)

	// Relational storage; in-memory repos keep development working without it.
	var (
		callsRepo calls.Repository        = calls.NewInMemoryRepository()
		leadsRepo leads.Repository        = leads.NewInMemoryRepository()
		apptsRepo appointments.Repository = appointments.NewInMemoryRepository()
		statsDB   *sql.DB
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		callsRepo = calls.NewPostgresRepository(pool)
		leadsRepo = leads.NewPostgresRepository(pool)
		apptsRepo = appointments.NewPostgresRepository(pool)

		statsDB, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open stats db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = statsDB.Close() }()
	} else {
		logger.Warn("DATABASE_URL unset, using in-memory repositories")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	}
	archive := calls.NewRecentCallStore(redisClient, cfg.TranscriptRetention)

	// Upstream voice-agent platform client (live websocket + poll).
	agentClient, err := agent.New(agent.Config{
		APIBaseURL: cfg.AgentAPIBaseURL,
		WSBaseURL:  cfg.AgentWSBaseURL,
		APIKey:     cfg.AgentAPIKey,
		Timeout:    cfg.ConnectTimeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create agent client", "error", err)
		os.Exit(1)
	}

	// Realtime core: adapter -> state -> hub, driven by the manager.
	state := realtime.NewStreamState(logger, rtMetrics)
	adapter := realtime.NewAdapter(logger, rtMetrics)
	manager := realtime.NewManager(agentClient, agentClient, adapter, state, &realtime.ManagerOptions{
		PollInterval:     cfg.PollInterval,
		ReconnectDelay:   cfg.ReconnectDelay,
		ConnectTimeout:   cfg.ConnectTimeout,
		ReadStallTimeout: cfg.ReadStallTimeout,
	}, logger, rtMetrics)
	hub := stream.NewHub(manager, state, logger, rtMetrics)
	state.SetSink(hub)
	state.SetOnCallEnded(func(callID string, detail calls.CallDetail) {
		go func() {
			manager.Unsubscribe(callID)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			persisted := true
			if err := archive.Put(ctx, &detail); err != nil {
				persisted = false
				logger.Error("failed to archive ended call", "error", err, "call_id", callID)
			}
			if err := callsRepo.Save(ctx, &detail); err != nil {
				persisted = false
				logger.Error("failed to persist ended call", "error", err, "call_id", callID)
			}
			// Trim the in-memory copy only once the durable copies exist;
			// on failure the stream state keeps serving the call.
			if persisted {
				state.Forget(callID)
			}
		}()
	})

	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	summary := notify.NewCallSummaryService(emailSender, logger)

	routerCfg := &router.Config{
		Logger:              logger,
		CallsHandler:        calls.NewHandler(state, archive, callsRepo, summary, logger),
		LeadsHandler:        leads.NewHandler(leadsRepo, logger),
		AppointmentsHandler: appointments.NewHandler(apptsRepo, logger),
		ServicesHandler:     services.NewHandler(services.NewInMemoryRepository(), logger),
		StatsHandler:        stats.NewHandler(statsDB, state, logger),
		StreamHub:           hub,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		OperatorJWTSecret:   cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	manager.Close()
	logger.Info("server stopped")
}
