package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadrouter_backend/internal/distribution"
	"leadrouter_backend/internal/escalation"
	"leadrouter_backend/internal/events"
	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/internal/http/router"
	"leadrouter_backend/internal/leads"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	leadsservice "leadrouter_backend/internal/leads/service"
	"leadrouter_backend/internal/monitoring"
	"leadrouter_backend/internal/notification"
	"leadrouter_backend/internal/rules"
	"leadrouter_backend/internal/scheduler"
	"leadrouter_backend/internal/tasks"
	"leadrouter_backend/internal/team"
	"leadrouter_backend/platform/config"
	"leadrouter_backend/platform/db"
	"leadrouter_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	deadlineScheduler, closeScheduler := initDeadlineScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	teamModule := team.NewModule(pool)
	tasksModule := tasks.NewModule(pool, eventBus, cfg, nil)

	engine := distribution.NewEngine(teamModule.Directory(), leadsrepo.New(pool), eventBus, log)

	leadsModule := leads.NewModule(pool, engine, tasksModule.Ledger(), deadlineScheduler, eventBus, log, cfg, nil)

	ruleSet, err := rules.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Error("failed to load reschedule rules", "error", err, "file", cfg.RulesFile)
		panic("failed to load reschedule rules: " + err.Error())
	}
	log.Info("reschedule rules loaded", "count", len(ruleSet), "file", cfg.RulesFile)

	ruleStore := rules.NewRepository(pool)
	ruleEngine := rules.NewEngine(ruleSet, leadsModule.Repository(), leadsModule.Repository(), engine, tasksModule.Ledger(), ruleStore, eventBus, log, cfg)
	rulesModule := rules.NewModule(ruleEngine, ruleStore)

	escalationModule := escalation.NewModule(pool, teamModule.Directory(), tasksModule.Ledger(), eventBus, log, cfg, nil)

	loop := monitoring.New(leadsModule.Repository(), tasksModule.Ledger(), engine, ruleEngine, escalationModule.Advisor(), log, cfg, nil)
	monitoringModule := monitoring.NewModule(loop)

	// Notification module subscribes to domain events and serves the in-app feed
	notificationModule := notification.NewModule(pool, teamModule.Directory(), eventBus, log, cfg)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engineHTTP := router.New(cfg, log, pool, []apphttp.Module{
		teamModule,
		leadsModule,
		tasksModule,
		rulesModule,
		monitoringModule,
		escalationModule,
		notificationModule,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engineHTTP,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initDeadlineScheduler(cfg config.SchedulerConfig, log *logger.Logger) (leadsservice.DeadlineScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; deadline checks rely on the periodic monitor only")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize deadline scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
