// The monitor process runs the periodic deadline scan and the Redis-backed
// deadline worker. It shares no in-process state with the API: all
// coordination happens through guarded updates in Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadrouter_backend/internal/distribution"
	"leadrouter_backend/internal/escalation"
	"leadrouter_backend/internal/events"
	leadsrepo "leadrouter_backend/internal/leads/repository"
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
	log.Info("starting monitor", "env", cfg.Env, "interval", cfg.MonitorInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	teamModule := team.NewModule(pool)
	tasksModule := tasks.NewModule(pool, eventBus, cfg, nil)
	engine := distribution.NewEngine(teamModule.Directory(), leadsrepo.New(pool), eventBus, log)
	leadStore := leadsrepo.New(pool)

	ruleSet, err := rules.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Error("failed to load reschedule rules", "error", err, "file", cfg.RulesFile)
		panic("failed to load reschedule rules: " + err.Error())
	}
	log.Info("reschedule rules loaded", "count", len(ruleSet), "file", cfg.RulesFile)

	ruleEngine := rules.NewEngine(ruleSet, leadStore, leadStore, engine, tasksModule.Ledger(), rules.NewRepository(pool), eventBus, log, cfg)

	escalationModule := escalation.NewModule(pool, teamModule.Directory(), tasksModule.Ledger(), eventBus, log, cfg, nil)

	// Notifications triggered by monitor-side events (escalations, alerts,
	// redistribution tasks) are delivered from this process.
	notification.NewModule(pool, teamModule.Directory(), eventBus, log, cfg)

	loop := monitoring.New(leadStore, tasksModule.Ledger(), engine, ruleEngine, escalationModule.Advisor(), log, cfg, nil)

	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; running the periodic scan only")
		loop.Run(ctx)
		return
	}

	worker, err := scheduler.NewWorker(cfg, loop, log)
	if err != nil {
		log.Error("failed to initialize deadline worker", "error", err)
		panic("failed to initialize deadline worker: " + err.Error())
	}

	go loop.Run(ctx)
	worker.Run(ctx)
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
