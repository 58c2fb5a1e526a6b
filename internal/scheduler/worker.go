package scheduler

import (
	"context"
	"fmt"

	"leadrouter_backend/internal/monitoring"
	"leadrouter_backend/platform/config"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// DeadlineChecker re-checks one lead's deadlines. Satisfied by the
// monitoring loop.
type DeadlineChecker interface {
	TickLead(ctx context.Context, leadID uuid.UUID) monitoring.Result
}

// Worker consumes deadline-check jobs and hands them to the monitoring loop.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	checker DeadlineChecker
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, checker DeadlineChecker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		checker: checker,
		log:     log,
	}

	mux.HandleFunc(TaskContactDeadline, w.handleContactDeadline)

	return w, nil
}

func (w *Worker) handleContactDeadline(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseContactDeadlinePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	// TickLead is a no-op when the task was completed before the deadline or
	// when the periodic loop already handled the expiry.
	result := w.checker.TickLead(ctx, leadID)
	if len(result.Errors) > 0 {
		return fmt.Errorf("deadline check for lead %s: %s", leadID, result.Errors[0])
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
