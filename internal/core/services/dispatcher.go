package services

import (
	"context"
	"time"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

// DefaultPollInterval matches the queue processing cadence of the panel
// scheduler.
const DefaultPollInterval = 5 * time.Second

// InterruptedMessage is stamped on tasks found running at startup. A running
// row with no live runner cannot be resumed safely, since hypervisor
// operations are not idempotent.
const InterruptedMessage = "interrupted: dispatcher restarted while task was running"

// Dispatcher is the single background worker driving task execution. It
// claims the oldest pending task atomically and runs it to completion before
// looking at the queue again, so at most one task is ever running — even
// with multiple dispatcher replicas, only one wins the claim.
type Dispatcher struct {
	repo     ports.TaskRepository
	runner   ports.TaskRunner
	logger   *logger.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

type DispatcherConfig struct {
	Repository   ports.TaskRepository
	Runner       ports.TaskRunner
	Logger       *logger.Logger
	PollInterval time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Dispatcher{
		repo:     cfg.Repository,
		runner:   cfg.Runner,
		logger:   cfg.Logger,
		interval: cfg.PollInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start reconciles orphaned running tasks and launches the poll loop.
func (d *Dispatcher) Start(ctx context.Context) {
	if n, err := d.repo.MarkInterrupted(ctx, InterruptedMessage); err != nil {
		d.logger.Errorw("dispatcher_reconcile_failed", "error", err)
	} else if n > 0 {
		d.logger.Warnw("dispatcher_reconciled_interrupted_tasks", "count", n)
	}

	go d.loop(ctx)
	d.logger.Infow("dispatcher_started", "poll_interval", d.interval)
}

// Stop signals the loop and waits for the in-flight task, if any, to finish.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.logger.Infow("dispatcher_stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain runs claimed tasks back to back so a burst of enqueues does not pay
// one poll interval per task.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := d.repo.ClaimOldestPending(ctx)
		if err != nil {
			d.logger.Errorw("dispatcher_claim_failed", "error", err)
			return
		}
		if task == nil {
			return
		}

		d.logger.Infow("dispatcher_task_claimed",
			"task_id", task.ID, "kind", task.Kind, "items", task.TotalItems)
		d.runner.Run(ctx, task)
	}
}
