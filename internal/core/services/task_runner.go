package services

import (
	"context"
	"fmt"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

type taskRunner struct {
	repo     ports.TaskRepository
	executor ports.ItemExecutor
	logger   *logger.Logger
}

type TaskRunnerConfig struct {
	Repository ports.TaskRepository
	Executor   ports.ItemExecutor
	Logger     *logger.Logger
}

func NewTaskRunner(cfg TaskRunnerConfig) ports.TaskRunner {
	return &taskRunner{
		repo:     cfg.Repository,
		executor: cfg.Executor,
		logger:   cfg.Logger,
	}
}

// Run processes every item of an already-claimed task strictly in submission
// order, persisting counters and results after each item. Item faults are
// absorbed into results; only store faults fail the task itself.
func (r *taskRunner) Run(ctx context.Context, task *domain.BulkTask) {
	r.logger.Infow("task_run_started",
		"task_id", task.ID, "kind", task.Kind, "items", task.TotalItems)

	results := make(domain.ItemResults, 0, len(task.Items))
	completed := 0
	failed := 0

	for i, item := range task.Items {
		result := r.executor.Execute(ctx, task.Kind, item)
		results = append(results, result)
		if result.Success {
			completed++
		} else {
			failed++
		}

		if err := r.repo.SaveProgress(ctx, task.ID, completed, failed, results); err != nil {
			r.logger.Errorw("task_progress_persist_failed",
				"task_id", task.ID, "item_index", i, "error", err)
			r.finalize(ctx, task.ID, domain.TaskStatusFailed,
				fmt.Sprintf("failed to persist progress after item %d: %v", i, err))
			return
		}
	}

	status := domain.TaskStatusCompleted
	if failed > 0 {
		status = domain.TaskStatusCompletedWithErrors
	}
	r.finalize(ctx, task.ID, status, "")

	r.logger.Infow("task_run_finished",
		"task_id", task.ID, "status", status, "completed", completed, "failed", failed)
}

func (r *taskRunner) finalize(ctx context.Context, id uint, status domain.TaskStatus, errorMessage string) {
	if err := r.repo.Finalize(ctx, id, status, errorMessage); err != nil {
		// Nothing left to fall back to. The startup reconciliation pass
		// sweeps tasks stuck in running.
		r.logger.Errorw("task_finalize_failed", "task_id", id, "status", status, "error", err)
	}
}
