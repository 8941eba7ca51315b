package db

import (
	"context"
	"errors"
	"time"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.BulkTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "kind", task.Kind, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID, "kind", task.Kind, "items", task.TotalItems)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uint) (*domain.BulkTask, error) {
	var task domain.BulkTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]domain.BulkTask, error) {
	var tasks []domain.BulkTask
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) ListActiveByOwner(ctx context.Context, ownerID uint) ([]domain.BulkTask, error) {
	var tasks []domain.BulkTask
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status IN ?", ownerID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusRunning}).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_active_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return tasks, nil
}

// ClaimOldestPending performs the pending→running transition as one guarded
// UPDATE. The NOT EXISTS clause keeps the single-flight invariant even with
// multiple dispatcher replicas: only one claim can succeed, and none succeeds
// while any task is running.
func (r *taskRepository) ClaimOldestPending(ctx context.Context) (*domain.BulkTask, error) {
	now := time.Now().UTC()

	var claimed struct{ ID uint }
	err := r.db.WithContext(ctx).Raw(`
		UPDATE task_queue
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM task_queue
			WHERE status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		AND status = ?
		AND NOT EXISTS (SELECT 1 FROM task_queue WHERE status = ?)
		RETURNING id
	`,
		domain.TaskStatusRunning, now, now,
		domain.TaskStatusPending, domain.TaskStatusPending, domain.TaskStatusRunning,
	).Scan(&claimed).Error
	if err != nil {
		r.log.Errorw("task_repo_claim_failed", "error", err)
		return nil, err
	}
	if claimed.ID == 0 {
		return nil, nil
	}

	task, err := r.GetByID(ctx, claimed.ID)
	if err != nil {
		return nil, err
	}
	r.log.Infow("task_repo_claim_ok", "id", task.ID, "kind", task.Kind)
	return task, nil
}

func (r *taskRepository) SaveProgress(ctx context.Context, id uint, completed, failed int, results domain.ItemResults) error {
	res := r.db.WithContext(ctx).
		Model(&domain.BulkTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusRunning).
		Updates(map[string]interface{}{
			"completed_items": completed,
			"failed_items":    failed,
			"results":         results,
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_progress_failed", "id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("task is no longer running")
	}
	return nil
}

func (r *taskRepository) Finalize(ctx context.Context, id uint, status domain.TaskStatus, errorMessage string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.BulkTask{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusRunning).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"completed_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_finalize_failed", "id", id, "status", status, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("task is no longer running")
	}
	r.log.Infow("task_repo_finalize_ok", "id", id, "status", status)
	return nil
}

func (r *taskRepository) CancelPending(ctx context.Context, id uint, ownerID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.BulkTask{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, domain.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":       domain.TaskStatusCancelled,
			"completed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_cancel_failed", "id", id, "error", res.Error)
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskRepository) MarkInterrupted(ctx context.Context, message string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.BulkTask{}).
		Where("status = ?", domain.TaskStatusRunning).
		Updates(map[string]interface{}{
			"status":        domain.TaskStatusFailed,
			"error_message": message,
			"completed_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_mark_interrupted_failed", "error", res.Error)
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warnw("task_repo_marked_interrupted", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
