package services

import (
	"context"
	"fmt"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type queueService struct {
	repo   ports.TaskRepository
	logger *logger.Logger
}

type QueueServiceConfig struct {
	Repository ports.TaskRepository
	Logger     *logger.Logger
}

func NewQueueService(cfg QueueServiceConfig) ports.QueueService {
	return &queueService{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

func (s *queueService) Enqueue(ctx context.Context, input ports.EnqueueInput) (*domain.BulkTask, error) {
	if !input.Kind.Valid() {
		s.logger.Warnw("queue_enqueue_invalid_kind", "kind", input.Kind)
		return nil, fmt.Errorf("%w: %q", ErrTaskInvalidKind, input.Kind)
	}
	if len(input.Items) == 0 {
		s.logger.Warnw("queue_enqueue_no_items", "owner_id", input.OwnerID)
		return nil, ErrTaskNoItems
	}
	for i, item := range input.Items {
		if err := validateItem(item); err != nil {
			s.logger.Warnw("queue_enqueue_invalid_item", "owner_id", input.OwnerID, "index", i, "error", err)
			return nil, err
		}
	}

	task := &domain.BulkTask{
		Kind:       input.Kind,
		Status:     domain.TaskStatusPending,
		OwnerID:    input.OwnerID,
		TotalItems: len(input.Items),
		Items:      domain.TaskItems(input.Items),
		Results:    domain.ItemResults{},
	}
	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Errorw("queue_enqueue_persist_failed", "owner_id", input.OwnerID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTaskCreateFailed, err)
	}

	s.logger.Infow("queue_task_created",
		"task_id", task.ID, "kind", task.Kind, "owner_id", task.OwnerID, "items", task.TotalItems)
	return task, nil
}

func validateItem(item domain.TaskItem) error {
	if item.ServerID == 0 {
		return fmt.Errorf("%w: missing server id", ErrTaskInvalidItem)
	}
	if item.VMID <= 0 {
		return fmt.Errorf("%w: invalid vmid %d", ErrTaskInvalidItem, item.VMID)
	}
	if !item.Kind.Valid() {
		return fmt.Errorf("%w: unknown instance kind %q", ErrTaskInvalidItem, item.Kind)
	}
	if item.Node == "" {
		return fmt.Errorf("%w: missing node", ErrTaskInvalidItem)
	}
	return nil
}

func (s *queueService) Status(ctx context.Context, id uint, ownerID uint) (*domain.BulkTask, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	if task.OwnerID != ownerID {
		// Foreign tasks are indistinguishable from missing ones.
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *queueService) ListForOwner(ctx context.Context, ownerID uint, limit int) ([]domain.BulkTask, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByOwner(ctx, ownerID, limit)
}

func (s *queueService) ListActive(ctx context.Context, ownerID uint) ([]domain.BulkTask, error) {
	return s.repo.ListActiveByOwner(ctx, ownerID)
}

func (s *queueService) Cancel(ctx context.Context, id uint, ownerID uint) error {
	cancelled, err := s.repo.CancelPending(ctx, id, ownerID)
	if err != nil {
		s.logger.Errorw("queue_cancel_failed", "task_id", id, "error", err)
		return err
	}
	if !cancelled {
		s.logger.Warnw("queue_cancel_rejected", "task_id", id, "owner_id", ownerID)
		return ErrTaskNotCancellable
	}
	s.logger.Infow("queue_task_cancelled", "task_id", id, "owner_id", ownerID)
	return nil
}
