package ports

import (
	"context"

	"github.com/virtpanel/backend/internal/domain"
)

// TaskRepository is the durable record store for bulk tasks. Claim, progress
// and cancel mutations are atomic: each is a single guarded UPDATE so that
// concurrent dispatchers and readers never observe a torn update.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.BulkTask) error
	GetByID(ctx context.Context, id uint) (*domain.BulkTask, error)
	ListByOwner(ctx context.Context, ownerID uint, limit int) ([]domain.BulkTask, error)
	ListActiveByOwner(ctx context.Context, ownerID uint) ([]domain.BulkTask, error)

	// ClaimOldestPending atomically transitions the oldest pending task to
	// running and returns it. Returns (nil, nil) when there is nothing to
	// claim or another task is already running.
	ClaimOldestPending(ctx context.Context) (*domain.BulkTask, error)

	// SaveProgress persists counters and the results slice as one unit.
	// Only valid while the task is running.
	SaveProgress(ctx context.Context, id uint, completed, failed int, results domain.ItemResults) error

	// Finalize moves a running task to a terminal status and stamps
	// completed_at.
	Finalize(ctx context.Context, id uint, status domain.TaskStatus, errorMessage string) error

	// CancelPending cancels a pending task owned by ownerID. Returns
	// ErrTaskNotCancellable from the caller's perspective when no row
	// matched (missing, foreign, or no longer pending).
	CancelPending(ctx context.Context, id uint, ownerID uint) (bool, error)

	// MarkInterrupted fails every task still marked running. Called once at
	// dispatcher startup; a running row with no live runner is an
	// infrastructure fault, not a resumable task.
	MarkInterrupted(ctx context.Context, message string) (int64, error)
}

type ServerRepository interface {
	Create(ctx context.Context, server *domain.HypervisorServer) error
	GetByID(ctx context.Context, id uint) (*domain.HypervisorServer, error)
	GetAll(ctx context.Context) ([]domain.HypervisorServer, error)
	Update(ctx context.Context, server *domain.HypervisorServer) error
	Delete(ctx context.Context, id uint) error
}

type AllocationRepository interface {
	GetInUseByInstance(ctx context.Context, serverID uint, vmid int) ([]domain.IPAllocation, error)
	Release(ctx context.Context, id uint, releasedBy string) error
}
