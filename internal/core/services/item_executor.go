package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

// DefaultItemTimeout bounds one remote operation, matching the interactive
// command timeout used across the panel.
const DefaultItemTimeout = 30 * time.Second

type itemExecutor struct {
	pool        ports.HypervisorPool
	allocations ports.AllocationService
	logger      *logger.Logger
	timeout     time.Duration
}

type ItemExecutorConfig struct {
	Pool        ports.HypervisorPool
	Allocations ports.AllocationService
	Logger      *logger.Logger
	Timeout     time.Duration
}

func NewItemExecutor(cfg ItemExecutorConfig) ports.ItemExecutor {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultItemTimeout
	}
	return &itemExecutor{
		pool:        cfg.Pool,
		allocations: cfg.Allocations,
		logger:      cfg.Logger,
		timeout:     cfg.Timeout,
	}
}

// Execute is total: every invocation yields an ItemResult, never a fault,
// so the runner can always make progress.
func (e *itemExecutor) Execute(ctx context.Context, kind domain.TaskKind, item domain.TaskItem) domain.ItemResult {
	result := domain.ItemResult{
		ServerID: item.ServerID,
		VMID:     item.VMID,
		Name:     item.Name,
	}

	client, err := e.pool.ClientFor(ctx, item.ServerID)
	if err != nil {
		e.logger.Warnw("item_server_unreachable", "server_id", item.ServerID, "vmid", item.VMID, "error", err)
		result.Message = "failed to connect to hypervisor server"
		return result
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err = e.invoke(opCtx, client, kind, item)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result.TimedOut = true
			result.Message = fmt.Sprintf("operation timed out after %s", e.timeout)
		} else {
			result.Message = err.Error()
		}
		e.logger.Warnw("item_operation_failed",
			"kind", kind, "server_id", item.ServerID, "vmid", item.VMID,
			"node", item.Node, "timed_out", result.TimedOut, "error", err)
		return result
	}

	result.Success = true
	result.Message = "OK"

	if kind == domain.TaskKindDelete {
		e.releaseAllocations(ctx, item)
	}
	return result
}

func (e *itemExecutor) invoke(ctx context.Context, client ports.HypervisorClient, kind domain.TaskKind, item domain.TaskItem) error {
	switch kind {
	case domain.TaskKindStart:
		return client.Start(ctx, item.Node, item.Kind, item.VMID)
	case domain.TaskKindStop:
		return client.Stop(ctx, item.Node, item.Kind, item.VMID)
	case domain.TaskKindShutdown:
		return client.Shutdown(ctx, item.Node, item.Kind, item.VMID)
	case domain.TaskKindRestart:
		return client.Restart(ctx, item.Node, item.Kind, item.VMID)
	case domain.TaskKindDelete:
		return client.Delete(ctx, item.Node, item.Kind, item.VMID)
	default:
		return fmt.Errorf("%w: %q", ErrTaskInvalidKind, kind)
	}
}

// releaseAllocations frees addresses tied to a deleted guest. Best-effort:
// a release failure never fails the item.
func (e *itemExecutor) releaseAllocations(ctx context.Context, item domain.TaskItem) {
	if e.allocations == nil {
		return
	}
	released, err := e.allocations.ReleaseForInstance(ctx, item.ServerID, item.VMID)
	if err != nil {
		e.logger.Warnw("item_release_allocations_failed",
			"server_id", item.ServerID, "vmid", item.VMID, "error", err)
		return
	}
	if released > 0 {
		e.logger.Infow("item_allocations_released",
			"server_id", item.ServerID, "vmid", item.VMID, "count", released)
	}
}
