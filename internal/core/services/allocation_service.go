package services

import (
	"context"
	"fmt"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

type allocationService struct {
	repo   ports.AllocationRepository
	logger *logger.Logger
}

type AllocationServiceConfig struct {
	Repository ports.AllocationRepository
	Logger     *logger.Logger
}

func NewAllocationService(cfg AllocationServiceConfig) ports.AllocationService {
	return &allocationService{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// ReleaseForInstance frees every in-use address tied to a deleted guest and
// returns how many were released.
func (s *allocationService) ReleaseForInstance(ctx context.Context, serverID uint, vmid int) (int, error) {
	allocations, err := s.repo.GetInUseByInstance(ctx, serverID, vmid)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocationRelease, err)
	}

	releasedBy := fmt.Sprintf("bulk_delete:server=%d,vmid=%d", serverID, vmid)
	released := 0
	for _, alloc := range allocations {
		if err := s.repo.Release(ctx, alloc.ID, releasedBy); err != nil {
			s.logger.Warnw("allocation_release_failed",
				"allocation_id", alloc.ID, "ip", alloc.IPAddress, "error", err)
			continue
		}
		released++
		s.logger.Infow("allocation_released",
			"allocation_id", alloc.ID, "ip", alloc.IPAddress, "server_id", serverID, "vmid", vmid)
	}
	return released, nil
}
