package db

import (
	"context"
	"time"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type allocationRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAllocationRepository(db *gorm.DB, log *logger.Logger) ports.AllocationRepository {
	return &allocationRepository{db: db, log: log}
}

func (r *allocationRepository) GetInUseByInstance(ctx context.Context, serverID uint, vmid int) ([]domain.IPAllocation, error) {
	var allocations []domain.IPAllocation
	if err := r.db.WithContext(ctx).
		Where("server_id = ? AND vmid = ? AND in_use = ?", serverID, vmid, true).
		Find(&allocations).Error; err != nil {
		r.log.Errorw("allocation_repo_list_failed", "server_id", serverID, "vmid", vmid, "error", err)
		return nil, err
	}
	return allocations, nil
}

func (r *allocationRepository) Release(ctx context.Context, id uint, releasedBy string) error {
	now := time.Now().UTC()
	if err := r.db.WithContext(ctx).
		Model(&domain.IPAllocation{}).
		Where("id = ? AND in_use = ?", id, true).
		Updates(map[string]interface{}{
			"in_use":      false,
			"released_at": now,
			"released_by": releasedBy,
		}).Error; err != nil {
		r.log.Errorw("allocation_repo_release_failed", "id", id, "error", err)
		return err
	}
	r.log.Infow("allocation_repo_release_ok", "id", id, "released_by", releasedBy)
	return nil
}
