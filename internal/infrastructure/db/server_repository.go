package db

import (
	"context"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type serverRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewServerRepository(db *gorm.DB, log *logger.Logger) ports.ServerRepository {
	return &serverRepository{db: db, log: log}
}

func (r *serverRepository) Create(ctx context.Context, server *domain.HypervisorServer) error {
	if err := r.db.WithContext(ctx).Create(server).Error; err != nil {
		r.log.Errorw("server_repo_create_failed", "hostname", server.Hostname, "error", err)
		return err
	}
	r.log.Infow("server_repo_create_ok", "id", server.ID, "hostname", server.Hostname)
	return nil
}

func (r *serverRepository) GetByID(ctx context.Context, id uint) (*domain.HypervisorServer, error) {
	var server domain.HypervisorServer
	if err := r.db.WithContext(ctx).First(&server, id).Error; err != nil {
		r.log.Errorw("server_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &server, nil
}

func (r *serverRepository) GetAll(ctx context.Context) ([]domain.HypervisorServer, error) {
	var servers []domain.HypervisorServer
	if err := r.db.WithContext(ctx).Find(&servers).Error; err != nil {
		r.log.Errorw("server_repo_list_failed", "error", err)
		return nil, err
	}
	return servers, nil
}

func (r *serverRepository) Update(ctx context.Context, server *domain.HypervisorServer) error {
	if err := r.db.WithContext(ctx).Save(server).Error; err != nil {
		r.log.Errorw("server_repo_update_failed", "id", server.ID, "error", err)
		return err
	}
	return nil
}

func (r *serverRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.HypervisorServer{}, id).Error; err != nil {
		r.log.Errorw("server_repo_delete_failed", "id", id, "error", err)
		return err
	}
	r.log.Infow("server_repo_delete_ok", "id", id)
	return nil
}
