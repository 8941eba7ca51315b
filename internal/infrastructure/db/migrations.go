package db

import (
	"github.com/virtpanel/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	// AutoMigrate all models
	err := db.AutoMigrate(
		&domain.BulkTask{},
		&domain.HypervisorServer{},
		&domain.IPAllocation{},
	)
	if err != nil {
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		return err
	}

	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	// The dispatcher's claim query scans pending rows oldest-first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_task_queue_pending
		ON task_queue (created_at)
		WHERE status = 'pending'
	`).Error; err != nil {
		return err
	}

	// Allocation release looks up in-use rows per guest.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ip_allocations_instance
		ON ip_allocations (server_id, vmid)
		WHERE in_use AND deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	return nil
}
