package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ==================== ENUMS ====================

// TaskKind is the bulk action applied to every item of a task.
type TaskKind string

const (
	TaskKindStart    TaskKind = "start"
	TaskKindStop     TaskKind = "stop"
	TaskKindRestart  TaskKind = "restart"
	TaskKindShutdown TaskKind = "shutdown"
	TaskKindDelete   TaskKind = "delete"
)

func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindStart, TaskKindStop, TaskKindRestart, TaskKindShutdown, TaskKindDelete:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusPending             TaskStatus = "pending"
	TaskStatusRunning             TaskStatus = "running"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusCompletedWithErrors TaskStatus = "completed_with_errors"
	TaskStatusFailed              TaskStatus = "failed"
	TaskStatusCancelled           TaskStatus = "cancelled"
)

// Terminal reports whether the task record is immutable from now on.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCompletedWithErrors, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

type InstanceKind string

const (
	InstanceKindVM        InstanceKind = "qemu"
	InstanceKindContainer InstanceKind = "lxc"
)

func (k InstanceKind) Valid() bool {
	return k == InstanceKindVM || k == InstanceKindContainer
}

// ==================== TASK PAYLOADS ====================

// TaskItem identifies one guest targeted by a bulk task. Items are fixed at
// enqueue time and never mutated.
type TaskItem struct {
	ServerID uint         `json:"server_id"`
	VMID     int          `json:"vmid"`
	Kind     InstanceKind `json:"vm_type"`
	Node     string       `json:"node"`
	Name     string       `json:"name"`
}

// ItemResult records the outcome of exactly one TaskItem. Results are
// appended in item order, one per item, only by the task runner.
type ItemResult struct {
	ServerID uint   `json:"server_id"`
	VMID     int    `json:"vmid"`
	Name     string `json:"name"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type TaskItems []TaskItem

func (t TaskItems) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *TaskItems) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan TaskItems: invalid type")
	}
	return json.Unmarshal(bytes, t)
}

type ItemResults []ItemResult

func (r ItemResults) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *ItemResults) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan ItemResults: invalid type")
	}
	return json.Unmarshal(bytes, r)
}

// ==================== AGGREGATE ====================

// BulkTask is one bulk-operation request over one or more guests. Mutated
// only by the dispatcher (claim) and the task runner (progress, finalize);
// a pending task may additionally be cancelled by its owner.
type BulkTask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind    TaskKind   `gorm:"size:20;not null;index" json:"kind"`
	Status  TaskStatus `gorm:"size:30;not null;default:'pending';index" json:"status"`
	OwnerID uint       `gorm:"not null;index" json:"owner_id"`

	TotalItems     int `gorm:"not null;default:0" json:"total_items"`
	CompletedItems int `gorm:"not null;default:0" json:"completed_items"`
	FailedItems    int `gorm:"not null;default:0" json:"failed_items"`

	Items   TaskItems   `gorm:"type:jsonb;not null" json:"items"`
	Results ItemResults `gorm:"type:jsonb" json:"results"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (BulkTask) TableName() string {
	return "task_queue"
}
