package dto

import (
	"fmt"
	"time"

	"github.com/virtpanel/backend/internal/domain"
)

type BulkOperationItem struct {
	ServerID uint   `json:"server_id"`
	VMID     int    `json:"vmid"`
	VMType   string `json:"vm_type"`
	Node     string `json:"node"`
	Name     string `json:"name"`
}

type BulkOperationRequest struct {
	Action string              `json:"action"`
	Items  []BulkOperationItem `json:"items"`
}

func (r *BulkOperationRequest) Validate() []string {
	var errors []string

	if !domain.TaskKind(r.Action).Valid() {
		errors = append(errors, "action must be one of: start, stop, restart, shutdown, delete")
	}

	if len(r.Items) == 0 {
		errors = append(errors, "no items selected")
	}

	for i, item := range r.Items {
		if item.ServerID == 0 {
			errors = append(errors, fmt.Sprintf("items[%d]: server_id is required", i))
		}
		if item.VMID <= 0 {
			errors = append(errors, fmt.Sprintf("items[%d]: vmid is required", i))
		}
		if !domain.InstanceKind(item.VMType).Valid() {
			errors = append(errors, fmt.Sprintf("items[%d]: vm_type must be qemu or lxc", i))
		}
		if item.Node == "" {
			errors = append(errors, fmt.Sprintf("items[%d]: node is required", i))
		}
	}

	return errors
}

func (r *BulkOperationRequest) ToItems() []domain.TaskItem {
	items := make([]domain.TaskItem, len(r.Items))
	for i, item := range r.Items {
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", item.VMType, item.VMID)
		}
		items[i] = domain.TaskItem{
			ServerID: item.ServerID,
			VMID:     item.VMID,
			Kind:     domain.InstanceKind(item.VMType),
			Node:     item.Node,
			Name:     name,
		}
	}
	return items
}

type EnqueueResponse struct {
	TaskID  uint              `json:"task_id"`
	Status  domain.TaskStatus `json:"status"`
	Message string            `json:"message"`
}

type TaskResponse struct {
	ID             uint               `json:"id"`
	Kind           domain.TaskKind    `json:"kind"`
	Status         domain.TaskStatus  `json:"status"`
	TotalItems     int                `json:"total_items"`
	CompletedItems int                `json:"completed_items"`
	FailedItems    int                `json:"failed_items"`
	Items          domain.TaskItems   `json:"items"`
	Results        domain.ItemResults `json:"results"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

func TaskToResponse(task *domain.BulkTask) TaskResponse {
	results := task.Results
	if results == nil {
		results = domain.ItemResults{}
	}
	return TaskResponse{
		ID:             task.ID,
		Kind:           task.Kind,
		Status:         task.Status,
		TotalItems:     task.TotalItems,
		CompletedItems: task.CompletedItems,
		FailedItems:    task.FailedItems,
		Items:          task.Items,
		Results:        results,
		ErrorMessage:   task.ErrorMessage,
		CreatedAt:      task.CreatedAt,
		StartedAt:      task.StartedAt,
		CompletedAt:    task.CompletedAt,
	}
}

func TasksToResponse(tasks []domain.BulkTask) []TaskResponse {
	responses := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = TaskToResponse(&task)
	}
	return responses
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}
