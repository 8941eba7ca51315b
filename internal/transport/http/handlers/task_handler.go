package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/core/services"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/internal/transport/http/dto"
)

type TaskHandler struct {
	queue  ports.QueueService
	logger *logger.Logger
}

func NewTaskHandler(queue ports.QueueService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{queue: queue, logger: logger}
}

// requestOwner extracts the authenticated user id set by the gateway.
func requestOwner(c *fiber.Ctx) (uint, error) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, errors.New("missing X-User-ID header")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid X-User-ID %q", raw)
	}
	return uint(id), nil
}

func (h *TaskHandler) CreateBulkOperation(c *fiber.Ctx) error {
	ownerID, err := requestOwner(c)
	if err != nil {
		h.logger.Warnw("bulk_operation_no_owner", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: "missing or invalid user identity",
		})
	}

	var req dto.BulkOperationRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("bulk_operation_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("bulk_operation_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.logger.Infow("bulk_operation_request",
		"owner_id", ownerID, "action", req.Action, "items", len(req.Items))
	task, err := h.queue.Enqueue(c.Context(), ports.EnqueueInput{
		OwnerID: ownerID,
		Kind:    domain.TaskKind(req.Action),
		Items:   req.ToItems(),
	})
	if err != nil {
		if errors.Is(err, services.ErrTaskInvalidKind) ||
			errors.Is(err, services.ErrTaskNoItems) ||
			errors.Is(err, services.ErrTaskInvalidItem) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("bulk_operation_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		Message: fmt.Sprintf("bulk operation queued: %d items", task.TotalItems),
	})
}

func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	ownerID, err := requestOwner(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: "missing or invalid user identity",
		})
	}

	limit := c.QueryInt("limit", 0)
	tasks, err := h.queue.ListForOwner(c.Context(), ownerID, limit)
	if err != nil {
		h.logger.Errorw("tasks_list_failed", "owner_id", ownerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(fiber.Map{"tasks": dto.TasksToResponse(tasks)})
}

func (h *TaskHandler) GetActiveTasks(c *fiber.Ctx) error {
	ownerID, err := requestOwner(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: "missing or invalid user identity",
		})
	}

	tasks, err := h.queue.ListActive(c.Context(), ownerID)
	if err != nil {
		h.logger.Errorw("tasks_active_list_failed", "owner_id", ownerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(fiber.Map{"tasks": dto.TasksToResponse(tasks)})
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	ownerID, err := requestOwner(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: "missing or invalid user identity",
		})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid task id",
		})
	}

	task, err := h.queue.Status(c.Context(), uint(id), ownerID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}

	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	ownerID, err := requestOwner(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: "missing or invalid user identity",
		})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid task id",
		})
	}

	if err := h.queue.Cancel(c.Context(), uint(id), ownerID); err != nil {
		if errors.Is(err, services.ErrTaskNotCancellable) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: "task cannot be cancelled (not found, not pending, or not yours)",
			})
		}
		h.logger.Errorw("task_cancel_failed", "task_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.SuccessResponse{Message: "task cancelled"})
}

// WatchTask streams task snapshots over a websocket until the task reaches a
// terminal status, replacing client-side polling of the status endpoint.
func (h *TaskHandler) WatchTask(c *websocket.Conn) {
	idStr := c.Params("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		h.logger.Warnw("task_watch_invalid_id", "id", idStr)
		c.WriteJSON(dto.ErrorResponse{Error: "invalid task id"})
		c.Close()
		return
	}

	ownerStr := c.Query("user_id")
	if ownerStr == "" {
		ownerStr = c.Headers("X-User-ID")
	}
	owner, err := strconv.ParseUint(ownerStr, 10, 32)
	if err != nil || owner == 0 {
		h.logger.Warnw("task_watch_no_owner", "task_id", id)
		c.WriteJSON(dto.ErrorResponse{Error: "missing or invalid user identity"})
		c.Close()
		return
	}

	h.logger.Infow("task_watch_started", "task_id", id, "owner_id", owner)
	defer c.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := h.queue.Status(context.Background(), uint(id), uint(owner))
		if err != nil {
			c.WriteJSON(dto.ErrorResponse{Error: "task not found"})
			return
		}

		if err := c.WriteJSON(dto.TaskToResponse(task)); err != nil {
			h.logger.Warnw("task_watch_write_failed", "task_id", id, "error", err)
			return
		}

		if task.Status.Terminal() {
			h.logger.Infow("task_watch_finished", "task_id", id, "status", task.Status)
			return
		}

		<-ticker.C
	}
}
