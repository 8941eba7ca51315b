package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/core/services"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/internal/transport/http/dto"
)

type ServerHandler struct {
	service ports.ServerService
	logger  *logger.Logger
}

func NewServerHandler(service ports.ServerService, logger *logger.Logger) *ServerHandler {
	return &ServerHandler{service: service, logger: logger}
}

func (h *ServerHandler) RegisterServer(c *fiber.Ctx) error {
	var req dto.RegisterServerRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("server_register_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("server_register_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	server, err := h.service.RegisterServer(c.Context(), ports.RegisterServerInput{
		Name:       req.Name,
		Hostname:   req.Hostname,
		Port:       req.Port,
		APIUser:    req.APIUser,
		TokenName:  req.TokenName,
		TokenValue: req.TokenValue,
		Password:   req.Password,
		VerifySSL:  req.VerifySSL,
		SSHPort:    req.SSHPort,
		SSHUser:    req.SSHUser,
		SSHKey:     req.SSHKey,
	})
	if err != nil {
		if errors.Is(err, services.ErrServerInvalidInput) || errors.Is(err, services.ErrServerNoCredentials) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("server_register_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ServerToResponse(server))
}

func (h *ServerHandler) GetServers(c *fiber.Ctx) error {
	servers, err := h.service.GetServers(c.Context())
	if err != nil {
		h.logger.Errorw("servers_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.ServersToResponse(servers))
}

func (h *ServerHandler) GetServer(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid server id",
		})
	}

	server, err := h.service.GetServerByID(c.Context(), uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "server not found",
		})
	}
	return c.JSON(dto.ServerToResponse(server))
}

func (h *ServerHandler) DeleteServer(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid server id",
		})
	}

	if err := h.service.DeleteServer(c.Context(), uint(id)); err != nil {
		if errors.Is(err, services.ErrServerNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "server not found",
			})
		}
		h.logger.Errorw("server_delete_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.SuccessResponse{Message: "server deleted"})
}
