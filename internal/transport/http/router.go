package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/virtpanel/backend/internal/config"
	"github.com/virtpanel/backend/internal/core/services"
	"github.com/virtpanel/backend/internal/infrastructure/db"
	"github.com/virtpanel/backend/internal/infrastructure/hypervisor"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/internal/transport/http/handlers"
	httpmw "github.com/virtpanel/backend/internal/transport/http/middleware"
	"gorm.io/gorm"
)

type RouterConfig struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Config *config.Config
}

// SetupRoutes wires repositories, services and handlers, and returns the
// queue dispatcher for the caller to start and stop.
func SetupRoutes(app *fiber.App, cfg RouterConfig) *services.Dispatcher {
	// Repositories
	taskRepo := db.NewTaskRepository(cfg.DB, cfg.Logger)
	serverRepo := db.NewServerRepository(cfg.DB, cfg.Logger)
	allocationRepo := db.NewAllocationRepository(cfg.DB, cfg.Logger)

	// Hypervisor access
	pool := hypervisor.NewPool(hypervisor.PoolConfig{
		Servers:        serverRepo,
		Logger:         cfg.Logger,
		EncryptionKey:  cfg.Config.Security.EncryptionKey,
		ConnectTimeout: cfg.Config.Hypervisor.ConnectTimeout,
	})

	// Services
	allocationService := services.NewAllocationService(services.AllocationServiceConfig{
		Repository: allocationRepo,
		Logger:     cfg.Logger,
	})

	executor := services.NewItemExecutor(services.ItemExecutorConfig{
		Pool:        pool,
		Allocations: allocationService,
		Logger:      cfg.Logger,
		Timeout:     cfg.Config.Queue.ItemTimeout,
	})

	runner := services.NewTaskRunner(services.TaskRunnerConfig{
		Repository: taskRepo,
		Executor:   executor,
		Logger:     cfg.Logger,
	})

	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		Repository:   taskRepo,
		Runner:       runner,
		Logger:       cfg.Logger,
		PollInterval: cfg.Config.Queue.PollInterval,
	})

	queueService := services.NewQueueService(services.QueueServiceConfig{
		Repository: taskRepo,
		Logger:     cfg.Logger,
	})

	serverService := services.NewServerService(services.ServerServiceConfig{
		Repository:    serverRepo,
		Logger:        cfg.Logger,
		EncryptionKey: cfg.Config.Security.EncryptionKey,
	})

	// Handlers
	taskHandler := handlers.NewTaskHandler(queueService, cfg.Logger)
	serverHandler := handlers.NewServerHandler(serverService, cfg.Logger)

	api := app.Group("/api", httpmw.AdminAuth(cfg.Config))

	api.Post("/bulk-operation", taskHandler.CreateBulkOperation)
	api.Get("/tasks", taskHandler.GetTasks)
	api.Get("/tasks/active", taskHandler.GetActiveTasks)
	api.Get("/tasks/:id", taskHandler.GetTask)
	api.Post("/tasks/:id/cancel", taskHandler.CancelTask)
	api.Get("/tasks/:id/watch", websocket.New(taskHandler.WatchTask))

	api.Post("/servers", serverHandler.RegisterServer)
	api.Get("/servers", serverHandler.GetServers)
	api.Get("/servers/:id", serverHandler.GetServer)
	api.Delete("/servers/:id", serverHandler.DeleteServer)

	return dispatcher
}
