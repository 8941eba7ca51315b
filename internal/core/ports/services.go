package ports

import (
	"context"

	"github.com/virtpanel/backend/internal/domain"
)

// QueueService is the task queue facade. Authorization happens upstream; the
// owner id handed in here is already authenticated.
type QueueService interface {
	Enqueue(ctx context.Context, input EnqueueInput) (*domain.BulkTask, error)
	Status(ctx context.Context, id uint, ownerID uint) (*domain.BulkTask, error)
	ListForOwner(ctx context.Context, ownerID uint, limit int) ([]domain.BulkTask, error)
	ListActive(ctx context.Context, ownerID uint) ([]domain.BulkTask, error)
	Cancel(ctx context.Context, id uint, ownerID uint) error
}

type EnqueueInput struct {
	OwnerID uint
	Kind    domain.TaskKind
	Items   []domain.TaskItem
}

// HypervisorClient performs one remote action on one guest. Every call is
// bounded by the caller's context; a returned UPID means the control plane
// accepted the operation.
type HypervisorClient interface {
	Start(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error
	Stop(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error
	Shutdown(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error
	Restart(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error
	Delete(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error
}

// HypervisorPool hands out a client for a registered server, caching
// connections across items of the same task.
type HypervisorPool interface {
	ClientFor(ctx context.Context, serverID uint) (HypervisorClient, error)
}

// ItemExecutor converts one task item into exactly one result. It never
// returns an error: remote faults, timeouts and connection failures all
// land in the result record.
type ItemExecutor interface {
	Execute(ctx context.Context, kind domain.TaskKind, item domain.TaskItem) domain.ItemResult
}

// TaskRunner executes every item of one claimed task sequentially and
// finalizes its status.
type TaskRunner interface {
	Run(ctx context.Context, task *domain.BulkTask)
}

// AllocationService releases dependent resource reservations for a deleted
// guest. Best-effort: callers log failures and move on.
type AllocationService interface {
	ReleaseForInstance(ctx context.Context, serverID uint, vmid int) (int, error)
}

type ServerService interface {
	RegisterServer(ctx context.Context, input RegisterServerInput) (*domain.HypervisorServer, error)
	GetServers(ctx context.Context) ([]domain.HypervisorServer, error)
	GetServerByID(ctx context.Context, id uint) (*domain.HypervisorServer, error)
	DeleteServer(ctx context.Context, id uint) error
}

type RegisterServerInput struct {
	Name       string
	Hostname   string
	Port       int
	APIUser    string
	TokenName  string
	TokenValue string
	Password   string
	VerifySSL  bool

	// Optional node SSH access, enabling the force-stop fallback for guests
	// the API refuses to stop.
	SSHPort int
	SSHUser string
	SSHKey  string
}
