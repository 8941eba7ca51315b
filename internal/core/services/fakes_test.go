package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// fakeTaskRepo is an in-memory TaskRepository with the same atomicity
// guarantees as the postgres implementation: claim, progress, finalize and
// cancel are all single guarded mutations under one lock.
type fakeTaskRepo struct {
	mu    sync.Mutex
	seq   uint
	tasks map[uint]*domain.BulkTask

	progressErr error
	createErr   error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uint]*domain.BulkTask)}
}

func (r *fakeTaskRepo) Create(_ context.Context, task *domain.BulkTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	task.ID = r.seq
	task.CreatedAt = time.Now().UTC()
	stored := cloneTask(task)
	r.tasks[task.ID] = &stored
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id uint) (*domain.BulkTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := cloneTask(task)
	return &copied, nil
}

func (r *fakeTaskRepo) ListByOwner(_ context.Context, ownerID uint, limit int) ([]domain.BulkTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tasks []domain.BulkTask
	for _, task := range r.tasks {
		if task.OwnerID == ownerID {
			tasks = append(tasks, cloneTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (r *fakeTaskRepo) ListActiveByOwner(_ context.Context, ownerID uint) ([]domain.BulkTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tasks []domain.BulkTask
	for _, task := range r.tasks {
		if task.OwnerID == ownerID && !task.Status.Terminal() {
			tasks = append(tasks, cloneTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (r *fakeTaskRepo) ClaimOldestPending(_ context.Context) (*domain.BulkTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.BulkTask
	for _, task := range r.tasks {
		if task.Status == domain.TaskStatusRunning {
			return nil, nil
		}
		if task.Status != domain.TaskStatusPending {
			continue
		}
		if oldest == nil || task.CreatedAt.Before(oldest.CreatedAt) ||
			(task.CreatedAt.Equal(oldest.CreatedAt) && task.ID < oldest.ID) {
			oldest = task
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Status = domain.TaskStatusRunning
	oldest.StartedAt = &now
	copied := cloneTask(oldest)
	return &copied, nil
}

func (r *fakeTaskRepo) SaveProgress(_ context.Context, id uint, completed, failed int, results domain.ItemResults) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progressErr != nil {
		return r.progressErr
	}
	task, ok := r.tasks[id]
	if !ok || task.Status != domain.TaskStatusRunning {
		return errors.New("task is no longer running")
	}
	if len(results) != completed+failed {
		return fmt.Errorf("torn progress update: %d results vs %d+%d counters", len(results), completed, failed)
	}
	task.CompletedItems = completed
	task.FailedItems = failed
	task.Results = append(domain.ItemResults(nil), results...)
	return nil
}

func (r *fakeTaskRepo) Finalize(_ context.Context, id uint, status domain.TaskStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.Status != domain.TaskStatusRunning {
		return errors.New("task is no longer running")
	}
	now := time.Now().UTC()
	task.Status = status
	task.ErrorMessage = errorMessage
	task.CompletedAt = &now
	return nil
}

func (r *fakeTaskRepo) CancelPending(_ context.Context, id uint, ownerID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID || task.Status != domain.TaskStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	task.Status = domain.TaskStatusCancelled
	task.CompletedAt = &now
	return true, nil
}

func (r *fakeTaskRepo) MarkInterrupted(_ context.Context, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for _, task := range r.tasks {
		if task.Status == domain.TaskStatusRunning {
			task.Status = domain.TaskStatusFailed
			task.ErrorMessage = message
			task.CompletedAt = &now
			count++
		}
	}
	return count, nil
}

func cloneTask(task *domain.BulkTask) domain.BulkTask {
	copied := *task
	copied.Items = append(domain.TaskItems(nil), task.Items...)
	copied.Results = append(domain.ItemResults(nil), task.Results...)
	return copied
}

// fakeHypervisorClient scripts per-vmid outcomes. A vmid present in failures
// errors out; a vmid present in hangs blocks until the context expires.
type fakeHypervisorClient struct {
	mu       sync.Mutex
	failures map[int]error
	hangs    map[int]bool
	calls    []string
}

func newFakeHypervisorClient() *fakeHypervisorClient {
	return &fakeHypervisorClient{
		failures: make(map[int]error),
		hangs:    make(map[int]bool),
	}
}

func (c *fakeHypervisorClient) op(ctx context.Context, name string, vmid int) error {
	c.mu.Lock()
	c.calls = append(c.calls, fmt.Sprintf("%s:%d", name, vmid))
	hang := c.hangs[vmid]
	err := c.failures[vmid]
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (c *fakeHypervisorClient) Start(ctx context.Context, _ string, _ domain.InstanceKind, vmid int) error {
	return c.op(ctx, "start", vmid)
}

func (c *fakeHypervisorClient) Stop(ctx context.Context, _ string, _ domain.InstanceKind, vmid int) error {
	return c.op(ctx, "stop", vmid)
}

func (c *fakeHypervisorClient) Shutdown(ctx context.Context, _ string, _ domain.InstanceKind, vmid int) error {
	return c.op(ctx, "shutdown", vmid)
}

func (c *fakeHypervisorClient) Restart(ctx context.Context, _ string, _ domain.InstanceKind, vmid int) error {
	return c.op(ctx, "restart", vmid)
}

func (c *fakeHypervisorClient) Delete(ctx context.Context, _ string, _ domain.InstanceKind, vmid int) error {
	return c.op(ctx, "delete", vmid)
}

type fakePool struct {
	client *fakeHypervisorClient
	err    error
}

func (p *fakePool) ClientFor(_ context.Context, _ uint) (ports.HypervisorClient, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

type fakeAllocations struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (a *fakeAllocations) ReleaseForInstance(_ context.Context, serverID uint, vmid int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	a.released = append(a.released, fmt.Sprintf("%d:%d", serverID, vmid))
	return 1, nil
}
