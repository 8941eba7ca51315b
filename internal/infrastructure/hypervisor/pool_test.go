package hypervisor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/pkg/utils/crypto"
)

const poolTestKey = "pool-master-key"

type fakeServerRepo struct {
	servers map[uint]*domain.HypervisorServer
}

func (r *fakeServerRepo) Create(_ context.Context, _ *domain.HypervisorServer) error { return nil }

func (r *fakeServerRepo) GetByID(_ context.Context, id uint) (*domain.HypervisorServer, error) {
	server, ok := r.servers[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *server
	return &copied, nil
}

func (r *fakeServerRepo) GetAll(_ context.Context) ([]domain.HypervisorServer, error) {
	return nil, nil
}

func (r *fakeServerRepo) Update(_ context.Context, _ *domain.HypervisorServer) error { return nil }
func (r *fakeServerRepo) Delete(_ context.Context, _ uint) error                     { return nil }

func newTestPool(t *testing.T, pve *fakePVE) (*Pool, *fakePVE) {
	t.Helper()
	server := httptest.NewTLSServer(pve)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(parsed.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	token, err := crypto.Encrypt("token-secret", poolTestKey)
	require.NoError(t, err)

	repo := &fakeServerRepo{servers: map[uint]*domain.HypervisorServer{
		1: {
			ID:         1,
			Name:       "pve-1",
			Hostname:   host,
			Port:       port,
			APIUser:    "root@pam",
			TokenName:  "panel",
			TokenValue: token,
		},
	}}

	return NewPool(PoolConfig{
		Servers:       repo,
		Logger:        &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
		EncryptionKey: poolTestKey,
	}), pve
}

func TestPoolReusesHealthyClient(t *testing.T) {
	pool, pve := newTestPool(t, &fakePVE{status: http.StatusOK, body: `{"data":{"version":"8.2"}}`})
	ctx := context.Background()

	first, err := pool.ClientFor(ctx, 1)
	require.NoError(t, err)

	second, err := pool.ClientFor(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// The cache hit went through a health probe, not straight to the map.
	assert.Equal(t, "/api2/json/version", pve.last().path)
}

func TestPoolRebuildsUnhealthyClient(t *testing.T) {
	pool, pve := newTestPool(t, &fakePVE{status: http.StatusOK, body: `{"data":{"version":"8.2"}}`})
	ctx := context.Background()

	first, err := pool.ClientFor(ctx, 1)
	require.NoError(t, err)

	pve.mu.Lock()
	pve.status = http.StatusInternalServerError
	pve.mu.Unlock()

	rebuilt, err := pool.ClientFor(ctx, 1)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
}

func TestPoolUnknownServer(t *testing.T) {
	pool, _ := newTestPool(t, &fakePVE{status: http.StatusOK, body: `{"data":null}`})

	_, err := pool.ClientFor(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPoolRejectsServerWithoutCredentials(t *testing.T) {
	repo := &fakeServerRepo{servers: map[uint]*domain.HypervisorServer{
		1: {ID: 1, Name: "pve-1", Hostname: "10.0.0.10"},
	}}
	pool := NewPool(PoolConfig{
		Servers:       repo,
		Logger:        &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
		EncryptionKey: poolTestKey,
	})

	_, err := pool.ClientFor(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable credentials")
}
