package hypervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/pkg/utils/crypto"
)

// Pool caches one API client per registered server so sequential items
// against the same server reuse connections and ticket logins. Cached
// clients are health-checked on access and rebuilt when they stop answering.
type Pool struct {
	servers       ports.ServerRepository
	logger        *logger.Logger
	encryptionKey string
	timeout       time.Duration

	mu      sync.Mutex
	clients map[uint]*Client
}

type PoolConfig struct {
	Servers        ports.ServerRepository
	Logger         *logger.Logger
	EncryptionKey  string
	ConnectTimeout time.Duration
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Pool{
		servers:       cfg.Servers,
		logger:        cfg.Logger,
		encryptionKey: cfg.EncryptionKey,
		timeout:       cfg.ConnectTimeout,
		clients:       make(map[uint]*Client),
	}
}

func (p *Pool) ClientFor(ctx context.Context, serverID uint) (ports.HypervisorClient, error) {
	p.mu.Lock()
	client, ok := p.clients[serverID]
	p.mu.Unlock()
	if ok {
		// A cached client that no longer answers (node restarted, credentials
		// rotated) is dropped and rebuilt from stored credentials.
		err := client.Ping(ctx)
		if err == nil {
			return client, nil
		}
		p.logger.Warnw("hypervisor_client_unhealthy", "server_id", serverID, "error", err)
		p.Invalidate(serverID)
	}

	server, err := p.servers.GetByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("hypervisor server %d not found: %w", serverID, err)
	}

	client, err = p.build(server)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.clients[serverID] = client
	p.mu.Unlock()

	p.logger.Infow("hypervisor_client_created", "server_id", serverID, "host", server.Address())
	return client, nil
}

// Invalidate drops the cached client for a server, forcing a rebuild with
// fresh credentials on next use.
func (p *Pool) Invalidate(serverID uint) {
	p.mu.Lock()
	delete(p.clients, serverID)
	p.mu.Unlock()
}

func (p *Pool) build(server *domain.HypervisorServer) (*Client, error) {
	cfg := ClientConfig{
		Host:      server.Address(),
		APIUser:   server.APIUser,
		VerifySSL: server.VerifySSL,
		Timeout:   p.timeout,
		Logger:    p.logger,
		SSHPort:   server.SSHPort,
		SSHUser:   server.SSHUser,
	}

	switch {
	case server.UsePassword && server.Password != "":
		password, err := crypto.Decrypt(server.Password, p.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt server %d password: %w", server.ID, err)
		}
		cfg.Password = password
	case server.TokenName != "" && server.TokenValue != "":
		token, err := crypto.Decrypt(server.TokenValue, p.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt server %d token: %w", server.ID, err)
		}
		cfg.TokenName = server.TokenName
		cfg.TokenValue = token
	default:
		return nil, fmt.Errorf("hypervisor server %d has no usable credentials", server.ID)
	}

	if server.SSHKey != "" {
		sshKey, err := crypto.Decrypt(server.SSHKey, p.encryptionKey)
		if err != nil {
			p.logger.Warnw("hypervisor_ssh_key_decrypt_failed", "server_id", server.ID, "error", err)
		} else {
			cfg.SSHKey = sshKey
		}
	}

	return NewClient(cfg), nil
}
