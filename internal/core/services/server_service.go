package services

import (
	"context"
	"fmt"

	"github.com/virtpanel/backend/internal/core/ports"
	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/pkg/utils/crypto"
)

type serverService struct {
	repo          ports.ServerRepository
	logger        *logger.Logger
	encryptionKey string
}

type ServerServiceConfig struct {
	Repository    ports.ServerRepository
	Logger        *logger.Logger
	EncryptionKey string
}

func NewServerService(cfg ServerServiceConfig) ports.ServerService {
	return &serverService{
		repo:          cfg.Repository,
		logger:        cfg.Logger,
		encryptionKey: cfg.EncryptionKey,
	}
}

func (s *serverService) RegisterServer(ctx context.Context, input ports.RegisterServerInput) (*domain.HypervisorServer, error) {
	if input.Name == "" || input.Hostname == "" {
		return nil, fmt.Errorf("%w: name and hostname are required", ErrServerInvalidInput)
	}
	if input.TokenValue == "" && input.Password == "" {
		return nil, fmt.Errorf("%w", ErrServerNoCredentials)
	}

	apiUser := input.APIUser
	if apiUser == "" {
		apiUser = "root@pam"
	}
	port := input.Port
	if port == 0 {
		port = 8006
	}

	sshPort := input.SSHPort
	if input.SSHKey != "" && sshPort == 0 {
		sshPort = 22
	}

	server := &domain.HypervisorServer{
		Name:        input.Name,
		Hostname:    input.Hostname,
		Port:        port,
		APIUser:     apiUser,
		TokenName:   input.TokenName,
		UsePassword: input.Password != "",
		VerifySSL:   input.VerifySSL,
		SSHPort:     sshPort,
		SSHUser:     input.SSHUser,
	}

	// Credentials live encrypted at rest.
	if input.TokenValue != "" {
		encrypted, err := crypto.Encrypt(input.TokenValue, s.encryptionKey)
		if err != nil {
			s.logger.Errorw("server_token_encrypt_failed", "error", err)
			return nil, err
		}
		server.TokenValue = encrypted
	}
	if input.Password != "" {
		encrypted, err := crypto.Encrypt(input.Password, s.encryptionKey)
		if err != nil {
			s.logger.Errorw("server_password_encrypt_failed", "error", err)
			return nil, err
		}
		server.Password = encrypted
	}
	if input.SSHKey != "" {
		if input.SSHUser == "" {
			return nil, fmt.Errorf("%w: ssh key requires an ssh user", ErrServerInvalidInput)
		}
		encrypted, err := crypto.Encrypt(input.SSHKey, s.encryptionKey)
		if err != nil {
			s.logger.Errorw("server_ssh_key_encrypt_failed", "error", err)
			return nil, err
		}
		server.SSHKey = encrypted
	}

	if err := s.repo.Create(ctx, server); err != nil {
		s.logger.Errorw("server_register_failed", "hostname", input.Hostname, "error", err)
		return nil, err
	}

	s.logger.Infow("server_registered", "id", server.ID, "hostname", server.Hostname)
	return server, nil
}

func (s *serverService) GetServers(ctx context.Context) ([]domain.HypervisorServer, error) {
	return s.repo.GetAll(ctx)
}

func (s *serverService) GetServerByID(ctx context.Context, id uint) (*domain.HypervisorServer, error) {
	server, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrServerNotFound
	}
	return server, nil
}

func (s *serverService) DeleteServer(ctx context.Context, id uint) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return ErrServerNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Errorw("server_delete_failed", "id", id, "error", err)
		return err
	}
	s.logger.Infow("server_deleted", "id", id)
	return nil
}
