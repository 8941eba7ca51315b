package dto

import (
	"time"

	"github.com/virtpanel/backend/internal/domain"
)

type RegisterServerRequest struct {
	Name       string `json:"name"`
	Hostname   string `json:"hostname"`
	Port       int    `json:"port"`
	APIUser    string `json:"api_user"`
	TokenName  string `json:"token_name,omitempty"`
	TokenValue string `json:"token_value,omitempty"`
	Password   string `json:"password,omitempty"`
	VerifySSL  bool   `json:"verify_ssl"`

	// Node SSH access for the force-stop fallback. The key is stored
	// encrypted and never echoed back.
	SSHPort int    `json:"ssh_port,omitempty"`
	SSHUser string `json:"ssh_user,omitempty"`
	SSHKey  string `json:"ssh_key,omitempty"`
}

func (r *RegisterServerRequest) Validate() []string {
	var errors []string

	if r.Name == "" {
		errors = append(errors, "name is required")
	}
	if r.Hostname == "" {
		errors = append(errors, "hostname is required")
	}
	if r.TokenValue == "" && r.Password == "" {
		errors = append(errors, "either token_value or password is required")
	}
	if r.TokenValue != "" && r.TokenName == "" {
		errors = append(errors, "token_name is required with token_value")
	}
	if r.SSHKey != "" && r.SSHUser == "" {
		errors = append(errors, "ssh_user is required with ssh_key")
	}

	return errors
}

// ServerResponse never carries credentials.
type ServerResponse struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	Hostname  string     `json:"hostname"`
	Port      int        `json:"port"`
	APIUser   string     `json:"api_user"`
	TokenName string     `json:"token_name,omitempty"`
	VerifySSL bool       `json:"verify_ssl"`
	IsOnline  *bool      `json:"is_online,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastCheck *time.Time `json:"last_check,omitempty"`
}

func ServerToResponse(server *domain.HypervisorServer) ServerResponse {
	return ServerResponse{
		ID:        server.ID,
		Name:      server.Name,
		Hostname:  server.Hostname,
		Port:      server.Port,
		APIUser:   server.APIUser,
		TokenName: server.TokenName,
		VerifySSL: server.VerifySSL,
		IsOnline:  server.IsOnline,
		LastError: server.LastError,
		CreatedAt: server.CreatedAt,
		LastCheck: server.LastCheck,
	}
}

func ServersToResponse(servers []domain.HypervisorServer) []ServerResponse {
	responses := make([]ServerResponse, len(servers))
	for i, server := range servers {
		responses[i] = ServerToResponse(&server)
	}
	return responses
}
