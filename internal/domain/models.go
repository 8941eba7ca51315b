package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ==================== ENTITIES ====================

// HypervisorServer is one registered Proxmox VE endpoint. Token and password
// values are AES-GCM encrypted before they reach this struct.
type HypervisorServer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string `gorm:"size:100;not null" json:"name"`
	Hostname string `gorm:"size:255;not null;index" json:"hostname"`
	Port     int    `gorm:"default:8006" json:"port"`

	// API token auth (preferred)
	APIUser    string `gorm:"size:100;not null;default:'root@pam'" json:"api_user"`
	TokenName  string `gorm:"size:100" json:"token_name,omitempty"`
	TokenValue string `gorm:"size:512" json:"-"`

	// Password auth fallback
	UsePassword bool   `gorm:"default:false" json:"use_password"`
	Password    string `gorm:"size:512" json:"-"`

	VerifySSL bool `gorm:"default:false" json:"verify_ssl"`

	// Optional node SSH access for the force-stop fallback
	SSHPort int    `gorm:"default:22" json:"ssh_port,omitempty"`
	SSHUser string `gorm:"size:100" json:"ssh_user,omitempty"`
	SSHKey  string `gorm:"type:text" json:"-"`

	IsOnline  *bool      `json:"is_online,omitempty"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	LastCheck *time.Time `json:"last_check,omitempty"`
}

// Address returns host:port for API calls.
func (s *HypervisorServer) Address() string {
	port := s.Port
	if port == 0 {
		port = 8006
	}
	return fmt.Sprintf("%s:%d", s.Hostname, port)
}

// ==================== RESOURCE MANAGEMENT ====================

// IPAllocation tracks an address handed to a guest. Released best-effort
// when the guest is deleted through a bulk task.
type IPAllocation struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ServerID   uint       `gorm:"not null;index" json:"server_id"`
	VMID       int        `gorm:"not null;index" json:"vmid"`
	IPAddress  string     `gorm:"size:45;not null;index" json:"ip_address"`
	IPVersion  int        `gorm:"default:4" json:"ip_version"`
	InUse      bool       `gorm:"default:true" json:"in_use"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	ReleasedBy string     `gorm:"size:100" json:"released_by,omitempty"`
}

func (IPAllocation) TableName() string {
	return "ip_allocations"
}

func (HypervisorServer) TableName() string {
	return "hypervisor_servers"
}
