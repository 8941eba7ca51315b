package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpanel/backend/internal/domain"
)

func TestRegisterServerRequestValidate(t *testing.T) {
	valid := RegisterServerRequest{
		Name:       "pve-1",
		Hostname:   "10.0.0.10",
		TokenName:  "panel",
		TokenValue: "secret",
	}
	assert.Empty(t, valid.Validate())

	cases := []struct {
		name    string
		mutate  func(r *RegisterServerRequest)
		message string
	}{
		{
			"missing name",
			func(r *RegisterServerRequest) { r.Name = "" },
			"name is required",
		},
		{
			"missing hostname",
			func(r *RegisterServerRequest) { r.Hostname = "" },
			"hostname is required",
		},
		{
			"no credentials",
			func(r *RegisterServerRequest) { r.TokenValue = "" },
			"either token_value or password is required",
		},
		{
			"token without name",
			func(r *RegisterServerRequest) { r.TokenName = "" },
			"token_name is required with token_value",
		},
		{
			"ssh key without user",
			func(r *RegisterServerRequest) { r.SSHKey = "some-key" },
			"ssh_user is required with ssh_key",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			problems := req.Validate()
			require.NotEmpty(t, problems)
			assert.Contains(t, problems[0], tc.message)
		})
	}
}

func TestServerResponseCarriesNoSecrets(t *testing.T) {
	server := &domain.HypervisorServer{
		ID:         1,
		Name:       "pve-1",
		Hostname:   "10.0.0.10",
		TokenName:  "panel",
		TokenValue: "encrypted-token",
		Password:   "encrypted-password",
		SSHUser:    "root",
		SSHKey:     "encrypted-ssh-key",
	}

	raw, err := json.Marshal(ServerToResponse(server))
	require.NoError(t, err)

	body := string(raw)
	assert.NotContains(t, body, "encrypted-token")
	assert.NotContains(t, body, "encrypted-password")
	assert.NotContains(t, body, "encrypted-ssh-key")
}
