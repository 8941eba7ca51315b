package hypervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	auth   string
	cookie string
	csrf   string
}

type fakePVE struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func newFakePVE(t *testing.T, status int, body string) (*fakePVE, *Client) {
	t.Helper()
	pve := &fakePVE{status: status, body: body}
	server := httptest.NewTLSServer(pve)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := NewClient(ClientConfig{
		Host:       parsed.Host,
		APIUser:    "root@pam",
		TokenName:  "panel",
		TokenValue: "token-secret",
		VerifySSL:  false,
		Logger:     &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
	})
	return pve, client
}

func (p *fakePVE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	record := recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		auth:   r.Header.Get("Authorization"),
		csrf:   r.Header.Get("CSRFPreventionToken"),
	}
	if cookie, err := r.Cookie("PVEAuthCookie"); err == nil {
		record.cookie = cookie.Value
	}
	p.requests = append(p.requests, record)
	status, body := p.status, p.body
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (p *fakePVE) last() recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func TestClientStartUsesStatusEndpointWithTokenAuth(t *testing.T) {
	pve, client := newFakePVE(t, http.StatusOK, `{"data":"UPID:pve1:0001"}`)

	err := client.Start(context.Background(), "pve1", domain.InstanceKindVM, 100)
	require.NoError(t, err)

	got := pve.last()
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/100/status/start", got.path)
	assert.Equal(t, "PVEAPIToken=root@pam!panel=token-secret", got.auth)
}

func TestClientOperationPaths(t *testing.T) {
	pve, client := newFakePVE(t, http.StatusOK, `{"data":"UPID:pve1:0001"}`)
	ctx := context.Background()

	require.NoError(t, client.Shutdown(ctx, "pve1", domain.InstanceKindVM, 100))
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/100/status/shutdown", pve.last().path)

	require.NoError(t, client.Restart(ctx, "pve1", domain.InstanceKindContainer, 200))
	assert.Equal(t, "/api2/json/nodes/pve1/lxc/200/status/reboot", pve.last().path)

	require.NoError(t, client.Stop(ctx, "pve2", domain.InstanceKindVM, 300))
	assert.Equal(t, "/api2/json/nodes/pve2/qemu/300/status/stop", pve.last().path)
}

func TestClientDeletePurges(t *testing.T) {
	pve, client := newFakePVE(t, http.StatusOK, `{"data":"UPID:pve1:0002"}`)

	err := client.Delete(context.Background(), "pve1", domain.InstanceKindContainer, 200)
	require.NoError(t, err)

	got := pve.last()
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/api2/json/nodes/pve1/lxc/200", got.path)
	assert.Equal(t, "1", got.query.Get("purge"))
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	_, client := newFakePVE(t, http.StatusInternalServerError,
		`{"errors":{"vmid":"VM is locked (backup)"}}`)

	err := client.Start(context.Background(), "pve1", domain.InstanceKindVM, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "VM is locked (backup)")
}

func TestClientStopEscalatesToSSHFallback(t *testing.T) {
	pve := &fakePVE{status: http.StatusInternalServerError,
		body: `{"errors":{"vmid":"VM is locked (snapshot)"}}`}
	server := httptest.NewTLSServer(pve)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := NewClient(ClientConfig{
		Host:       parsed.Host,
		APIUser:    "root@pam",
		TokenName:  "panel",
		TokenValue: "token-secret",
		Logger:     &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
		SSHUser:    "root",
		SSHKey:     "not a pem key",
	})

	err = client.Stop(context.Background(), "pve1", domain.InstanceKindVM, 100)
	require.Error(t, err)
	// The API refusal triggered the node-level stop, whose own failure is
	// reported alongside it.
	assert.Contains(t, err.Error(), "api stop failed")
	assert.Contains(t, err.Error(), "ssh fallback failed")
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/100/status/stop", pve.last().path)
}

func TestClientStopWithoutSSHReturnsAPIError(t *testing.T) {
	_, client := newFakePVE(t, http.StatusInternalServerError,
		`{"errors":{"vmid":"VM is locked (snapshot)"}}`)

	err := client.Stop(context.Background(), "pve1", domain.InstanceKindVM, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hypervisor API error")
	assert.NotContains(t, err.Error(), "ssh fallback")
}

func TestClientTicketAuthLogsInOnce(t *testing.T) {
	pve := &fakePVE{status: http.StatusOK,
		body: `{"data":{"ticket":"PVE:ticket","CSRFPreventionToken":"csrf-token"}}`}
	server := httptest.NewTLSServer(pve)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := NewClient(ClientConfig{
		Host:     parsed.Host,
		APIUser:  "root@pam",
		Password: "secret",
		Logger:   &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
	})
	ctx := context.Background()

	require.NoError(t, client.Start(ctx, "pve1", domain.InstanceKindVM, 100))
	require.NoError(t, client.Shutdown(ctx, "pve1", domain.InstanceKindVM, 100))

	pve.mu.Lock()
	defer pve.mu.Unlock()
	require.Len(t, pve.requests, 3)
	assert.Equal(t, "/api2/json/access/ticket", pve.requests[0].path)
	for _, op := range pve.requests[1:] {
		assert.Equal(t, "PVE:ticket", op.cookie)
		assert.Equal(t, "csrf-token", op.csrf)
	}
}

// expiringPVE invalidates every issued ticket after one use, the way a real
// endpoint rejects tickets past their lifetime.
type expiringPVE struct {
	mu     sync.Mutex
	logins int
	valid  string
}

func (p *expiringPVE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	p.mu.Lock()
	defer p.mu.Unlock()

	if r.URL.Path == "/api2/json/access/ticket" {
		p.logins++
		p.valid = fmt.Sprintf("PVE:ticket-%d", p.logins)
		fmt.Fprintf(w, `{"data":{"ticket":%q,"CSRFPreventionToken":"csrf"}}`, p.valid)
		return
	}

	cookie, err := r.Cookie("PVEAuthCookie")
	if err != nil || cookie.Value != p.valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	p.valid = "" // one use, then expired
	_, _ = w.Write([]byte(`{"data":"UPID:pve1:0001"}`))
}

func TestClientRefreshesExpiredTicket(t *testing.T) {
	pve := &expiringPVE{}
	server := httptest.NewTLSServer(pve)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := NewClient(ClientConfig{
		Host:     parsed.Host,
		APIUser:  "root@pam",
		Password: "secret",
		Logger:   &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
	})
	ctx := context.Background()

	// Each call finds its cached ticket already expired; the client must log
	// in again and replay rather than re-sending the dead ticket.
	require.NoError(t, client.Start(ctx, "pve1", domain.InstanceKindVM, 100))
	require.NoError(t, client.Shutdown(ctx, "pve1", domain.InstanceKindVM, 100))
	require.NoError(t, client.Restart(ctx, "pve1", domain.InstanceKindVM, 100))

	pve.mu.Lock()
	defer pve.mu.Unlock()
	assert.Equal(t, 3, pve.logins)
}
