package hypervisor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/virtpanel/backend/internal/domain"
	"github.com/virtpanel/backend/internal/infrastructure/logger"
	"github.com/virtpanel/backend/internal/infrastructure/remote"
)

// Client talks to one Proxmox VE endpoint over its JSON API. One operation
// per task kind, each bounded by the caller's context; status operations
// return once the control plane accepts them (the returned UPID tracks the
// long-running job on the hypervisor side).
type Client struct {
	baseURL    string
	apiUser    string
	tokenName  string
	tokenValue string
	password   string
	http       *http.Client
	logger     *logger.Logger

	// ticket auth state, populated lazily for password-authenticated servers
	ticket    string
	csrfToken string

	sshFallback *remote.SSHClient
}

type ClientConfig struct {
	Host       string // host:port
	APIUser    string
	TokenName  string
	TokenValue string // decrypted
	Password   string // decrypted
	VerifySSL  bool
	Timeout    time.Duration
	Logger     *logger.Logger

	// Optional SSH access to the node for the force-stop fallback
	SSHPort int
	SSHUser string
	SSHKey  string
}

func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
	}

	c := &Client{
		baseURL:    fmt.Sprintf("https://%s/api2/json", cfg.Host),
		apiUser:    cfg.APIUser,
		tokenName:  cfg.TokenName,
		tokenValue: cfg.TokenValue,
		password:   cfg.Password,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: cfg.Logger,
	}

	if cfg.SSHUser != "" && cfg.SSHKey != "" {
		host := cfg.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		c.sshFallback = remote.NewSSHClient(remote.SSHConfig{
			Host:       host,
			Port:       cfg.SSHPort,
			User:       cfg.SSHUser,
			PrivateKey: cfg.SSHKey,
		})
	}

	return c
}

func (c *Client) Start(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error {
	_, err := c.post(ctx, statusPath(node, kind, vmid, "start"), nil)
	return err
}

// Stop is the hard stop. When the API refuses (a locked or wedged guest) and
// node SSH access is configured, it escalates to qm/pct stop on the node,
// matching the panel's force-stop behavior.
func (c *Client) Stop(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error {
	_, err := c.post(ctx, statusPath(node, kind, vmid, "stop"), nil)
	if err == nil {
		return nil
	}
	if c.sshFallback == nil || ctx.Err() != nil {
		return err
	}

	cmd := fmt.Sprintf("qm stop %d", vmid)
	if kind == domain.InstanceKindContainer {
		cmd = fmt.Sprintf("pct stop %d", vmid)
	}
	c.logger.Warnw("hypervisor_stop_ssh_fallback", "node", node, "vmid", vmid, "api_error", err)
	if _, sshErr := c.sshFallback.RunCommand(ctx, cmd); sshErr != nil {
		return fmt.Errorf("api stop failed (%v); ssh fallback failed: %w", err, sshErr)
	}
	return nil
}

func (c *Client) Shutdown(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error {
	_, err := c.post(ctx, statusPath(node, kind, vmid, "shutdown"), nil)
	return err
}

func (c *Client) Restart(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error {
	_, err := c.post(ctx, statusPath(node, kind, vmid, "reboot"), nil)
	return err
}

func (c *Client) Delete(ctx context.Context, node string, kind domain.InstanceKind, vmid int) error {
	// purge removes the guest from HA, backup jobs and the like
	path := fmt.Sprintf("nodes/%s/%s/%d?purge=1", node, kind, vmid)
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// Ping verifies the endpoint is reachable and still accepts our credentials.
// The pool uses it to decide whether a cached client needs a rebuild.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "version", nil)
	return err
}

func statusPath(node string, kind domain.InstanceKind, vmid int, action string) string {
	return fmt.Sprintf("nodes/%s/%s/%d/status/%s", node, kind, vmid, action)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (string, error) {
	return c.do(ctx, http.MethodPost, path, form)
}

// do issues one API request and returns the data payload (usually a UPID).
func (c *Client) do(ctx context.Context, method, path string, form url.Values) (string, error) {
	statusCode, statusText, raw, err := c.send(ctx, method, path, form)
	if err != nil {
		return "", err
	}

	// Proxmox tickets expire after about two hours. A rejected ticket is
	// dropped and the request replayed once against a fresh login.
	if statusCode == http.StatusUnauthorized && c.tokenValue == "" && c.ticket != "" {
		c.logger.Warnw("hypervisor_ticket_rejected", "path", path)
		c.ticket = ""
		c.csrfToken = ""
		statusCode, statusText, raw, err = c.send(ctx, method, path, form)
		if err != nil {
			return "", err
		}
	}

	if statusCode < 200 || statusCode > 299 {
		return "", fmt.Errorf("hypervisor API error (%d): %s", statusCode, apiErrorMessage(raw, statusText))
	}

	var parsed struct {
		Data interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil
	}
	if upid, ok := parsed.Data.(string); ok {
		return upid, nil
	}
	return "", nil
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values) (int, string, []byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return 0, "", nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if err := c.authenticate(ctx, req); err != nil {
		return 0, "", nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("hypervisor request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("hypervisor response read failed: %w", err)
	}

	return resp.StatusCode, resp.Status, raw, nil
}

// authenticate attaches token auth directly, or logs in for a ticket on
// password-authenticated servers (cached until a request is rejected).
func (c *Client) authenticate(ctx context.Context, req *http.Request) error {
	if c.tokenName != "" && c.tokenValue != "" {
		req.Header.Set("Authorization",
			fmt.Sprintf("PVEAPIToken=%s!%s=%s", c.apiUser, c.tokenName, c.tokenValue))
		return nil
	}

	if c.ticket == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}
	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: c.ticket})
	if req.Method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", c.csrfToken)
	}
	return nil
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.apiUser)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/access/ticket", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hypervisor login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hypervisor login rejected (%d)", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			Ticket    string `json:"ticket"`
			CSRFToken string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("hypervisor login response invalid: %w", err)
	}

	c.ticket = parsed.Data.Ticket
	c.csrfToken = parsed.Data.CSRFToken
	return nil
}

func apiErrorMessage(raw []byte, fallback string) string {
	var parsed struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed.Errors) > 0 {
		parts := make([]string, 0, len(parsed.Errors))
		for field, msg := range parsed.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
		return strings.Join(parts, "; ")
	}
	return fallback
}
