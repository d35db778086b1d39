package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusSnapshot mirrors the gateway's /status response.
type StatusSnapshot struct {
	Running          bool   `json:"running"`
	SecurityMode     string `json:"security_mode"`
	CurrentPlanID    string `json:"current_plan_id"`
	PendingApprovals int    `json:"pending_approvals"`
	EmergencyStopped bool   `json:"emergency_stopped"`
}

// Approval mirrors one entry of the gateway's /approvals response.
type Approval struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	ExpiresAt string `json:"expires_at"`
	Action    struct {
		ActionType  string `json:"action_type"`
		Description string `json:"description"`
		RiskLevel   string `json:"risk_level"`
	} `json:"action"`
}

// Client is a minimal HTTP client for the coordinator API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the coordinator at base.
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches the coordinator status snapshot.
func (c *Client) Status() (StatusSnapshot, error) {
	var snap StatusSnapshot
	err := c.get("/status", &snap)
	return snap, err
}

// Approvals fetches the pending approval queue.
func (c *Client) Approvals() ([]Approval, error) {
	var resp struct {
		Pending []Approval `json:"pending"`
	}
	if err := c.get("/approvals", &resp); err != nil {
		return nil, err
	}
	return resp.Pending, nil
}

// Approve approves one pending request.
func (c *Client) Approve(requestID string) error {
	return c.post("/approve/" + requestID)
}

// Reject rejects one pending request.
func (c *Client) Reject(requestID string) error {
	return c.post("/reject/" + requestID)
}

// ApproveAll approves every pending request.
func (c *Client) ApproveAll() error {
	return c.post("/approve-all")
}

// RejectAll rejects every pending request.
func (c *Client) RejectAll() error {
	return c.post("/reject-all")
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(path string) error {
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	return nil
}

func httpError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
}
