// Package client is the Go HTTP client for the farmhand reservation API.
// The CLI's mutating commands go through here; only the hooks read sqlite
// directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
	Project string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

func WithProject(project string) Option {
	return func(c *Client) {
		c.Project = strings.TrimSpace(project)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Agent struct {
	ID         string `json:"id,omitempty"`
	Project    string `json:"project,omitempty"`
	Name       string `json:"name,omitempty"`
	Program    string `json:"program,omitempty"`
	Model      string `json:"model,omitempty"`
	LastActive string `json:"last_active,omitempty"`
}

type Reservation struct {
	ID          string  `json:"id"`
	Project     string  `json:"project"`
	Agent       string  `json:"agent"`
	PathPattern string  `json:"path_pattern"`
	Exclusive   bool    `json:"exclusive"`
	Reason      string  `json:"reason,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   string  `json:"expires_at"`
	ReleasedAt  *string `json:"released_at,omitempty"`
	IsActive    bool    `json:"is_active"`
}

type ConflictDetail struct {
	ReservationID string `json:"reservation_id"`
	AgentName     string `json:"agent_name"`
	PathPattern   string `json:"path_pattern"`
	Exclusive     bool   `json:"exclusive"`
	ExpiresAt     string `json:"expires_at"`
}

// ConflictError is the decoded 409 body from a failed reserve.
type ConflictError struct {
	Conflicts []ConflictDetail
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		names = append(names, fmt.Sprintf("%s (%s)", c.AgentName, c.PathPattern))
	}
	return "reservation conflict with " + strings.Join(names, ", ")
}

type reservationsResponse struct {
	Reservations []Reservation `json:"reservations"`
}

// Register creates or revives an agent. Name may be empty; the server
// generates one.
func (c *Client) Register(ctx context.Context, name, program, model string) (Agent, error) {
	resp, err := c.postJSON(ctx, "/api/agents", map[string]string{
		"project": c.Project,
		"name":    name,
		"program": program,
		"model":   model,
	})
	if err != nil {
		return Agent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return Agent{}, fmt.Errorf("register failed: %d", resp.StatusCode)
	}
	var out Agent
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Agent{}, err
	}
	return out, nil
}

// Heartbeat refreshes the agent's last-active timestamp.
func (c *Client) Heartbeat(ctx context.Context, agent string) error {
	endpoint := "/api/agents/" + url.PathEscape(agent) + "/renew"
	if c.Project != "" {
		endpoint += "?project=" + url.QueryEscape(c.Project)
	}
	resp, err := c.postJSON(ctx, endpoint, map[string]string{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat failed: %d", resp.StatusCode)
	}
	return nil
}

// ttlMinutes converts ttl to the wire's whole-minute unit, rounding up so
// a short positive ttl never collapses to zero, which the server reads as
// "use the default".
func ttlMinutes(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Minute - 1) / time.Minute)
}

// Reserve claims patterns for agent. A 409 decodes into *ConflictError.
func (c *Client) Reserve(ctx context.Context, agent string, patterns []string, exclusive bool, reason string, ttl time.Duration) ([]Reservation, error) {
	resp, err := c.postJSON(ctx, "/api/reservations", map[string]any{
		"project":     c.Project,
		"agent":       agent,
		"patterns":    patterns,
		"exclusive":   exclusive,
		"reason":      reason,
		"ttl_minutes": ttlMinutes(ttl),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var body struct {
			Conflicts []ConflictDetail `json:"conflicts"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("reserve conflict: unreadable body: %w", err)
		}
		return nil, &ConflictError{Conflicts: body.Conflicts}
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("reserve failed: %d", resp.StatusCode)
	}
	var out reservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Reservations, nil
}

// Release frees the agent's reservations; nil patterns means all of them.
// Returns how many rows were actually released.
func (c *Client) Release(ctx context.Context, agent string, patterns []string) (int, error) {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/api/reservations", map[string]any{
		"project":  c.Project,
		"agent":    agent,
		"patterns": patterns,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("release failed: %d", resp.StatusCode)
	}
	var out struct {
		Released int `json:"released"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Released, nil
}

// Renew extends the agent's active reservations to now+ttl.
func (c *Client) Renew(ctx context.Context, agent string, patterns []string, ttl time.Duration) (int, error) {
	resp, err := c.postJSON(ctx, "/api/reservations/renew", map[string]any{
		"project":     c.Project,
		"agent":       agent,
		"patterns":    patterns,
		"ttl_minutes": ttlMinutes(ttl),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("renew failed: %d", resp.StatusCode)
	}
	var out struct {
		Renewed int `json:"renewed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Renewed, nil
}

// List returns active reservations, optionally scoped to one agent.
func (c *Client) List(ctx context.Context, agent string) ([]Reservation, error) {
	values := url.Values{}
	if c.Project != "" {
		values.Set("project", c.Project)
	}
	if agent != "" {
		values.Set("agent", agent)
	}
	resp, err := c.get(ctx, "/api/reservations?"+values.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list failed: %d", resp.StatusCode)
	}
	var out reservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Reservations, nil
}

// Check reports which active reservations cover a concrete path.
func (c *Client) Check(ctx context.Context, path string) ([]Reservation, error) {
	values := url.Values{}
	values.Set("path", path)
	if c.Project != "" {
		values.Set("project", c.Project)
	}
	resp, err := c.get(ctx, "/api/reservations/check?"+values.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check failed: %d", resp.StatusCode)
	}
	var out reservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Reservations, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, payload)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	return c.HTTP.Do(req)
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}
