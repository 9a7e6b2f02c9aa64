package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Error Helpers ----

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// APIError is returned by the helpers for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

func apiError(resp *Response) error {
	var body ErrorResponse
	_ = resp.JSON(&body)
	kind, _ := body.Error.Details["kind"].(string)
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
		Kind:       kind,
	}
}

// call performs a request and decodes a successful response into v.
func (c *TestClient) call(ctx context.Context, method, path string, body, v any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return apiError(resp)
	}
	if v == nil {
		return nil
	}
	return resp.JSON(v)
}

// ---- Session Helpers ----

// SessionInfo describes the served session.
type SessionInfo struct {
	ID             string `json:"id"`
	OrchestratorID string `json:"orchestratorId"`
	Agents         int    `json:"agents"`
}

// GetSession returns the served session.
func (c *TestClient) GetSession(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.call(ctx, http.MethodGet, "/session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ---- Agent Helpers ----

// SpawnRequest is the body of POST /session/agents.
type SpawnRequest struct {
	Persona      string    `json:"persona,omitempty"`
	Description  string    `json:"description,omitempty"`
	Message      string    `json:"message"`
	Instructions string    `json:"instructions,omitempty"`
	Parent       string    `json:"parent,omitempty"`
	ToolAllow    *[]string `json:"tool_allowlist,omitempty"`
	ToolDeny     *[]string `json:"tool_denylist,omitempty"`
	CommandAllow *[]string `json:"shell_command_allowlist,omitempty"`
	CommandDeny  *[]string `json:"shell_command_denylist,omitempty"`
}

// Patterns returns a pointer for the policy fields of SpawnRequest.
func Patterns(p ...string) *[]string {
	if p == nil {
		p = []string{}
	}
	return &p
}

// Spawn creates a subagent and returns its summary.
func (c *TestClient) Spawn(ctx context.Context, req SpawnRequest) (*agent.Summary, error) {
	var resp struct {
		Agent agent.Summary `json:"agent"`
	}
	if err := c.call(ctx, http.MethodPost, "/session/agents", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Agent, nil
}

// ListAgents lists the session's agents.
func (c *TestClient) ListAgents(ctx context.Context) ([]agent.Summary, error) {
	var agents []agent.Summary
	if err := c.call(ctx, http.MethodGet, "/session/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetAgent returns one agent's summary.
func (c *TestClient) GetAgent(ctx context.Context, ref string) (*agent.Summary, error) {
	var summary agent.Summary
	if err := c.call(ctx, http.MethodGet, agentPath(ref, ""), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// AgentOutput snapshots an agent's output. maxChars <= 0 means untrimmed.
func (c *TestClient) AgentOutput(ctx context.Context, ref string, maxChars int) (*collab.AgentOutput, error) {
	path := agentPath(ref, "/output")
	if maxChars > 0 {
		path += "?max_chars=" + strconv.Itoa(maxChars)
	}
	var out collab.AgentOutput
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait blocks until the agent is terminal or the timeout passes.
func (c *TestClient) Wait(ctx context.Context, ref string, timeout time.Duration) (*collab.WaitResult, error) {
	var res collab.WaitResult
	if err := c.call(ctx, http.MethodPost, agentPath(ref, "/wait"), timeoutBody(timeout), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CloseAgent asks an agent to stop and returns its final status.
func (c *TestClient) CloseAgent(ctx context.Context, ref string, timeout time.Duration) (agent.Status, error) {
	var resp struct {
		Status agent.Status `json:"status"`
	}
	if err := c.call(ctx, http.MethodPost, agentPath(ref, "/close"), timeoutBody(timeout), &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func agentPath(ref, suffix string) string {
	return "/session/agents/" + url.PathEscape(ref) + suffix
}

func timeoutBody(timeout time.Duration) map[string]int64 {
	return map[string]int64{"timeout_ms": timeout.Milliseconds()}
}

// ---- Chat Helpers ----

// MessageRequest is the body of POST /session/messages.
type MessageRequest struct {
	Author     string               `json:"author,omitempty"`
	Target     string               `json:"target,omitempty"`
	Message    string               `json:"message"`
	Visibility groupchat.Visibility `json:"visibility,omitempty"`
}

// SendMessage posts to the group chat.
func (c *TestClient) SendMessage(ctx context.Context, req MessageRequest) (*collab.Delivery, error) {
	var delivery collab.Delivery
	if err := c.call(ctx, http.MethodPost, "/session/messages", req, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

// GetMessages returns chat messages with sequence greater than after.
func (c *TestClient) GetMessages(ctx context.Context, after int64) ([]groupchat.Message, error) {
	var msgs []groupchat.Message
	path := "/session/messages?after=" + strconv.FormatInt(after, 10)
	if err := c.call(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CheckPolicy evaluates an attempt against an agent's policy.
func (c *TestClient) CheckPolicy(ctx context.Context, ref string, kind permission.Kind, subject string) (*permission.Decision, error) {
	var d permission.Decision
	body := map[string]string{"agent": ref, "kind": string(kind), "subject": subject}
	if err := c.call(ctx, http.MethodPost, "/session/policy/check", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
