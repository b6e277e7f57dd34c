package agentcraft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentCraft REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// TaskSubmission represents the payload required to create a new task.
type TaskSubmission struct {
	ID       string         `json:"id,omitempty"`
	Input    string         `json:"input"`
	Tools    []string       `json:"tools,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskStep describes a single phase of task execution.
type TaskStep struct {
	Seq         int    `json:"seq"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TaskResult carries the outcome of a completed task.
type TaskResult struct {
	AgentID      string `json:"agent_id,omitempty"`
	WorkflowID   string `json:"workflow_id,omitempty"`
	Reply        string `json:"reply"`
	Observations string `json:"observations,omitempty"`
}

// Task is the server-side view of a submitted task.
type Task struct {
	ID          string      `json:"id"`
	Input       string      `json:"input"`
	Tools       []string    `json:"tools,omitempty"`
	AgentID     string      `json:"agent_id,omitempty"`
	Status      string      `json:"status"`
	Steps       []TaskStep  `json:"steps,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	ErrorCode   string      `json:"error_code,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
	CompletedAt int64       `json:"completed_at,omitempty"`
}

// CreatedResource identifies a single runtime resource created by a deployment.
type CreatedResource struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Agent is the merged view of a deployment record and its live runtime status.
type Agent struct {
	WorkflowID       string            `json:"workflow_id"`
	AgentID          string            `json:"agent_id"`
	RuntimeName      string            `json:"runtime_name"`
	Namespace        string            `json:"namespace"`
	Status           string            `json:"status"`
	CreatedResources []CreatedResource `json:"created_resources"`
	Phase            string            `json:"phase,omitempty"`
	Error            string            `json:"error,omitempty"`
	CreatedAt        int64             `json:"created_at"`
	LastUpdated      int64             `json:"last_updated"`
}

// ToolCatalog is a snapshot of the platform tool catalog.
type ToolCatalog struct {
	Tools   []string  `json:"tools"`
	BuiltAt time.Time `json:"built_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentcraft api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentcraft api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 API error.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// NewClient instantiates a client for the AgentCraft API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitTask creates a new natural-language task. The server accepts the task
// and processes it asynchronously; poll GetTask or use WaitForTask.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// WaitForTask polls the task until it reaches a terminal state or the context
// is cancelled.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if detail.Status == "completed" || detail.Status == "failed" {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetAgent fetches the merged deployment view of an agent.
func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	var view Agent
	if err := c.get(ctx, "/api/v1/agents/"+url.PathEscape(agentID), &view); err != nil {
		return Agent{}, err
	}
	return view, nil
}

// ListAgents fetches all known agents.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var views []Agent
	if err := c.get(ctx, "/api/v1/agents", &views); err != nil {
		return nil, err
	}
	return views, nil
}

// DeleteAgent removes an agent and its dependent resources.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/agents/"+url.PathEscape(agentID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ListTools fetches the current tool catalog snapshot.
func (c *Client) ListTools(ctx context.Context) (ToolCatalog, error) {
	var snapshot ToolCatalog
	if err := c.get(ctx, "/api/v1/tools", &snapshot); err != nil {
		return ToolCatalog{}, err
	}
	return snapshot, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
