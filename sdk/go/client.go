package taskflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Dependency struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
}

// Task represents the API task model (partial).
type Task struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"project_id"`
	ParentTaskID *string      `json:"parent_task_id,omitempty"`
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	Priority     string       `json:"priority"`
	DueDate      *string      `json:"due_date,omitempty"`
	CompletedAt  *string      `json:"completed_at,omitempty"`
	Assignees    []string     `json:"assignees"`
	Tags         []string     `json:"tags"`
	Dependencies []Dependency `json:"dependencies"`
	CreatedBy    string       `json:"created_by"`
	UpdatedAt    string       `json:"updated_at"`
}

type Metadata struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	OverdueTasks   int `json:"overdue_tasks"`
}

type Member struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Project represents the API project model (partial).
type Project struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Priority string   `json:"priority"`
	OwnerID  string   `json:"owner_id"`
	Members  []Member `json:"members"`
	Metadata Metadata `json:"metadata"`
	Progress int      `json:"progress"`
}

type ActivityEntry struct {
	Seq       int64          `json:"seq"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// ActivityPage wraps activity listings with a sequence cursor.
type ActivityPage struct {
	Items      []ActivityEntry `json:"items"`
	NextCursor *int64          `json:"next_cursor,omitempty"`
}

// TaskPage wraps task listings with an opaque cursor.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject returns a project with its counters and progress.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// AddMember adds userID to the project with role.
func (c *Client) AddMember(ctx context.Context, projectID, userID, role string) (Project, error) {
	body := map[string]any{"user_id": userID}
	if role != "" {
		body["role"] = role
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/members", url.PathEscape(projectID)), body, &resp)
	return resp, err
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title string, assignees ...string) (Task, error) {
	body := map[string]any{
		"title":     title,
		"assignees": assignees,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID)), body, &resp)
	return resp, err
}

// ListTasks returns one page of project tasks.
func (c *Client) ListTasks(ctx context.Context, projectID string, limit int, cursor string) (TaskPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetStatus moves a task to status.
func (c *Client) SetStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "status"), map[string]any{"status": status}, &resp)
	return resp, err
}

// AddDependency links taskID to dependsOn.
func (c *Client) AddDependency(ctx context.Context, taskID, dependsOn, depType string) (Task, error) {
	body := map[string]any{"task_id": dependsOn}
	if depType != "" {
		body["type"] = depType
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "dependencies"), body, &resp)
	return resp, err
}

// RemoveDependency drops every edge from taskID to dependsOn.
func (c *Client) RemoveDependency(ctx context.Context, taskID, dependsOn string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodDelete, c.taskPath(taskID, "dependencies/"+url.PathEscape(dependsOn)), nil, &resp)
	return resp, err
}

// CanStart reports whether every blocked-by dependency of taskID is done.
func (c *Client) CanStart(ctx context.Context, taskID string) (bool, error) {
	var resp struct {
		CanStart bool `json:"can_start"`
	}
	err := c.do(ctx, http.MethodGet, c.taskPath(taskID, "can-start"), nil, &resp)
	return resp.CanStart, err
}

// Activity returns the task's audit trail after the given sequence.
func (c *Client) Activity(ctx context.Context, taskID string, after int64, limit int) (ActivityPage, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.taskPath(taskID, "activity")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ActivityPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) taskPath(taskID, p string) string {
	return fmt.Sprintf("tasks/%s/%s", url.PathEscape(taskID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
