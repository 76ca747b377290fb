package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned by clients that have no provider configured.
var ErrDisabled = errors.New("ai features are disabled")

// TaskInput is the reduced view of a task sent to the model.
type TaskInput struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	CurrentPriority string   `json:"currentPriority"`
	DueDate         *string  `json:"dueDate,omitempty"`
	Dependencies    int      `json:"dependencies"`
	Subtasks        int      `json:"subtasks"`
	Status          string   `json:"status"`
	Tags            []string `json:"tags,omitempty"`
}

type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	TeamSize    int    `json:"teamSize"`
}

// Suggestion is the model's verdict for one task.
type Suggestion struct {
	TaskID              string  `json:"taskId"`
	SuggestedPriority   string  `json:"suggestedPriority"`
	PriorityScore       float64 `json:"priorityScore"`
	Reasoning           string  `json:"reasoning"`
	SuggestedDueDate    string  `json:"suggestedDueDate,omitempty"`
	EstimatedComplexity float64 `json:"estimatedComplexity"`
}

// Client prioritizes a batch of tasks. Implementations are injected into the
// engine at construction time.
type Client interface {
	PrioritizeTasks(ctx context.Context, project ProjectInput, tasks []TaskInput) ([]Suggestion, error)
}

// Disabled is the Client used when no provider is configured.
type Disabled struct{}

func (Disabled) PrioritizeTasks(context.Context, ProjectInput, []TaskInput) ([]Suggestion, error) {
	return nil, ErrDisabled
}

// OpenAI talks to any endpoint implementing the OpenAI chat completions wire format.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewOpenAI(httpClient *http.Client, baseURL, apiKey, model string) *OpenAI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You are a project management AI that provides task prioritization in JSON format"

func buildPrompt(project ProjectInput, tasks []TaskInput) (string, error) {
	taskJSON, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Analyze the following tasks and provide prioritization.\n")
	fmt.Fprintf(&b, "Project: %s\nDescription: %s\nStatus: %s\nTeam size: %d\n\n", project.Name, project.Description, project.Status, project.TeamSize)
	b.WriteString("Tasks:\n")
	b.Write(taskJSON)
	b.WriteString("\n\nFor each task give a suggested priority (low/medium/high/urgent), a priority score (0-100), ")
	b.WriteString("brief reasoning, a suggested due date if none is set and an estimated complexity (1-10).\n")
	b.WriteString(`Respond with {"prioritization":[{"taskId","suggestedPriority","priorityScore","reasoning","suggestedDueDate","estimatedComplexity"}]}.`)
	return b.String(), nil
}

func (c *OpenAI) PrioritizeTasks(ctx context.Context, project ProjectInput, tasks []TaskInput) ([]Suggestion, error) {
	prompt, err := buildPrompt(project, tasks)
	if err != nil {
		return nil, err
	}
	req := chatRequest{
		Model:       c.model,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	req.ResponseFormat.Type = "json_object"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ai: request: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ai: read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("ai: status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("ai: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("ai: %s: %s", decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return nil, errors.New("ai: empty response")
	}
	return ParseSuggestions(decoded.Choices[0].Message.Content)
}

// ParseSuggestions accepts either a bare JSON array or an object wrapping it
// under "prioritization".
func ParseSuggestions(content string) ([]Suggestion, error) {
	content = strings.TrimSpace(content)
	var list []Suggestion
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &list); err != nil {
			return nil, fmt.Errorf("ai: parse suggestions: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Prioritization []Suggestion `json:"prioritization"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return nil, fmt.Errorf("ai: parse suggestions: %w", err)
	}
	return wrapped.Prioritization, nil
}
