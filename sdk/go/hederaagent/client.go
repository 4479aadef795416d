// Package hederaagent is a Go client for the hedera-agentd REST API.
package hederaagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// A chat turn may run several tool rounds, so it is longer than a plain REST call.
const DefaultHTTPTimeout = 90 * time.Second

// Execution modes accepted by the agent.
const (
	ModeAutonomous  = "autonomous"
	ModeReturnBytes = "returnBytes"
)

// Client wraps the HTTP interactions with hedera-agentd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// ChatRequest is one user message.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	// AccountID is the wallet account that signs in returnBytes mode.
	AccountID string `json:"account_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// ToolCall records one tool invocation of a chat turn.
type ToolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result"`
	Failed    bool            `json:"failed"`
}

// PreparedTransaction is a frozen, unsigned transaction for the wallet.
type PreparedTransaction struct {
	Tool          string `json:"tool"`
	TransactionID string `json:"transaction_id"`
	Bytes         []byte `json:"bytes"`
}

// ChatResult is the agent reply to a ChatRequest.
type ChatResult struct {
	SessionID    string                `json:"session_id"`
	Mode         string                `json:"mode"`
	Reply        string                `json:"reply"`
	ToolCalls    []ToolCall            `json:"tool_calls,omitempty"`
	Transactions []PreparedTransaction `json:"transactions,omitempty"`
	CreatedAt    int64                 `json:"created_at"`
}

// Message is a stored conversation message.
type Message struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCalls  string `json:"tool_calls,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Session is the history of one conversation.
type Session struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// Receipt is the outcome of a wallet-signed transaction.
type Receipt struct {
	ID            int64  `json:"id,omitempty"`
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// Tool describes a tool exposed by the agent.
type Tool struct {
	Method      string          `json:"method"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// TaskSubmission queues a chat message for asynchronous processing. ID makes
// the submission idempotent.
type TaskSubmission struct {
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	AccountID string         `json:"account_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskResult is the outcome of a succeeded task.
type TaskResult struct {
	Reply        string                `json:"reply"`
	Transactions []PreparedTransaction `json:"transactions,omitempty"`
	ToolCalls    []ToolCall            `json:"tool_calls,omitempty"`
}

// Task is the state of an asynchronous chat task.
type Task struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Message    string         `json:"message"`
	AccountID  string         `json:"account_id,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *TaskResult    `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Done reports whether the task reached a terminal state.
func (t Task) Done() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// TaskFilter narrows ListTasks and TaskStats. Nil booleans leave that
// dimension unfiltered.
type TaskFilter struct {
	Limit     int
	Offset    int
	SessionID string
	AccountID string
	// Mode is "autonomous" or "returnBytes".
	Mode            string
	Statuses        []string
	HasReply        *bool
	HasTransactions *bool
	Query           string
	OldestFirst     bool
	Since           time.Time
	Until           time.Time
}

// TaskStats aggregates task states.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Sessions counts distinct chat sessions.
	Sessions int `json:"sessions"`
	// Transactions counts transactions awaiting a wallet signature.
	Transactions int `json:"transactions"`

	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
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
		return fmt.Sprintf("hedera-agent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("hedera-agent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API rooted at rawURL. When
// httpClient is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = strings.TrimSpace(token)
}

// AccessToken returns the stored token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Chat runs one synchronous chat turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	var out ChatResult
	err := c.call(ctx, http.MethodPost, "/api/v1/chat", nil, req, &out)
	return out, err
}

// History returns the latest messages of a session.
func (c *Client) History(ctx context.Context, sessionID string, limit int) (Session, error) {
	var out Session
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	err := c.call(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID), q, nil, &out)
	return out, err
}

// ClearSession deletes a session and its receipts.
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil, nil)
}

// ReportReceipt records the outcome of a transaction the wallet signed and
// submitted.
func (c *Client) ReportReceipt(ctx context.Context, receipt Receipt) (Receipt, error) {
	var out Receipt
	err := c.call(ctx, http.MethodPost, "/api/v1/wallet/receipts", nil, receipt, &out)
	return out, err
}

// Receipts lists the receipts of a session.
func (c *Client) Receipts(ctx context.Context, sessionID string) ([]Receipt, error) {
	var out []Receipt
	err := c.call(ctx, http.MethodGet, "/api/v1/wallet/receipts", url.Values{"session_id": {sessionID}}, nil, &out)
	return out, err
}

// Tools lists the tools the agent may call.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	err := c.call(ctx, http.MethodGet, "/api/v1/tools", nil, nil, &out)
	return out, err
}

// SubmitTask queues a chat message.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var out Task
	err := c.call(ctx, http.MethodPost, "/api/v1/tasks", nil, submission, &out)
	return out, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return Task{}, errors.New("hederaagent: task id is required")
	}
	var out Task
	err := c.call(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, nil, &out)
	return out, err
}

// ListTasks lists tasks matching filter, most recently updated first.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var out []Task
	err := c.call(ctx, http.MethodGet, "/api/v1/tasks", filter.values(), nil, &out)
	return out, err
}

// TaskStats aggregates tasks matching filter.
func (c *Client) TaskStats(ctx context.Context, filter TaskFilter) (TaskStats, error) {
	var out TaskStats
	err := c.call(ctx, http.MethodGet, "/api/v1/tasks/stats", filter.values(), nil, &out)
	return out, err
}

// WaitForTask polls until the task is done or ctx expires.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if task.Done() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f TaskFilter) values() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if len(f.Statuses) > 0 {
		q.Set("status", strings.Join(f.Statuses, ","))
	}
	for key, value := range map[string]string{
		"session_id": f.SessionID,
		"account_id": f.AccountID,
		"mode":       f.Mode,
		"q":          f.Query,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	for key, flag := range map[string]*bool{
		"has_reply":        f.HasReply,
		"has_transactions": f.HasTransactions,
	} {
		if flag != nil {
			q.Set(key, strconv.FormatBool(*flag))
		}
	}
	if f.OldestFirst {
		q.Set("order", "asc")
	}
	if !f.Since.IsZero() {
		q.Set("since", strconv.FormatInt(f.Since.Unix(), 10))
	}
	if !f.Until.IsZero() {
		q.Set("until", strconv.FormatInt(f.Until.Unix(), 10))
	}
	return q
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
