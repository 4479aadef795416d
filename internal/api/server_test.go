package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hedera-agent-kit/internal/agent"
	"hedera-agent-kit/internal/auth"
	"hedera-agent-kit/internal/llm"
	"hedera-agent-kit/internal/storage/mysql"
	"hedera-agent-kit/internal/task"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/logger"
)

type replyLLM struct{ reply string }

func (r replyLLM) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: r.reply}}, nil
}

type pingParams struct{}

func testToolkits() agent.ToolkitFactory {
	registry := kit.NewRegistry(nil)
	registry.Register(kit.Plugin{
		Name: "ping-plugin",
		Tools: func(kit.Context) []kit.Tool {
			return []kit.Tool{kit.NewTool("ping_tool", "Ping", "Reply with pong", "Failed to ping",
				func(context.Context, *kit.Runtime, pingParams) (*kit.Result, error) {
					return &kit.Result{HumanMessage: "pong"}, nil
				})}
		},
	})
	return agent.NewToolkitFactory(nil, kit.Configuration{Registry: registry})
}

func newTestServer(t *testing.T, authSvc *auth.Service) (*Server, *task.MemoryStore) {
	t.Helper()
	repo, err := mysql.NewMemoryConversationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	toolkits := testToolkits()
	ag := agent.New(replyLLM{reply: "hello"}, toolkits,
		agent.WithConversationRepository(repo), agent.WithLogger(logger.Nop()))
	store := task.NewMemoryStore()
	svc := task.NewService(store, task.NewMemoryQueue(8), 3)
	return NewServer(":0", Dependencies{Agent: ag, Tasks: svc, Toolkits: toolkits, Auth: authSvc}), store
}

func do(t *testing.T, s *Server, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatThenHistoryAndClear(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status %d: %s", rec.Code, rec.Body.String())
	}
	var result agent.ChatResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if result.Reply != "hello" || result.SessionID != "s1" {
		t.Fatalf("unexpected chat result: %+v", result)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/s1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello") {
		t.Fatalf("history status %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodDelete, "/api/v1/sessions/s1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/sessions/s1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after clear, got %d", rec.Code)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)

	if rec := do(t, s, http.MethodPost, "/api/v1/chat", `{"message":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/api/v1/chat", `{"message":"hi","mode":"returnBytes"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without account in returnBytes mode, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/chat", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestReceipts(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/wallet/receipts",
		`{"session_id":"s1","transaction_id":"0.0.1001@1700000000.000000001","status":"success"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record status %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/api/v1/wallet/receipts", `{"session_id":"s1","transaction_id":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid transaction id, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/wallet/receipts?session_id=s1", "")
	var receipts []mysql.ReceiptRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &receipts); err != nil {
		t.Fatalf("decode receipts: %v", err)
	}
	if len(receipts) != 1 || receipts[0].Status != "SUCCESS" {
		t.Fatalf("unexpected receipts: %+v", receipts)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/wallet/receipts", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", rec.Code)
	}
}

func TestToolsCatalogue(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/tools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tools status %d", rec.Code)
	}
	var tools []toolInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &tools); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Method != "ping_tool" || len(tools[0].Parameters) == 0 {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestSubmitAndListTasks(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/tasks", `{"id":"t1","message":"transfer 1 hbar"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/tasks", `{"message":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/tasks?status=pending&limit=5", "")
	var tasks []task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/tasks?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/tasks", `{"id":"t2","session_id":"chat-2","message":"sign a transfer","mode":"human","account_id":"0.0.42"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body.String())
	}

	for query, want := range map[string]string{
		"session_id=chat-2":                 "t2",
		"mode=autonomous":                   "t1",
		"mode=returnBytes&account_id=0.0.42": "t2",
		"q=TRANSFER&order=asc":              "t1,t2",
		"has_reply=false":                   "t2,t1",
		"has_transactions=true":             "",
	} {
		rec = do(t, s, http.MethodGet, "/api/v1/tasks?"+query, "")
		var listed []task.Task
		if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
			t.Fatalf("%s: decode tasks: %v", query, err)
		}
		got := make([]string, len(listed))
		for i, item := range listed {
			got[i] = item.ID
		}
		if strings.Join(got, ",") != want {
			t.Fatalf("%s: got %v want %s", query, got, want)
		}
	}
	for _, query := range []string{"mode=sideways", "has_reply=maybe", "since=yesterday"} {
		if rec := do(t, s, http.MethodGet, "/api/v1/tasks?"+query, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}

	rec = do(t, s, http.MethodGet, "/api/v1/tasks/stats", "")
	var stats task.TaskStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 2 || stats.Sessions != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/tasks/stats?account_id=0.0.42", "")
	stats = task.TaskStats{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Sessions != 1 {
		t.Fatalf("unexpected account stats: %+v", stats)
	}
}

func TestHandleTaskDetailSuccess(t *testing.T) {
	s, store := newTestServer(t, nil)

	sample := &task.Task{
		ID:         "task-success",
		SessionID:  "s1",
		Message:    "demo",
		Status:     task.StatusSucceeded,
		Attempts:   1,
		MaxRetries: 3,
		CreatedAt:  1700000000,
		UpdatedAt:  1700000001,
		Result:     &task.ExecutionResult{Reply: "ok"},
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample task: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/tasks/task-success", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID || got.Result == nil || got.Result.Reply != "ok" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestHandleTaskDetailErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	t.Run("invalid method", func(t *testing.T) {
		if rec := do(t, s, http.MethodPost, "/api/v1/tasks/task-1", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if rec := do(t, s, http.MethodGet, "/api/v1/tasks/", ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if rec := do(t, s, http.MethodGet, "/api/v1/tasks/missing", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestAuthGuardsAPIButNotHealth(t *testing.T) {
	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeToken, Tokens: []string{"ro:viewer"}})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	s, _ := newTestServer(t, authSvc)

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz should be open, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/tools", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/tools", "", "Authorization", "Bearer viewer"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for read token, got %d", rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, "Authorization", "Bearer viewer")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for read-only token on chat, got %d", rec.Code)
	}
}
