package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hedera-agent-kit/internal/agent"
	"hedera-agent-kit/internal/auth"
	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/internal/observability/metrics"
	"hedera-agent-kit/internal/storage/mysql"
	"hedera-agent-kit/internal/task"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies 汇总 API 层依赖的业务组件，任一项为空时对应接口返回 503。
type Dependencies struct {
	Agent    *agent.Agent
	Tasks    *task.Service
	Toolkits agent.ToolkitFactory
	Auth     *auth.Service
	// Metrics 默认使用 metrics.Handler()。
	Metrics http.Handler
}

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr    string
	deps    Dependencies
	handler http.Handler
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Handler()
	}
	s := &Server{addr: addr, deps: deps}
	s.handler = s.routes()
	return s
}

// Handler 返回完整的路由，便于测试或挂载到其他服务。
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	guard := s.deps.Auth.Middleware(auth.MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			http.MethodGet: {auth.PermissionRead},
			"*":            {auth.PermissionWrite},
		},
	})
	api := func(name string, h http.HandlerFunc) http.Handler {
		return instrument(name, guard(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/chat", api("chat", s.handleChat))
	mux.Handle("/api/v1/sessions/", api("sessions", s.handleSession))
	mux.Handle("/api/v1/wallet/receipts", api("receipts", s.handleReceipts))
	mux.Handle("/api/v1/tools", api("tools", s.handleTools))
	mux.Handle("/api/v1/tasks", api("tasks", s.handleTasks))
	mux.Handle("/api/v1/tasks/", api("task_detail", s.handleTaskDetail))
	mux.Handle("/metrics", s.deps.Metrics)
	mux.Handle("/healthz", instrument("healthz", http.HandlerFunc(s.handleHealth)))
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat 同步执行一轮对话。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}
	var req agent.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.deps.Agent.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveReturnedTransactions(len(result.Transactions))
	writeJSON(w, http.StatusOK, result)
}

// handleSession 查询或删除会话历史。
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少会话 ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records, err := s.deps.Agent.History(r.Context(), id, queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": records})
	case http.MethodDelete:
		if err := s.deps.Agent.ClearSession(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "仅支持 GET/DELETE", http.StatusMethodNotAllowed)
	}
}

// receiptRequest 是钱包签名并提交交易后回报的结果。
type receiptRequest struct {
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Detail        string `json:"detail"`
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		http.Error(w, "Agent 未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req receiptRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		saved, err := s.deps.Agent.RecordReceipt(r.Context(), mysql.ReceiptRecord{
			SessionID:     strings.TrimSpace(req.SessionID),
			TransactionID: req.TransactionID,
			Status:        strings.ToUpper(strings.TrimSpace(req.Status)),
			Detail:        req.Detail,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	case http.MethodGet:
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			http.Error(w, "缺少 session_id 参数", http.StatusBadRequest)
			return
		}
		receipts, err := s.deps.Agent.Receipts(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if receipts == nil {
			receipts = []mysql.ReceiptRecord{}
		}
		writeJSON(w, http.StatusOK, receipts)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// toolInfo 描述对外展示的工具目录条目。
type toolInfo struct {
	Method      string          `json:"method"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Toolkits == nil {
		http.Error(w, "工具集未初始化", http.StatusServiceUnavailable)
		return
	}
	toolkit, err := s.deps.Toolkits(kit.Context{Mode: kit.ModeAutonomous})
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "构建工具集失败"))
		return
	}
	tools := toolkit.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, tool := range tools {
		out = append(out, toolInfo{
			Method:      tool.Method(),
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateTask 将对话请求提交到异步队列。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req task.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.deps.Tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskDetail 返回单个任务，/api/v1/tasks/stats 返回聚合统计。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
	if id == "" {
		http.Error(w, "缺少任务 ID", http.StatusBadRequest)
		return
	}

	if id == "stats" {
		opts, err := listOptionsFromQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		stats, err := s.deps.Tasks.Stats(r.Context(), opts...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	found, err := s.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// listOptionsFromQuery 将查询参数转换为对话任务过滤条件：
// session_id、account_id、mode、status、has_reply、has_transactions、q、order、since、until、limit 与 offset。
func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	opts := []task.ListOption{
		task.WithPage(queryInt(r, "limit", 20), queryInt(r, "offset", 0)),
		task.WithSession(q.Get("session_id")),
		task.WithAccount(q.Get("account_id")),
		task.WithText(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("mode")); raw != "" {
		mode, err := kit.ParseMode(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "mode 参数无效")
		}
		opts = append(opts, task.WithMode(mode))
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的任务状态: %s", part))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	for key, build := range map[string]func(bool) task.ListOption{
		"has_reply":        task.WithReplied,
		"has_transactions": task.WithPrepared,
	} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, key+" 参数无效")
		}
		opts = append(opts, build(flag))
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		opts = append(opts, task.WithOrder(task.OldestFirst))
	}
	var since, until time.Time
	for key, dst := range map[string]*time.Time{"since": &since, "until": &until} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, key+" 参数无效")
		}
		*dst = ts
	}
	return append(opts, task.WithWindow(since, until)), nil
}

// parseTimestamp 接受 Unix 秒或 RFC3339 时间。
func parseTimestamp(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

// errorResponse 是所有接口统一的错误结构。
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	e := xerrors.Classify(err)
	status := e.HTTPStatus()
	message := e.Message()
	if cause := e.Unwrap(); cause != nil && status < http.StatusInternalServerError {
		message += ": " + cause.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("API 请求失败", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Code: string(e.Code()), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusRecorder 捕获响应状态码用于指标统计。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument 记录每个接口的请求量与耗时。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
