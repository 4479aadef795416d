package task

import (
	"net/http"

	"hedera-agent-kit/internal/agent"
	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/kit"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionResult 保存一次对话任务执行的结果。
type ExecutionResult struct {
	Reply        string                      `json:"reply"`
	Transactions []agent.PreparedTransaction `json:"transactions,omitempty"`
	ToolCalls    []agent.ToolCallRecord      `json:"tool_calls,omitempty"`
}

// Empty 判断结果是否没有任何内容。
func (r *ExecutionResult) Empty() bool {
	return r == nil || (r.Reply == "" && len(r.Transactions) == 0 && len(r.ToolCalls) == 0)
}

// Task 描述了排队执行的异步对话任务。
type Task struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	Message    string           `json:"message"`
	AccountID  string           `json:"account_id,omitempty"`
	Mode       string           `json:"mode,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	MaxRetries int              `json:"max_retries"`
	LastError  string           `json:"last_error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// ChatRequest 将任务还原为对话请求。
func (t *Task) ChatRequest() agent.ChatRequest {
	return agent.ChatRequest{
		SessionID: t.SessionID,
		Message:   t.Message,
		AccountID: t.AccountID,
		Mode:      t.Mode,
	}
}

// EffectiveMode 返回任务的执行模式，未指定时为 autonomous。
func (t *Task) EffectiveMode() kit.Mode {
	mode, err := kit.ParseMode(t.Mode)
	if err != nil {
		return kit.Mode(t.Mode)
	}
	return mode
}

// claimable 返回任务此刻不能被领取的原因，可领取时返回 nil。
func (t *Task) claimable() error {
	switch {
	case t.Status == StatusSucceeded:
		return ErrTaskCompleted
	case t.Status == StatusRunning:
		return ErrTaskConflict
	case t.Status == StatusFailed, t.Attempts >= t.MaxRetries:
		return ErrTaskExhausted
	}
	return nil
}

// Replied 判断任务是否已生成回复。
func (t *Task) Replied() bool {
	return t.Result != nil && t.Result.Reply != ""
}

// PreparedCount 返回等待钱包签名的交易数量。
func (t *Task) PreparedCount() int {
	if t.Result == nil {
		return 0
	}
	return len(t.Result.Transactions)
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskCompensate xerrors.Code = "TASK_COMPENSATION_FAILED"
)

// taskCodes 登记对话任务相关的错误码，HTTP 状态随属性一起注册。
var taskCodes = map[xerrors.Code]xerrors.Attributes{
	CodeTaskNotFound:   {Message: "chat task not found", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusNotFound},
	CodeTaskConflict:   {Message: "chat task is not in a claimable state", Severity: xerrors.SeverityWarning, HTTPStatus: http.StatusConflict},
	CodeTaskCompleted:  {Message: "chat task already answered", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusConflict},
	CodeTaskExhausted:  {Message: "chat task retries exhausted", Severity: xerrors.SeverityCritical, Alert: true, HTTPStatus: http.StatusConflict},
	CodeTaskValidation: {Message: "invalid chat task", Severity: xerrors.SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeTaskPublish:    {Message: "failed to enqueue chat task", Severity: xerrors.SeverityCritical, Retryable: true, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
	CodeTaskProcessing: {Message: "agent turn failed", Severity: xerrors.SeverityWarning, Retryable: true, Alert: true},
	CodeTaskCompensate: {Message: "fallback reply failed", Severity: xerrors.SeverityCritical, Alert: true},
}

func init() {
	for code, attr := range taskCodes {
		xerrors.Register(code, attr)
	}
}

// 存储层返回的哨兵错误，调用方用 errors.Is 按错误码匹配。
var (
	ErrTaskNotFound  = xerrors.New(CodeTaskNotFound, taskCodes[CodeTaskNotFound].Message)
	ErrTaskConflict  = xerrors.New(CodeTaskConflict, taskCodes[CodeTaskConflict].Message)
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, taskCodes[CodeTaskCompleted].Message)
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, taskCodes[CodeTaskExhausted].Message)
)

func cloneResult(result *ExecutionResult) *ExecutionResult {
	if result == nil {
		return nil
	}
	clone := *result
	clone.Transactions = append([]agent.PreparedTransaction(nil), result.Transactions...)
	clone.ToolCalls = append([]agent.ToolCallRecord(nil), result.ToolCalls...)
	return &clone
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
