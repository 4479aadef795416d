package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/mirror"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeExecutorFailure       Code = "EXECUTOR_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeCanceled              Code = "CANCELED"
	CodeLedgerFailure         Code = "LEDGER_FAILURE"
	CodeMirrorFailure         Code = "MIRROR_FAILURE"
	CodeLLMFailure            Code = "LLM_FAILURE"
)

// Attributes 为错误码提供默认行为以及 API 层返回的 HTTP 状态码。
type Attributes struct {
	Message    string
	Severity   Severity
	Retryable  bool
	Alert      bool
	HTTPStatus int
}

// catalog 保存所有已注册的错误码。业务包在 init 中追加自己的错误码。
var catalog = struct {
	sync.RWMutex
	codes map[Code]Attributes
}{codes: map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo, HTTPStatus: http.StatusNotFound},
	CodeRetriesExhausted:      {Message: "retries exhausted", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusConflict},
	CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
	CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
	CodeExecutorFailure:       {Message: "executor failure", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusGatewayTimeout},
	CodeCanceled:              {Message: "operation canceled", Severity: SeverityInfo, HTTPStatus: http.StatusRequestTimeout},
	CodeLedgerFailure:         {Message: "ledger request failed", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusBadGateway},
	CodeMirrorFailure:         {Message: "mirror node request failed", Severity: SeverityWarning, Retryable: true, HTTPStatus: http.StatusBadGateway},
	CodeLLMFailure:            {Message: "language model request failed", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusBadGateway},
}}

// Register 注册或覆盖错误码描述。HTTPStatus 为 0 时保留已登记的状态码。
func Register(code Code, attr Attributes) {
	catalog.Lock()
	defer catalog.Unlock()
	if attr.HTTPStatus == 0 {
		attr.HTTPStatus = catalog.codes[code].HTTPStatus
	}
	catalog.codes[code] = attr
}

// RegisterHTTPStatus 为错误码指定 HTTP 状态码。
func RegisterHTTPStatus(code Code, status int) {
	catalog.Lock()
	defer catalog.Unlock()
	attr, ok := catalog.codes[code]
	if !ok {
		attr = catalog.codes[CodeUnknown]
		attr.Message = string(code)
	}
	attr.HTTPStatus = status
	catalog.codes[code] = attr
}

// AttributesOf 返回错误码对应的属性，未注册的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	catalog.RLock()
	defer catalog.RUnlock()
	if attr, ok := catalog.codes[code]; ok {
		return attr
	}
	return catalog.codes[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	severity  *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如工具名或交易状态。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的重试策略。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 创建一个新的错误实例，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含原因的错误描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// HTTPStatus 返回错误码登记的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	if status := AttributesOf(e.Code()).HTTPStatus; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

// From 从错误链中取出统一错误类型。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// transientStatuses 是账本会在稍后重试时接受的状态。
var transientStatuses = map[hedera.Status]bool{
	hedera.StatusBusy:                          true,
	hedera.StatusPlatformNotActive:             true,
	hedera.StatusPlatformTransactionNotCreated: true,
	hedera.StatusThrottledAtConsensus:          true,
	hedera.StatusTransactionExpired:            true,
}

// Classify 将任意错误归入统一错误码：已是 *Error 的原样返回；上下文超时与取消、
// 账本预检与回执状态、镜像节点 404 分别映射到对应错误码；其余归为 UNKNOWN。
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := From(err); ok {
		return e
	}
	var precheck hedera.ErrHederaPreCheckStatus
	if stdErrors.As(err, &precheck) {
		return ledgerError(err, precheck.Status, "交易预检失败")
	}
	var receipt hedera.ErrHederaReceiptStatus
	if stdErrors.As(err, &receipt) {
		return ledgerError(err, receipt.Status, "交易回执状态异常")
	}
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, err, "")
	case stdErrors.Is(err, context.Canceled):
		return Wrap(CodeCanceled, err, "")
	case stdErrors.Is(err, mirror.ErrNotFound):
		return Wrap(CodeNotFound, err, "")
	}
	return Wrap(CodeUnknown, err, "")
}

func ledgerError(err error, status hedera.Status, message string) *Error {
	return Wrap(CodeLedgerFailure, err, message,
		WithMetadata("status", status.String()),
		WithRetryable(transientStatuses[status]),
	)
}

// CodeOf 返回错误归类后的错误码。
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	return Classify(err).Code()
}

// RetryableError 判断任意错误归类后是否可重试。
func RetryableError(err error) bool {
	return err != nil && Classify(err).Retryable()
}

// HTTPStatus 将错误映射为 HTTP 状态码，供 API 层统一输出。
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Classify(err).HTTPStatus()
}
