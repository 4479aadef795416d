package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role 表示对话消息的角色。
type Role string

// 支持的消息角色。
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 是模型请求执行的一次工具调用。
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message 是一条对话消息。工具结果消息通过 ToolCallID 关联到调用。
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolSpec 描述模型可以调用的工具。
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest 描述一次对话补全请求。
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float32
}

// ChatResponse 是模型返回的助手消息。
type ChatResponse struct {
	Message      Message
	FinishReason string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ErrEmptyResponse 表示模型既没有给出文本也没有请求工具。
var ErrEmptyResponse = errors.New("模型响应为空")
