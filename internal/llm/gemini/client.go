package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"hedera-agent-kit/internal/llm"
)

const defaultModel = "gemini-2.5-flash"

// Config 描述了调用 Gemini API 所需的信息。
type Config struct {
	APIKey string
	Model  string
}

// Client 通过 genai SDK 调用 Gemini。
type Client struct {
	client *genai.Client
	model  string
}

var _ llm.Client = (*Client)(nil)

// NewClient 创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Gemini 客户端失败: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{client: gc, model: model}, nil
}

// Chat 调用 GenerateContent，并把函数调用转换为统一结构。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, ConvertMessages(req.Messages), buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("请求 Gemini 失败: %w", err)
	}
	return ConvertResponse(resp)
}

func buildConfig(req llm.ChatRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Tools: ConvertTools(req.Tools),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature != nil {
		temp := *req.Temperature
		config.Temperature = &temp
	}
	return config
}

// ConvertMessages 将统一消息转换为 genai 内容。
func ConvertMessages(msgs []llm.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		case llm.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(call.Arguments, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}
			out = append(out, &genai.Content{Role: "model", Parts: parts})
		case llm.RoleTool:
			response := map[string]any{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"output": msg.Content}
			}
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: response,
				},
			}}})
		}
	}
	return out
}

// ConvertTools 将工具描述转换为函数声明。
func ConvertTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ConvertResponse 读取首个候选结果。没有 ID 的函数调用会分配一个随机 ID。
func ConvertResponse(resp *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	out := llm.Message{Role: llm.RoleAssistant}
	var text []string
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("序列化函数参数失败: %w", err)
			}
			if part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
			continue
		}
		if part.Text != "" {
			text = append(text, part.Text)
		}
	}
	out.Content = strings.TrimSpace(strings.Join(text, ""))
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, llm.ErrEmptyResponse
	}
	return &llm.ChatResponse{Message: out, FinishReason: string(candidate.FinishReason)}, nil
}
