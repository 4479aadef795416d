package gemini

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"hedera-agent-kit/internal/llm"
)

func TestConvertMessages(t *testing.T) {
	contents := ConvertMessages([]llm.Message{
		{Role: llm.RoleUser, Content: "balance?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_hbar_balance_query_tool", Arguments: json.RawMessage(`{"accountId":"0.0.2"}`)}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "get_hbar_balance_query_tool", Content: `{"humanMessage":"10 HBAR"}`},
		{Role: llm.RoleTool, ToolCallID: "c2", Name: "other", Content: "plain text"},
	})
	if len(contents) != 4 {
		t.Fatalf("expected 4 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" || contents[1].Parts[0].FunctionCall.Args["accountId"] != "0.0.2" {
		t.Fatalf("unexpected assistant content %+v", contents[1].Parts[0])
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp.Name != "get_hbar_balance_query_tool" || resp.Response["humanMessage"] != "10 HBAR" {
		t.Fatalf("unexpected function response %+v", resp)
	}
	if contents[3].Parts[0].FunctionResponse.Response["output"] != "plain text" {
		t.Fatalf("expected plain output wrapper, got %+v", contents[3].Parts[0].FunctionResponse.Response)
	}
}

func TestConvertTools(t *testing.T) {
	if ConvertTools(nil) != nil {
		t.Fatal("expected nil tools")
	}
	tools := ConvertTools([]llm.ToolSpec{{Name: "a", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)}})
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected tools %+v", tools)
	}
	if tools[0].FunctionDeclarations[0].Name != "a" {
		t.Fatalf("unexpected declaration %+v", tools[0].FunctionDeclarations[0])
	}
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: "Checking balance. "},
			{FunctionCall: &genai.FunctionCall{Name: "get_hbar_balance_query_tool", Args: map[string]any{"accountId": "0.0.2"}}},
		}},
	}}}

	out, err := ConvertResponse(resp)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Message.Content != "Checking balance." {
		t.Fatalf("unexpected content %q", out.Message.Content)
	}
	if len(out.Message.ToolCalls) != 1 || out.Message.ToolCalls[0].ID == "" {
		t.Fatalf("unexpected tool calls %+v", out.Message.ToolCalls)
	}
	if string(out.Message.ToolCalls[0].Arguments) != `{"accountId":"0.0.2"}` {
		t.Fatalf("unexpected arguments %s", out.Message.ToolCalls[0].Arguments)
	}
	if out.FinishReason != string(genai.FinishReasonStop) {
		t.Fatalf("unexpected finish reason %q", out.FinishReason)
	}
}

func TestConvertResponseEmpty(t *testing.T) {
	if _, err := ConvertResponse(&genai.GenerateContentResponse{}); err != llm.ErrEmptyResponse {
		t.Fatalf("expected empty response error, got %v", err)
	}
}
