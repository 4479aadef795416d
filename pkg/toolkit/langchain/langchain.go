// Package langchain adapts toolkit tools to langchaingo agents.
package langchain

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/tools"

	"hedera-agent-kit/pkg/kit"
)

// Tool wraps one toolkit method as a langchaingo tool.
type Tool struct {
	tk   *kit.Toolkit
	tool kit.Tool
}

var _ tools.Tool = (*Tool)(nil)

// Tools adapts every tool of tk.
func Tools(tk *kit.Toolkit) []tools.Tool {
	out := make([]tools.Tool, 0, len(tk.Tools()))
	for _, t := range tk.Tools() {
		out = append(out, &Tool{tk: tk, tool: t})
	}
	return out
}

// Name returns the tool method.
func (t *Tool) Name() string { return t.tool.Method() }

// Description includes the parameter schema so the model can build input.
func (t *Tool) Description() string {
	var b strings.Builder
	b.WriteString(t.tool.Description())
	b.WriteString("\nInput must be a JSON object matching this schema: ")
	b.Write(t.tool.Schema())
	return b.String()
}

// Call executes the tool with a JSON object input and returns the JSON
// encoded result. Tool failures are part of the returned text.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		input = "{}"
	}
	return t.tk.Run(ctx, t.tool.Method(), []byte(input))
}
