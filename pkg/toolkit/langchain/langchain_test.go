package langchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
)

type sumParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestToolsCallThroughToolkit(t *testing.T) {
	plugin := kit.Plugin{
		Name: "math",
		Tools: func(kit.Context) []kit.Tool {
			return []kit.Tool{kit.NewTool("sum_tool", "Sum", "Adds two numbers", "Failed to add",
				func(_ context.Context, _ *kit.Runtime, p sumParams) (*kit.Result, error) {
					return &kit.Result{HumanMessage: "ok", Raw: p.A + p.B}, nil
				})}
		},
	}
	tk, err := kit.NewToolkit(nil, kit.Configuration{Plugins: []kit.Plugin{plugin}})
	require.NoError(t, err)

	adapted := Tools(tk)
	require.Len(t, adapted, 1)
	tool := adapted[0]
	assert.Equal(t, "sum_tool", tool.Name())
	assert.Contains(t, tool.Description(), `"a"`)

	out, err := tool.Call(context.Background(), `{"a":2,"b":3}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"humanMessage":"ok","raw":5}`, out)

	out, err = tool.Call(context.Background(), "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"humanMessage":"ok","raw":0}`, out)

	out, err = tool.Call(context.Background(), `{"c":1}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid parameters")
}
