package kit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/mirror"
)

// Configuration selects the tools of a Toolkit and how they run.
type Configuration struct {
	// Tools lists the methods to expose; empty exposes every tool.
	Tools []string
	// Plugins are registered, in order, on top of Registry.
	Plugins []Plugin
	// Registry is an optional pre-populated registry.
	Registry  *Registry
	Context   Context
	Mirror    mirror.Service
	Submitter Submitter
	Logger    *slog.Logger
}

// Toolkit is the set of tools bound to one client and context.
type Toolkit struct {
	runtime  *Runtime
	tools    []Tool
	byMethod map[string]Tool
	plugins  []Plugin
}

// NewToolkit discovers the tools of the configured plugins and keeps those
// named in cfg.Tools.
func NewToolkit(client *hedera.Client, cfg Configuration) (*Toolkit, error) {
	if err := cfg.Context.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(logger)
	}
	for _, p := range cfg.Plugins {
		registry.Register(p)
	}

	ctx := cfg.Context
	ctx.Mode = ctx.EffectiveMode()

	all := registry.Tools(ctx)
	byMethod := make(map[string]Tool, len(all))
	var ordered []Tool
	for _, tool := range all {
		if _, dup := byMethod[tool.Method()]; dup {
			logger.Warn("tool provided by more than one plugin, keeping the last", "tool", tool.Method())
			for i, existing := range ordered {
				if existing.Method() == tool.Method() {
					ordered[i] = tool
				}
			}
		} else {
			ordered = append(ordered, tool)
		}
		byMethod[tool.Method()] = tool
	}

	if len(cfg.Tools) > 0 {
		selected := make([]Tool, 0, len(cfg.Tools))
		selectedMap := make(map[string]Tool, len(cfg.Tools))
		var missing []string
		for _, name := range cfg.Tools {
			name = strings.TrimSpace(name)
			tool, ok := byMethod[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			if _, seen := selectedMap[name]; seen {
				continue
			}
			selectedMap[name] = tool
			selected = append(selected, tool)
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, strings.Join(missing, ", "))
		}
		ordered, byMethod = selected, selectedMap
	}

	return &Toolkit{
		runtime: &Runtime{
			Client:    client,
			Context:   ctx,
			Mirror:    cfg.Mirror,
			Submitter: cfg.Submitter,
			Logger:    logger,
		},
		tools:    ordered,
		byMethod: byMethod,
		plugins:  registry.Plugins(),
	}, nil
}

// Tools returns the exposed tools in plugin order.
func (t *Toolkit) Tools() []Tool {
	out := make([]Tool, len(t.tools))
	copy(out, t.tools)
	return out
}

// Tool looks a tool up by method.
func (t *Toolkit) Tool(method string) (Tool, bool) {
	tool, ok := t.byMethod[method]
	return tool, ok
}

// Plugins returns the registered plugins.
func (t *Toolkit) Plugins() []Plugin { return t.plugins }

// Runtime returns the runtime tools execute against.
func (t *Toolkit) Runtime() *Runtime { return t.runtime }

// Execute runs a tool and returns its structured result.
func (t *Toolkit) Execute(ctx context.Context, method string, args json.RawMessage) (*Result, error) {
	tool, ok := t.byMethod[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, method)
	}
	return tool.Execute(ctx, t.runtime, args)
}

// Run executes a tool and returns its JSON encoded result.
func (t *Toolkit) Run(ctx context.Context, method string, args json.RawMessage) (string, error) {
	result, err := t.Execute(ctx, method, args)
	if err != nil {
		return "", err
	}
	return result.JSON()
}
