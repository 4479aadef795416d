package plugin

import (
	"log/slog"

	"hedera-agent-kit/pkg/kit"
)

// Plugin is the contract external plugins implement. Built-in toolkit
// plugins are adapted with Builtin.
type Plugin interface {
	// Info returns the static metadata for the plugin.
	Info() Info
	// Configure allows the plugin to inspect its configuration block before
	// its tools are built. Implementations may mutate the map to inject
	// defaults.
	Configure(cfg map[string]any) error
	// Tools builds the plugin tools for a toolkit context.
	Tools(ctx kit.Context) []kit.Tool
}

// Builtin adapts a toolkit plugin to the Plugin contract.
func Builtin(p kit.Plugin) Plugin {
	return builtin{p: p}
}

type builtin struct {
	p kit.Plugin
}

func (b builtin) Info() Info {
	return Info{
		ID:           b.p.Name,
		Name:         b.p.Name,
		Description:  b.p.Description,
		Author:       "Hedera",
		Version:      b.p.Version,
		Capabilities: b.p.Capabilities,
	}
}

func (builtin) Configure(map[string]any) error { return nil }

func (b builtin) Tools(ctx kit.Context) []kit.Tool {
	if b.p.Tools == nil {
		return nil
	}
	return b.p.Tools(ctx)
}

// toKit turns a managed plugin into the form the toolkit registry stores.
func toKit(id string, p Plugin) kit.Plugin {
	if b, ok := p.(builtin); ok {
		return b.p
	}
	info := p.Info()
	return kit.Plugin{
		Name:         id,
		Version:      info.Version,
		Description:  info.Description,
		Capabilities: info.Capabilities,
		Tools:        p.Tools,
	}
}

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithLogger sets the logger used for registration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}
