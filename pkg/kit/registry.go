package kit

import (
	"log/slog"
	"sync"
)

// Capability classifies what a plugin's tools do to the ledger.
type Capability string

const (
	// CapabilityQuery tools only read.
	CapabilityQuery Capability = "query"
	// CapabilityTransaction tools build and submit transactions.
	CapabilityTransaction Capability = "transaction"
)

// Plugin groups related tools.
type Plugin struct {
	Name         string
	Version      string
	Description  string
	Capabilities []Capability
	// Tools builds the plugin tools for a context.
	Tools func(ctx Context) []Tool
}

// Has reports whether the plugin declares capability c.
func (p Plugin) Has(c Capability) bool {
	for _, candidate := range p.Capabilities {
		if candidate == c {
			return true
		}
	}
	return false
}

// Registry is a name → plugin map. Registering a name twice replaces the
// earlier plugin and logs a warning.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]Plugin
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards warnings.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger
	}
	return &Registry{plugins: make(map[string]Plugin), logger: logger}
}

// Register adds p, replacing a plugin of the same name.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.Name]; exists {
		r.logger.Warn("plugin already registered, overriding", "plugin", p.Name)
	} else {
		r.order = append(r.order, p.Name)
	}
	r.plugins[p.Name] = p
}

// Unregister removes a plugin by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; !exists {
		return
	}
	delete(r.plugins, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Plugins returns the registered plugins in first-registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// Tools flattens every plugin's tools for ctx.
func (r *Registry) Tools(ctx Context) []Tool {
	var out []Tool
	for _, p := range r.Plugins() {
		if p.Tools == nil {
			continue
		}
		out = append(out, p.Tools(ctx)...)
	}
	return out
}

// Clear removes every plugin.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.plugins = make(map[string]Plugin)
}
