package plugin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"hedera-agent-kit/pkg/kit"
)

// Manager keeps track of configured plugins and turns them into a toolkit
// registry.
type Manager struct {
	mu        sync.RWMutex
	registry  map[string]*instance
	order     []string
	loader    Loader
	isolation IsolationStrategy
	logger    *slog.Logger
	cfg       ManagerConfig
}

type instance struct {
	Plugin Plugin
	Info   Info
	State  State
	Config map[string]any
	Policy IsolationPolicy
	Source Source
	Reason string
}

// Status describes a managed plugin.
type Status struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
	State        State        `json:"state"`
	Source       Source       `json:"source"`
	Reason       string       `json:"reason,omitempty"`
}

// NewManager constructs a manager and loads the enabled binary plugins of cfg.
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	m := &Manager{
		registry:  make(map[string]*instance),
		loader:    GoPluginLoader{},
		isolation: NewIsolationStrategy(nil),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.isolation = NewIsolationStrategy(m.isolation)
	if err := m.loadConfigured(); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds a plugin instance. Registering an id twice replaces the
// earlier plugin with a warning. A plugin whose capabilities violate its
// policy is kept in the denied state and contributes no tools.
func (m *Manager) Register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy) error {
	return m.register(id, p, cfg, policy, SourceManual)
}

func (m *Manager) register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy, source Source) error {
	if id == "" {
		return errors.New("plugin id cannot be empty")
	}
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	info := p.Info()
	if info.ID != "" && info.ID != id {
		return fmt.Errorf("plugin id mismatch: %s != %s", info.ID, id)
	}
	info = mergeInfo(info, id)
	if cfg == nil {
		cfg = map[string]any{}
	}

	inst := &instance{Plugin: p, Info: info, State: StateRegistered, Config: cfg, Policy: policy, Source: source}
	if err := m.isolation.Validate(info, policy); err != nil {
		inst.State = StateDenied
		inst.Reason = err.Error()
		m.logger.Info("plugin denied by isolation policy", "plugin", id, "reason", inst.Reason)
	} else if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("configure plugin %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[id]; exists {
		m.logger.Warn("plugin already registered, overriding", "plugin", id)
	} else {
		m.order = append(m.order, id)
	}
	m.registry[id] = inst
	return nil
}

// Load loads a plugin implementation from disk and registers it.
func (m *Manager) Load(id string, path string, cfg map[string]any, policy IsolationPolicy) error {
	if path == "" {
		return errors.New("plugin path cannot be empty")
	}
	p, err := m.loader.Load(path)
	if err != nil {
		return fmt.Errorf("load plugin from %s: %w", path, err)
	}
	return m.register(id, p, cfg, policy, SourceBinary)
}

// AddBuiltins registers toolkit plugins under the configured policies.
// Plugins switched off in the configuration are recorded as disabled.
func (m *Manager) AddBuiltins(builtins ...kit.Plugin) error {
	for _, p := range builtins {
		pc := m.cfg.Plugins[p.Name]
		if !pc.IsEnabled() {
			m.mu.Lock()
			if _, exists := m.registry[p.Name]; !exists {
				m.order = append(m.order, p.Name)
			}
			m.registry[p.Name] = &instance{
				Plugin: Builtin(p),
				Info:   Builtin(p).Info(),
				State:  StateDisabled,
				Source: SourceBuiltin,
			}
			m.mu.Unlock()
			continue
		}
		policy := MergePolicies(m.cfg.Defaults, pc.Policy)
		if err := m.register(p.Name, Builtin(p), cloneConfig(pc.Config), policy, SourceBuiltin); err != nil {
			return err
		}
	}
	return nil
}

// Registry builds a toolkit registry of the registered plugins, in
// registration order.
func (m *Manager) Registry() *kit.Registry {
	reg := kit.NewRegistry(m.logger)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		inst := m.registry[id]
		if inst.State != StateRegistered {
			continue
		}
		reg.Register(toKit(id, inst.Plugin))
	}
	return reg
}

// Tools returns the configured tool allowlist.
func (m *Manager) Tools() []string {
	out := make([]string, len(m.cfg.Tools))
	copy(out, m.cfg.Tools)
	return out
}

// Build registers builtins and returns the registry and tool allowlist to
// hand to kit.NewToolkit.
func (m *Manager) Build(builtins ...kit.Plugin) (*kit.Registry, []string, error) {
	if err := m.AddBuiltins(builtins...); err != nil {
		return nil, nil, err
	}
	return m.Registry(), m.Tools(), nil
}

// State returns the state of a plugin.
func (m *Manager) State(id string) (State, error) {
	inst, err := m.get(id)
	if err != nil {
		return "", err
	}
	return inst.State, nil
}

// Statuses lists every known plugin sorted by id.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.registry))
	for id, inst := range m.registry {
		out = append(out, Status{
			ID:           id,
			Name:         inst.Info.Name,
			Version:      inst.Info.Version,
			Description:  inst.Info.Description,
			Capabilities: inst.Info.Capabilities,
			State:        inst.State,
			Source:       inst.Source,
			Reason:       inst.Reason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) get(id string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.registry[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s not registered", id)
	}
	return inst, nil
}

func (m *Manager) loadConfigured() error {
	ids := make([]string, 0, len(m.cfg.Plugins))
	for id := range m.cfg.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pluginCfg := m.cfg.Plugins[id]
		if !pluginCfg.IsEnabled() || pluginCfg.Path == "" {
			continue
		}
		path := pluginCfg.Path
		if !filepath.IsAbs(path) && m.cfg.PluginDir != "" {
			path = filepath.Join(m.cfg.PluginDir, path)
		}
		policy := MergePolicies(m.cfg.Defaults, pluginCfg.Policy)
		if err := m.Load(id, path, cloneConfig(pluginCfg.Config), policy); err != nil {
			return err
		}
	}
	return nil
}

func mergeInfo(info Info, id string) Info {
	if info.ID == "" {
		info.ID = id
	}
	if info.Name == "" {
		info.Name = id
	}
	return info
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}
