package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManagerConfig describes how the plugin manager should behave.
type ManagerConfig struct {
	PluginDir string                  `yaml:"pluginDir"`
	Defaults  IsolationPolicy         `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
	// Tools is the tool allowlist handed to the toolkit; empty exposes all.
	Tools []string `yaml:"tools"`
}

// PluginConfig is the configuration block for a single plugin. Entries
// without a path refer to built-in plugins.
type PluginConfig struct {
	Enabled *bool            `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsEnabled reports whether the plugin is switched on. Plugins are enabled
// unless the flag is explicitly false.
func (c PluginConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsolationPolicy governs which capabilities a plugin may declare.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// ReadOnlyPolicy denies every plugin that submits transactions.
func ReadOnlyPolicy() IsolationPolicy {
	return IsolationPolicy{DeniedCapabilities: []Capability{CapabilityTransaction}}
}

// LoadManagerConfig reads a YAML file into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate ensures the manager configuration is internally consistent.
func (c ManagerConfig) Validate() error {
	for id := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
	}
	seen := make(map[string]struct{}, len(c.Tools))
	for _, tool := range c.Tools {
		if tool == "" {
			return errors.New("tool name cannot be empty")
		}
		if _, dup := seen[tool]; dup {
			return fmt.Errorf("tool %s listed twice", tool)
		}
		seen[tool] = struct{}{}
	}
	return nil
}
