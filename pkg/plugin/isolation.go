package plugin

import (
	"fmt"
	"slices"
)

// IsolationStrategy enforces capability restrictions for plugins.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
}

// CapabilityIsolationStrategy performs capability validation only.
type CapabilityIsolationStrategy struct{}

// Validate ensures the plugin requested capabilities are allowed.
func (CapabilityIsolationStrategy) Validate(info Info, policy IsolationPolicy) error {
	for _, c := range policy.DeniedCapabilities {
		if slices.Contains(info.Capabilities, c) {
			return fmt.Errorf("capability %s is explicitly denied", c)
		}
	}
	if len(policy.AllowedCapabilities) == 0 {
		return nil
	}
	for _, c := range info.Capabilities {
		if !slices.Contains(policy.AllowedCapabilities, c) {
			return fmt.Errorf("capability %s not permitted", c)
		}
	}
	return nil
}

// NewIsolationStrategy returns a default isolation strategy if none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return CapabilityIsolationStrategy{}
	}
	return strategy
}

// MergePolicies combines the default and plugin specific isolation policies.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	return plugin.Merge(defaults)
}
