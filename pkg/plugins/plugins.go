// Package plugins bundles the core Hedera plugins.
package plugins

import (
	"sort"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/plugins/account"
	"hedera-agent-kit/pkg/plugins/consensus"
	"hedera-agent-kit/pkg/plugins/evm"
	"hedera-agent-kit/pkg/plugins/queries"
	"hedera-agent-kit/pkg/plugins/token"
)

// Core returns every built-in plugin in registration order.
func Core() []kit.Plugin {
	return []kit.Plugin{
		account.Plugin(),
		consensus.Plugin(),
		token.Plugin(),
		evm.Plugin(),
		queries.Plugin(),
	}
}

// ByName returns the built-in plugin called name.
func ByName(name string) (kit.Plugin, bool) {
	for _, p := range Core() {
		if p.Name == name {
			return p, true
		}
	}
	return kit.Plugin{}, false
}

// Names lists the built-in plugin names, sorted.
func Names() []string {
	core := Core()
	names := make([]string, 0, len(core))
	for _, p := range core {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
