package plugin

import "hedera-agent-kit/pkg/kit"

// Capability re-exports the toolkit capability so plugin manifests and
// policies share one vocabulary.
type Capability = kit.Capability

const (
	CapabilityQuery       = kit.CapabilityQuery
	CapabilityTransaction = kit.CapabilityTransaction
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Capabilities []Capability
}

// State represents the position of a plugin in the manager.
type State string

const (
	StateRegistered State = "registered"
	StateDisabled   State = "disabled"
	StateDenied     State = "denied"
)

// Source tells where a plugin came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceBinary  Source = "binary"
	SourceManual  Source = "manual"
)
