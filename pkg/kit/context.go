package kit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/mirror"
)

// Mode selects how transaction tools finish their work.
type Mode string

const (
	// ModeAutonomous executes transactions with the operator key held by the
	// client.
	ModeAutonomous Mode = "autonomous"
	// ModeReturnBytes freezes transactions and returns their bytes so that an
	// external wallet can sign and submit them.
	ModeReturnBytes Mode = "returnBytes"
)

// ParseMode accepts the canonical names plus "human" as an alias of
// returnBytes. An empty string yields autonomous.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "autonomous", "auto":
		return ModeAutonomous, nil
	case "returnbytes", "return_bytes", "return-bytes", "human":
		return ModeReturnBytes, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

func (m Mode) String() string { return string(m) }

// Context describes on whose behalf tools act.
type Context struct {
	// AccountID is the acting account. Required in returnBytes mode.
	AccountID string `json:"accountId,omitempty"`
	// AccountPublicKey avoids a mirror lookup when a default key is needed.
	AccountPublicKey string `json:"accountPublicKey,omitempty"`
	Mode             Mode   `json:"mode,omitempty"`
}

// EffectiveMode returns the configured mode, defaulting to autonomous.
func (c Context) EffectiveMode() Mode {
	if c.Mode == "" {
		return ModeAutonomous
	}
	return c.Mode
}

// Validate checks that the context is usable for its mode.
func (c Context) Validate() error {
	switch c.EffectiveMode() {
	case ModeAutonomous:
	case ModeReturnBytes:
		if strings.TrimSpace(c.AccountID) == "" {
			return ErrAccountRequired
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.AccountID != "" {
		if _, err := hedera.AccountIDFromString(c.AccountID); err != nil {
			return fmt.Errorf("invalid context account %q: %w", c.AccountID, err)
		}
	}
	return nil
}

// Runtime is everything a tool executes against.
type Runtime struct {
	Client    *hedera.Client
	Context   Context
	Mirror    mirror.Service
	Submitter Submitter
	Logger    *slog.Logger
}

// Log returns the runtime logger or a discarding one.
func (r *Runtime) Log() *slog.Logger {
	if r == nil || r.Logger == nil {
		return discardLogger
	}
	return r.Logger
}

// OperatorAccountID returns the client operator, when one is configured.
func (r *Runtime) OperatorAccountID() (hedera.AccountID, bool) {
	if r == nil || r.Client == nil {
		return hedera.AccountID{}, false
	}
	id := r.Client.GetOperatorAccountID()
	if id.Account == 0 && id.Shard == 0 && id.Realm == 0 {
		return hedera.AccountID{}, false
	}
	return id, true
}
