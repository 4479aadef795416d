package normalise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/invopop/jsonschema"

	"hedera-agent-kit/pkg/kit/dispatch"
)

// KeyOption is a key parameter given either as a public key string or as a
// boolean, where true asks for the default public key and false for no key.
type KeyOption struct {
	// Provided is false when the field was absent.
	Provided  bool
	Enabled   bool
	PublicKey string
}

// UnmarshalJSON accepts true, false, null or a key string.
func (k *KeyOption) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*k = KeyOption{Provided: true}
	switch {
	case bytes.Equal(data, []byte("null")):
		k.Provided = false
	case bytes.Equal(data, []byte("true")):
		k.Enabled = true
	case bytes.Equal(data, []byte("false")):
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("key must be a boolean or a public key string")
		}
		s = strings.TrimSpace(s)
		switch strings.ToLower(s) {
		case "", "false":
		case "true":
			k.Enabled = true
		default:
			k.Enabled = true
			k.PublicKey = s
		}
	}
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (k KeyOption) MarshalJSON() ([]byte, error) {
	switch {
	case !k.Provided:
		return []byte("null"), nil
	case k.PublicKey != "":
		return json.Marshal(k.PublicKey)
	default:
		return json.Marshal(k.Enabled)
	}
}

// JSONSchema describes the boolean-or-string shape.
func (KeyOption) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{{Type: "boolean"}, {Type: "string"}},
	}
}

// EnabledKey builds a KeyOption asking for the default key.
func EnabledKey() KeyOption { return KeyOption{Provided: true, Enabled: true} }

// Resolve returns the key to set, or nil. defaultOn decides the outcome when
// the field was absent.
func (k KeyOption) Resolve(ctx context.Context, r *Resolver, defaultOn bool) (hedera.Key, error) {
	enabled := k.Enabled
	if !k.Provided {
		enabled = defaultOn
	}
	if !enabled {
		return nil, nil
	}
	if k.PublicKey != "" {
		return ParsePublicKey(k.PublicKey)
	}
	return r.DefaultPublicKey(ctx)
}

// SchedulingParams ask a transaction tool to wrap its transaction in a
// ScheduleCreate instead of executing it directly.
type SchedulingParams struct {
	IsScheduled    bool      `json:"isScheduled" jsonschema_description:"Create a scheduled transaction instead of executing immediately"`
	AdminKey       KeyOption `json:"adminKey,omitempty" jsonschema_description:"true for the default key, or a public key that may delete the schedule"`
	PayerAccountID string    `json:"payerAccountId,omitempty" jsonschema_description:"Account paying for the scheduled transaction"`
	ExpirationTime string    `json:"expirationTime,omitempty" jsonschema_description:"RFC3339 time after which the schedule expires"`
	WaitForExpiry  bool      `json:"waitForExpiry,omitempty" jsonschema_description:"Execute at expiration time instead of when signatures are collected"`
}

// Schedule normalises p. A nil result means the transaction is not scheduled.
func Schedule(ctx context.Context, p *SchedulingParams, r *Resolver) (*dispatch.ScheduleOptions, error) {
	if p == nil || !p.IsScheduled {
		return nil, nil
	}
	opts := &dispatch.ScheduleOptions{WaitForExpiry: p.WaitForExpiry}

	key, err := p.AdminKey.Resolve(ctx, r, false)
	if err != nil {
		return nil, err
	}
	opts.AdminKey = key

	if p.PayerAccountID != "" {
		payer, err := ParseAccountID(p.PayerAccountID)
		if err != nil {
			return nil, err
		}
		opts.PayerAccountID = &payer
	}
	if p.ExpirationTime != "" {
		expiry, err := time.Parse(time.RFC3339, p.ExpirationTime)
		if err != nil {
			return nil, invalidField("expirationTime", p.ExpirationTime)
		}
		if !expiry.After(time.Now()) {
			return nil, invalid("expirationTime %q must be in the future", p.ExpirationTime)
		}
		opts.ExpirationTime = &expiry
	}
	if p.WaitForExpiry && opts.ExpirationTime == nil {
		return nil, invalid("waitForExpiry requires expirationTime")
	}
	return opts, nil
}
