package normalise

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/mirror"
)

var (
	// ErrAccountRequired is returned when no account can be defaulted.
	ErrAccountRequired = kit.ErrAccountRequired
	// ErrMirrorUnavailable is returned when a normaliser needs the mirror node
	// but the runtime has none.
	ErrMirrorUnavailable = errors.New("mirror node service is not configured")
)

// Resolver fills defaults from the runtime: the acting account, its public
// key and token metadata from the mirror node.
type Resolver struct {
	rt *kit.Runtime
}

// NewResolver binds a resolver to rt.
func NewResolver(rt *kit.Runtime) *Resolver {
	return &Resolver{rt: rt}
}

// Runtime returns the bound runtime.
func (r *Resolver) Runtime() *kit.Runtime { return r.rt }

// DefaultAccountID is the context account, else the operator. In
// returnBytes mode only the context account is acceptable.
func (r *Resolver) DefaultAccountID() (hedera.AccountID, error) {
	if r.rt == nil {
		return hedera.AccountID{}, ErrAccountRequired
	}
	if id := strings.TrimSpace(r.rt.Context.AccountID); id != "" {
		return ParseAccountID(id)
	}
	if r.rt.Context.EffectiveMode() == kit.ModeReturnBytes {
		return hedera.AccountID{}, ErrAccountRequired
	}
	if operator, ok := r.rt.OperatorAccountID(); ok {
		return operator, nil
	}
	return hedera.AccountID{}, ErrAccountRequired
}

// Account parses raw, falling back to the default account when raw is empty.
func (r *Resolver) Account(raw string) (hedera.AccountID, error) {
	if strings.TrimSpace(raw) == "" {
		return r.DefaultAccountID()
	}
	return ParseAccountID(raw)
}

// DefaultPublicKey is the context key, else the operator key in autonomous
// mode, else the key the mirror node reports for the default account.
func (r *Resolver) DefaultPublicKey(ctx context.Context) (hedera.PublicKey, error) {
	if r.rt != nil && r.rt.Context.AccountPublicKey != "" {
		key, err := hedera.PublicKeyFromString(r.rt.Context.AccountPublicKey)
		if err != nil {
			return hedera.PublicKey{}, fmt.Errorf("invalid context public key: %w", err)
		}
		return key, nil
	}
	if r.rt != nil && r.rt.Client != nil && r.rt.Context.EffectiveMode() == kit.ModeAutonomous {
		if _, ok := r.rt.OperatorAccountID(); ok {
			return r.rt.Client.GetOperatorPublicKey(), nil
		}
	}

	account, err := r.DefaultAccountID()
	if err != nil {
		return hedera.PublicKey{}, err
	}
	svc, err := r.mirror()
	if err != nil {
		return hedera.PublicKey{}, err
	}
	info, err := svc.GetAccount(ctx, account.String())
	if err != nil {
		return hedera.PublicKey{}, fmt.Errorf("look up key of %s: %w", account, err)
	}
	if info.Key == nil || info.Key.Key == "" {
		return hedera.PublicKey{}, fmt.Errorf("account %s has no single public key", account)
	}
	return PublicKeyFromMirror(*info.Key)
}

// TokenDecimals fetches the decimals of a token from the mirror node.
func (r *Resolver) TokenDecimals(ctx context.Context, tokenID string) (int32, error) {
	svc, err := r.mirror()
	if err != nil {
		return 0, err
	}
	info, err := svc.GetTokenInfo(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("look up token %s: %w", tokenID, err)
	}
	return info.DecimalPlaces()
}

func (r *Resolver) mirror() (mirror.Service, error) {
	if r.rt == nil || r.rt.Mirror == nil {
		return nil, ErrMirrorUnavailable
	}
	return r.rt.Mirror, nil
}

// PublicKeyFromMirror decodes a mirror node key by its declared type.
func PublicKeyFromMirror(k mirror.Key) (hedera.PublicKey, error) {
	switch strings.ToUpper(k.Type) {
	case "ED25519":
		return hedera.PublicKeyFromStringEd25519(k.Key)
	case "ECDSA_SECP256K1":
		return hedera.PublicKeyFromStringECDSA(k.Key)
	default:
		return hedera.PublicKeyFromString(k.Key)
	}
}

// ParseAccountID parses shard.realm.num.
func ParseAccountID(raw string) (hedera.AccountID, error) {
	id, err := hedera.AccountIDFromString(strings.TrimSpace(raw))
	if err != nil {
		return hedera.AccountID{}, kit.Invalid("invalid account id %q", raw)
	}
	return id, nil
}

// ParseTokenID parses shard.realm.num.
func ParseTokenID(raw string) (hedera.TokenID, error) {
	id, err := hedera.TokenIDFromString(strings.TrimSpace(raw))
	if err != nil {
		return hedera.TokenID{}, kit.Invalid("invalid token id %q", raw)
	}
	return id, nil
}

// ParseTopicID parses shard.realm.num.
func ParseTopicID(raw string) (hedera.TopicID, error) {
	id, err := hedera.TopicIDFromString(strings.TrimSpace(raw))
	if err != nil {
		return hedera.TopicID{}, kit.Invalid("invalid topic id %q", raw)
	}
	return id, nil
}

// ParseScheduleID parses shard.realm.num.
func ParseScheduleID(raw string) (hedera.ScheduleID, error) {
	id, err := hedera.ScheduleIDFromString(strings.TrimSpace(raw))
	if err != nil {
		return hedera.ScheduleID{}, kit.Invalid("invalid schedule id %q", raw)
	}
	return id, nil
}

// ParsePublicKey parses a DER or raw hex public key.
func ParsePublicKey(raw string) (hedera.PublicKey, error) {
	key, err := hedera.PublicKeyFromString(strings.TrimSpace(raw))
	if err != nil {
		return hedera.PublicKey{}, kit.Invalid("invalid public key: %v", err)
	}
	return key, nil
}
