package normalise

import (
	"context"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/shopspring/decimal"

	"hedera-agent-kit/pkg/kit/dispatch"
)

const (
	// DefaultFungibleMaxSupply is the max supply in display units of finite
	// fungible tokens created without one.
	DefaultFungibleMaxSupply = 1_000_000
	// DefaultNFTMaxSupply is the max supply of NFT collections created without
	// one.
	DefaultNFTMaxSupply int64 = 100
)

// CreateFungibleToken is the normalised form of CreateFungibleTokenParams.
// Supplies are in base units.
type CreateFungibleToken struct {
	Name          string
	Symbol        string
	Decimals      uint
	InitialSupply uint64
	SupplyType    hedera.TokenSupplyType
	MaxSupply     int64
	Treasury      hedera.AccountID
	SupplyKey     hedera.Key
	Memo          string
}

// NormaliseCreateFungibleToken applies the token defaults and checks that the
// initial supply fits under the max supply.
func NormaliseCreateFungibleToken(ctx context.Context, p CreateFungibleTokenParams, r *Resolver) (*CreateFungibleToken, error) {
	decimals := int32(0)
	if p.Decimals != nil {
		decimals = *p.Decimals
	}
	treasury, err := r.Account(p.TreasuryAccountID)
	if err != nil {
		return nil, err
	}
	out := &CreateFungibleToken{
		Name:     strings.TrimSpace(p.TokenName),
		Symbol:   strings.TrimSpace(p.TokenSymbol),
		Decimals: uint(decimals),
		Treasury: treasury,
		Memo:     p.TokenMemo,
	}

	if p.InitialSupply != nil {
		initial, err := ToBaseUnits(p.InitialSupply.Decimal, decimals)
		if err != nil {
			return nil, describeAmount("initialSupply", err)
		}
		out.InitialSupply = uint64(initial)
	}

	switch strings.ToLower(p.SupplyType) {
	case "", "finite":
		out.SupplyType = hedera.TokenSupplyTypeFinite
		maxDisplay := decimal.NewFromInt(DefaultFungibleMaxSupply)
		if p.MaxSupply != nil {
			maxDisplay = p.MaxSupply.Decimal
		}
		maxBase, err := ToBaseUnits(maxDisplay, decimals)
		if err != nil {
			return nil, describeAmount("maxSupply", err)
		}
		if maxBase <= 0 {
			return nil, invalid("maxSupply must be positive for finite tokens")
		}
		if out.InitialSupply > uint64(maxBase) {
			return nil, invalid("initialSupply %s exceeds maxSupply %s",
				DisplayString(int64(out.InitialSupply), decimals), DisplayString(maxBase, decimals))
		}
		out.MaxSupply = maxBase
	case "infinite":
		if p.MaxSupply != nil {
			return nil, invalid("maxSupply is only allowed for finite tokens")
		}
		out.SupplyType = hedera.TokenSupplyTypeInfinite
	default:
		return nil, invalidField("supplyType", p.SupplyType)
	}

	out.SupplyKey, err = p.SupplyKey.Resolve(ctx, r, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateNonFungibleToken is the normalised form of
// CreateNonFungibleTokenParams.
type CreateNonFungibleToken struct {
	Name      string
	Symbol    string
	MaxSupply int64
	Treasury  hedera.AccountID
	SupplyKey hedera.Key
	Memo      string
}

// NormaliseCreateNonFungibleToken always sets the default public key as the
// supply key, since a collection without one can never be minted.
func NormaliseCreateNonFungibleToken(ctx context.Context, p CreateNonFungibleTokenParams, r *Resolver) (*CreateNonFungibleToken, error) {
	treasury, err := r.Account(p.TreasuryAccountID)
	if err != nil {
		return nil, err
	}
	key, err := r.DefaultPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	maxSupply := DefaultNFTMaxSupply
	if p.MaxSupply != nil {
		maxSupply = *p.MaxSupply
	}
	return &CreateNonFungibleToken{
		Name:      strings.TrimSpace(p.TokenName),
		Symbol:    strings.TrimSpace(p.TokenSymbol),
		MaxSupply: maxSupply,
		Treasury:  treasury,
		SupplyKey: key,
		Memo:      p.TokenMemo,
	}, nil
}

// TokenAmount is one leg of a token transfer in base units.
type TokenAmount struct {
	AccountID hedera.AccountID
	Amount    int64
}

// AirdropFungibleToken is the normalised form of AirdropFungibleTokenParams.
type AirdropFungibleToken struct {
	TokenID   hedera.TokenID
	Decimals  int32
	Transfers []TokenAmount
	Memo      string
	Schedule  *dispatch.ScheduleOptions
}

// NormaliseAirdropFungibleToken converts every recipient amount with the
// token decimals from the mirror node and debits the source with the total.
func NormaliseAirdropFungibleToken(ctx context.Context, p AirdropFungibleTokenParams, r *Resolver) (*AirdropFungibleToken, error) {
	tokenID, err := ParseTokenID(p.TokenID)
	if err != nil {
		return nil, err
	}
	source, err := r.Account(p.SourceAccountID)
	if err != nil {
		return nil, err
	}
	decimals, err := r.TokenDecimals(ctx, tokenID.String())
	if err != nil {
		return nil, err
	}

	out := &AirdropFungibleToken{TokenID: tokenID, Decimals: decimals, Memo: p.TransactionMemo}
	var total int64
	for _, rcpt := range p.Recipients {
		account, err := ParseAccountID(rcpt.AccountID)
		if err != nil {
			return nil, err
		}
		if !rcpt.Amount.IsPositive() {
			return nil, invalid("airdrop amount for %s must be positive", rcpt.AccountID)
		}
		base, err := ToBaseUnits(rcpt.Amount.Decimal, decimals)
		if err != nil {
			return nil, describeAmount("amount", err)
		}
		if total, err = sumBaseUnits(total, base); err != nil {
			return nil, err
		}
		out.Transfers = append(out.Transfers, TokenAmount{AccountID: account, Amount: base})
	}
	out.Transfers = append(out.Transfers, TokenAmount{AccountID: source, Amount: -total})

	out.Schedule, err = Schedule(ctx, p.SchedulingParams, r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MintFungibleToken is the normalised form of MintFungibleTokenParams.
type MintFungibleToken struct {
	TokenID  hedera.TokenID
	Amount   uint64
	Decimals int32
	Schedule *dispatch.ScheduleOptions
}

// NormaliseMintFungibleToken converts the amount with mirror node decimals.
func NormaliseMintFungibleToken(ctx context.Context, p MintFungibleTokenParams, r *Resolver) (*MintFungibleToken, error) {
	tokenID, err := ParseTokenID(p.TokenID)
	if err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	decimals, err := r.TokenDecimals(ctx, tokenID.String())
	if err != nil {
		return nil, err
	}
	base, err := ToBaseUnits(p.Amount.Decimal, decimals)
	if err != nil {
		return nil, describeAmount("amount", err)
	}
	schedule, err := Schedule(ctx, p.SchedulingParams, r)
	if err != nil {
		return nil, err
	}
	return &MintFungibleToken{TokenID: tokenID, Amount: uint64(base), Decimals: decimals, Schedule: schedule}, nil
}

// MintNonFungibleToken is the normalised form of MintNonFungibleTokenParams.
type MintNonFungibleToken struct {
	TokenID  hedera.TokenID
	Metadata [][]byte
	Schedule *dispatch.ScheduleOptions
}

// NormaliseMintNonFungibleToken encodes each URI as serial metadata.
func NormaliseMintNonFungibleToken(ctx context.Context, p MintNonFungibleTokenParams, r *Resolver) (*MintNonFungibleToken, error) {
	tokenID, err := ParseTokenID(p.TokenID)
	if err != nil {
		return nil, err
	}
	out := &MintNonFungibleToken{TokenID: tokenID}
	for _, uri := range p.URIs {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			return nil, invalid("uris must not contain empty entries")
		}
		out.Metadata = append(out.Metadata, []byte(uri))
	}
	out.Schedule, err = Schedule(ctx, p.SchedulingParams, r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TokenAssociation is the normalised form of TokenAssociationParams.
type TokenAssociation struct {
	AccountID hedera.AccountID
	TokenIDs  []hedera.TokenID
	Memo      string
}

// NormaliseTokenAssociation defaults the account and drops duplicate tokens.
func NormaliseTokenAssociation(p TokenAssociationParams, r *Resolver) (*TokenAssociation, error) {
	account, err := r.Account(p.AccountID)
	if err != nil {
		return nil, err
	}
	out := &TokenAssociation{AccountID: account, Memo: p.TransactionMemo}
	seen := make(map[string]struct{}, len(p.TokenIDs))
	for _, raw := range p.TokenIDs {
		id, err := ParseTokenID(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id.String()]; dup {
			continue
		}
		seen[id.String()] = struct{}{}
		out.TokenIDs = append(out.TokenIDs, id)
	}
	return out, nil
}
