package normalise

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/mirror"
)

// DefaultERC20Decimals is used when create_erc20_tool gets no decimals.
const DefaultERC20Decimals uint8 = 18

// EVMAddress resolves a Hedera id or EVM address to the address contracts
// see. Hedera ids are looked up on the mirror node so that accounts with an
// alias resolve to it; entities unknown to the mirror node, or without an
// alias, use the long-zero address. Other mirror failures are returned.
func (r *Resolver) EVMAddress(ctx context.Context, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if kit.IsEVMAddress(raw) {
		return common.HexToAddress(raw), nil
	}
	if !kit.IsHederaAddress(raw) {
		return common.Address{}, invalid("%q is neither a Hedera id nor an EVM address", raw)
	}
	if svc, err := r.mirror(); err == nil {
		account, err := svc.GetAccount(ctx, raw)
		switch {
		case err == nil:
			if kit.IsEVMAddress(account.EVMAddress) {
				return common.HexToAddress(account.EVMAddress), nil
			}
		case !errors.Is(err, mirror.ErrNotFound):
			return common.Address{}, fmt.Errorf("look up %s: %w", raw, err)
		}
	}
	return kit.ToEVMAddress(raw)
}

// ContractID resolves a contract given as Hedera id or EVM address.
func (r *Resolver) ContractID(ctx context.Context, raw string) (hedera.ContractID, error) {
	raw = strings.TrimSpace(raw)
	if kit.IsHederaAddress(raw) {
		id, err := hedera.ContractIDFromString(raw)
		if err != nil {
			return hedera.ContractID{}, invalidField("contractId", raw)
		}
		return id, nil
	}
	if !kit.IsEVMAddress(raw) {
		return hedera.ContractID{}, invalidField("contractId", raw)
	}
	if svc, err := r.mirror(); err == nil {
		info, err := svc.GetContractInfo(ctx, raw)
		switch {
		case err == nil:
			if id, err := hedera.ContractIDFromString(info.ContractID); err == nil {
				return id, nil
			}
		case !errors.Is(err, mirror.ErrNotFound):
			return hedera.ContractID{}, fmt.Errorf("look up contract %s: %w", raw, err)
		}
	}
	id, err := hedera.ContractIDFromEvmAddress(0, 0, strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return hedera.ContractID{}, fmt.Errorf("contract from evm address: %w", err)
	}
	return id, nil
}

// TransferERC20 is the normalised form of TransferERC20Params.
type TransferERC20 struct {
	Contract  hedera.ContractID
	Recipient common.Address
	Amount    *big.Int
}

// NormaliseTransferERC20 resolves both addresses. The amount is in base
// units and must be a whole number.
func NormaliseTransferERC20(ctx context.Context, p TransferERC20Params, r *Resolver) (*TransferERC20, error) {
	contract, err := r.ContractID(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	recipient, err := r.EVMAddress(ctx, p.RecipientAddress)
	if err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	if !p.Amount.Equal(p.Amount.Truncate(0)) {
		return nil, invalid("amount must be a whole number of base units")
	}
	return &TransferERC20{Contract: contract, Recipient: recipient, Amount: p.Amount.BigInt()}, nil
}

// MintERC721 is the normalised form of MintERC721Params.
type MintERC721 struct {
	Contract hedera.ContractID
	To       common.Address
}

// NormaliseMintERC721 defaults the recipient to the acting account.
func NormaliseMintERC721(ctx context.Context, p MintERC721Params, r *Resolver) (*MintERC721, error) {
	contract, err := r.ContractID(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	to := p.ToAddress
	if strings.TrimSpace(to) == "" {
		account, err := r.DefaultAccountID()
		if err != nil {
			return nil, err
		}
		to = account.String()
	}
	addr, err := r.EVMAddress(ctx, to)
	if err != nil {
		return nil, err
	}
	return &MintERC721{Contract: contract, To: addr}, nil
}
