package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainSnapshot 汇总 JSON-RPC 中继返回的链信息。
type ChainSnapshot struct {
	ChainID     string `json:"chainId"`
	BlockNumber string `json:"blockNumber"`
	Notes       string `json:"notes,omitempty"`
}

// TokenBalance 描述某个持有者的 ERC-20 余额。
type TokenBalance struct {
	Contract common.Address `json:"contract"`
	Holder   common.Address `json:"holder"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Balance  *big.Int       `json:"balance"`
}

// Client 抽象了通过 Hedera JSON-RPC 中继进行的只读 EVM 访问。
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	NativeBalance(ctx context.Context, address common.Address) (*big.Int, error)
	ERC20Balance(ctx context.Context, contract, holder common.Address) (TokenBalance, error)
	Close()
}
