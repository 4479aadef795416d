package web3

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/normalise"
)

// PluginName 为中继查询插件的名称。
const PluginName = "relay-evm-query-plugin"

// 工具方法名。
const (
	GetEVMChainInfo = "get_evm_chain_info_query_tool"
	GetERC20Balance = "get_erc20_balance_query_tool"
)

// ChainInfoParams 无需参数。
type ChainInfoParams struct{}

// ERC20BalanceParams 为 get_erc20_balance_query_tool 的参数。
type ERC20BalanceParams struct {
	ContractID string `json:"contractId" validate:"required" jsonschema_description:"Token contract as Hedera id or EVM address"`
	AccountID  string `json:"accountId,omitempty" jsonschema_description:"Holder; defaults to the acting account"`
}

// Plugin 将中继客户端包装为只读插件。
func Plugin(client Client) kit.Plugin {
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Read EVM state through the Hedera JSON-RPC relay",
		Capabilities: []kit.Capability{kit.CapabilityQuery},
		Tools: func(kit.Context) []kit.Tool {
			if client == nil {
				return nil
			}
			q := relayQueries{client: client}
			return []kit.Tool{
				kit.NewTool(GetEVMChainInfo, "Get EVM Chain Info",
					"Return the EVM chain id and latest block number reported by the JSON-RPC relay.",
					"Failed to get EVM chain info", q.chainInfo),
				kit.NewTool(GetERC20Balance, "Get ERC20 Balance",
					"Return the ERC-20 balance of an account (the acting account by default) read with eth_call.",
					"Failed to get ERC20 balance", q.erc20Balance),
			}
		},
	}
}

type relayQueries struct {
	client Client
}

func (q relayQueries) chainInfo(ctx context.Context, _ *kit.Runtime, _ ChainInfoParams) (*kit.Result, error) {
	snapshot, err := q.client.FetchChainSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &kit.Result{
		HumanMessage: fmt.Sprintf("EVM chain id %s, latest block %s", snapshot.ChainID, snapshot.BlockNumber),
		Raw:          snapshot,
	}, nil
}

func (q relayQueries) erc20Balance(ctx context.Context, rt *kit.Runtime, p ERC20BalanceParams) (*kit.Result, error) {
	resolver := normalise.NewResolver(rt)
	contract, err := resolver.EVMAddress(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	holderRaw := strings.TrimSpace(p.AccountID)
	if holderRaw == "" {
		id, err := resolver.DefaultAccountID()
		if err != nil {
			return nil, err
		}
		holderRaw = id.String()
	}
	holder, err := resolver.EVMAddress(ctx, holderRaw)
	if err != nil {
		return nil, err
	}

	balance, err := q.client.ERC20Balance(ctx, contract, holder)
	if err != nil {
		return nil, err
	}
	display := decimal.NewFromBigInt(balance.Balance, -int32(balance.Decimals)).String()
	symbol := balance.Symbol
	if symbol == "" {
		symbol = contract.Hex()
	}
	return &kit.Result{
		HumanMessage: fmt.Sprintf("Account %s holds %s %s", holderRaw, display, symbol),
		Raw:          balance,
	}, nil
}
