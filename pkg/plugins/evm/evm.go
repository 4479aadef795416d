// Package evm provides the core EVM plugin: ERC-20 and ERC-721 tokens
// deployed through factory contracts and driven with ABI encoded calls.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
	"hedera-agent-kit/pkg/kit/normalise"
)

// PluginName identifies the plugin in a registry.
const PluginName = "core-evm-plugin"

// Tool methods.
const (
	CreateERC20   = "create_erc20_tool"
	TransferERC20 = "transfer_erc20_tool"
	CreateERC721  = "create_erc721_tool"
	MintERC721    = "mint_erc721_tool"
)

// Factory contracts deployed on testnet.
const (
	TestnetERC20Factory  = "0.0.6471814"
	TestnetERC721Factory = "0.0.6510666"
)

const (
	deployGas   uint64 = 3_000_000
	transferGas uint64 = 100_000
)

const erc20FactoryABI = `[{"type":"function","name":"deployToken","stateMutability":"nonpayable",
"inputs":[{"name":"name_","type":"string"},{"name":"symbol_","type":"string"},{"name":"decimals_","type":"uint8"},{"name":"initialSupply","type":"uint256"}],
"outputs":[{"name":"","type":"address"}]}]`

const erc721FactoryABI = `[{"type":"function","name":"deployToken","stateMutability":"nonpayable",
"inputs":[{"name":"name_","type":"string"},{"name":"symbol_","type":"string"},{"name":"baseURI_","type":"string"}],
"outputs":[{"name":"","type":"address"}]}]`

const erc20ABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
"outputs":[{"name":"","type":"bool"}]}]`

const erc721ABI = `[{"type":"function","name":"safeMint","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"}],"outputs":[]}]`

var (
	erc20Factory  = mustParseABI(erc20FactoryABI)
	erc721Factory = mustParseABI(erc721FactoryABI)
	erc20         = mustParseABI(erc20ABI)
	erc721        = mustParseABI(erc721ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("evm: parse abi: %v", err))
	}
	return parsed
}

// Config points the plugin at its factory contracts.
type Config struct {
	ERC20Factory  string `json:"erc20_factory" yaml:"erc20_factory"`
	ERC721Factory string `json:"erc721_factory" yaml:"erc721_factory"`
}

func (c Config) withDefaults() Config {
	if c.ERC20Factory == "" {
		c.ERC20Factory = TestnetERC20Factory
	}
	if c.ERC721Factory == "" {
		c.ERC721Factory = TestnetERC721Factory
	}
	return c
}

// Plugin returns the EVM plugin using the testnet factories.
func Plugin() kit.Plugin {
	return New(Config{})
}

// New returns the EVM plugin for cfg.
func New(cfg Config) kit.Plugin {
	cfg = cfg.withDefaults()
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Deploy and operate ERC-20 and ERC-721 tokens through factory contracts",
		Capabilities: []kit.Capability{kit.CapabilityTransaction},
		Tools: func(kit.Context) []kit.Tool {
			return cfg.tools()
		},
	}
}

func (c Config) tools() []kit.Tool {
	return []kit.Tool{
		kit.NewTool(CreateERC20, "Create ERC20 Token",
			"Deploy an ERC-20 token through the factory contract. Decimals default to 18; the initial supply is in base units.",
			"Failed to create ERC20 token", c.createERC20),
		kit.NewTool(TransferERC20, "Transfer ERC20 Token",
			"Transfer ERC-20 tokens. The amount is in base units; addresses may be Hedera ids or EVM addresses.",
			"Failed to transfer ERC20", transferERC20),
		kit.NewTool(CreateERC721, "Create ERC721 Token",
			"Deploy an ERC-721 collection through the factory contract.",
			"Failed to create ERC721 token", c.createERC721),
		kit.NewTool(MintERC721, "Mint ERC721 Token",
			"Mint one ERC-721 token to an address (the acting account by default).",
			"Failed to mint ERC721", mintERC721),
	}
}

func (c Config) createERC20(ctx context.Context, rt *kit.Runtime, p normalise.CreateERC20Params) (*kit.Result, error) {
	factory, err := hedera.ContractIDFromString(c.ERC20Factory)
	if err != nil {
		return nil, fmt.Errorf("erc20 factory %q: %w", c.ERC20Factory, err)
	}
	decimals := normalise.DefaultERC20Decimals
	if p.Decimals != nil {
		decimals = *p.Decimals
	}
	supply := big.NewInt(0)
	if p.InitialSupply != nil {
		supply = big.NewInt(*p.InitialSupply)
	}
	data, err := erc20Factory.Pack("deployToken", p.TokenName, p.TokenSymbol, decimals, supply)
	if err != nil {
		return nil, fmt.Errorf("encode deployToken: %w", err)
	}
	tx := hedera.NewContractExecuteTransaction().
		SetContractID(factory).
		SetGas(deployGas).
		SetFunctionParameters(data)
	return dispatch.Handle(ctx, rt, tx, deployedMessage("ERC20", erc20Factory), dispatch.WithRecord())
}

func (c Config) createERC721(ctx context.Context, rt *kit.Runtime, p normalise.CreateERC721Params) (*kit.Result, error) {
	factory, err := hedera.ContractIDFromString(c.ERC721Factory)
	if err != nil {
		return nil, fmt.Errorf("erc721 factory %q: %w", c.ERC721Factory, err)
	}
	data, err := erc721Factory.Pack("deployToken", p.TokenName, p.TokenSymbol, p.BaseURI)
	if err != nil {
		return nil, fmt.Errorf("encode deployToken: %w", err)
	}
	tx := hedera.NewContractExecuteTransaction().
		SetContractID(factory).
		SetGas(deployGas).
		SetFunctionParameters(data)
	return dispatch.Handle(ctx, rt, tx, deployedMessage("ERC721", erc721Factory), dispatch.WithRecord())
}

func transferERC20(ctx context.Context, rt *kit.Runtime, p normalise.TransferERC20Params) (*kit.Result, error) {
	n, err := normalise.NormaliseTransferERC20(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	data, err := erc20.Pack("transfer", n.Recipient, n.Amount)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	tx := hedera.NewContractExecuteTransaction().
		SetContractID(n.Contract).
		SetGas(transferGas).
		SetFunctionParameters(data)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Transferred %s base units of ERC20 %s to %s.\nTransaction ID: %s",
			n.Amount, n.Contract, n.Recipient.Hex(), raw.TransactionID)
	})
}

func mintERC721(ctx context.Context, rt *kit.Runtime, p normalise.MintERC721Params) (*kit.Result, error) {
	n, err := normalise.NormaliseMintERC721(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	data, err := erc721.Pack("safeMint", n.To)
	if err != nil {
		return nil, fmt.Errorf("encode safeMint: %w", err)
	}
	tx := hedera.NewContractExecuteTransaction().
		SetContractID(n.Contract).
		SetGas(transferGas).
		SetFunctionParameters(data)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Minted an ERC721 token of %s to %s.\nTransaction ID: %s",
			n.Contract, n.To.Hex(), raw.TransactionID)
	})
}

// deployedMessage decodes the address returned by a factory deployToken call.
func deployedMessage(kind string, factory abi.ABI) dispatch.PostProcess {
	return func(raw *dispatch.RawResponse) string {
		addr, err := DeployedAddress(factory, raw.ContractCallResult)
		if err != nil {
			return fmt.Sprintf("%s token deployed, but its address could not be decoded (%v).\nTransaction ID: %s",
				kind, err, raw.TransactionID)
		}
		return fmt.Sprintf("%s token created successfully at address %s.\nTransaction ID: %s", kind, addr.Hex(), raw.TransactionID)
	}
}

// DeployedAddress unpacks the address output of deployToken.
func DeployedAddress(factory abi.ABI, result []byte) (common.Address, error) {
	if len(result) == 0 {
		return common.Address{}, fmt.Errorf("empty call result")
	}
	values, err := factory.Unpack("deployToken", result)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %d outputs", len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected output type %T", values[0])
	}
	return addr, nil
}
