package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"hedera-agent-kit/internal/web3"
)

const erc20ReadABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// ERC20 是只读调用使用的 ABI。
var ERC20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ReadABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Config 描述如何连接 JSON-RPC 中继。
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// Client 基于 go-ethereum 的 ethclient 实现 web3.Client。
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	mu        sync.Mutex
}

var _ web3.Client = (*Client)(nil)

// NewClient 连接中继并返回可用的客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 JSON-RPC 中继地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 JSON-RPC 中继失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// Close 释放底层连接。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

func (c *Client) backend() (*ethclient.Client, error) {
	if c == nil {
		return nil, errors.New("未初始化的中继客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth == nil {
		return nil, errors.New("中继客户端已关闭")
	}
	return c.eth, nil
}

// FetchChainSnapshot 查询链 ID 与最新区块高度。
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	eth, err := c.backend()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// NativeBalance 返回地址的原生余额（weibar）。
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	eth, err := c.backend()
	if err != nil {
		return nil, err
	}
	balance, err := eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// ERC20Balance 通过 eth_call 读取余额、精度与符号。
func (c *Client) ERC20Balance(ctx context.Context, contract, holder common.Address) (web3.TokenBalance, error) {
	eth, err := c.backend()
	if err != nil {
		return web3.TokenBalance{}, err
	}
	out := web3.TokenBalance{Contract: contract, Holder: holder}

	values, err := call(ctx, eth, contract, "balanceOf", holder)
	if err != nil {
		return web3.TokenBalance{}, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return web3.TokenBalance{}, fmt.Errorf("balanceOf 返回了意外类型 %T", values[0])
	}
	out.Balance = balance

	if values, err := call(ctx, eth, contract, "decimals"); err == nil {
		if d, ok := values[0].(uint8); ok {
			out.Decimals = d
		}
	}
	if values, err := call(ctx, eth, contract, "symbol"); err == nil {
		if s, ok := values[0].(string); ok {
			out.Symbol = s
		}
	}
	return out, nil
}

func call(ctx context.Context, eth *ethclient.Client, contract common.Address, method string, args ...any) ([]any, error) {
	data, err := ERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码 %s 失败: %w", method, err)
	}
	result, err := eth.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 %s 失败: %w", method, err)
	}
	values, err := ERC20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s 没有返回值", method)
	}
	return values, nil
}

func toHexBig(value *big.Int) string {
	if value == nil {
		return "0x0"
	}
	return "0x" + value.Text(16)
}
