package web3

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
)

type stubClient struct {
	holder common.Address
	err    error
}

func (s *stubClient) FetchChainSnapshot(context.Context) (ChainSnapshot, error) {
	if s.err != nil {
		return ChainSnapshot{}, s.err
	}
	return ChainSnapshot{ChainID: "0x128", BlockNumber: "0x10"}, nil
}

func (s *stubClient) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubClient) ERC20Balance(_ context.Context, contract, holder common.Address) (TokenBalance, error) {
	s.holder = holder
	return TokenBalance{Contract: contract, Holder: holder, Symbol: "GLD", Decimals: 2, Balance: big.NewInt(12345)}, nil
}

func (s *stubClient) Close() {}

func newToolkit(t *testing.T, client Client) *kit.Toolkit {
	t.Helper()
	tk, err := kit.NewToolkit(hedera.ClientForTestnet(), kit.Configuration{
		Plugins: []kit.Plugin{Plugin(client)},
		Context: kit.Context{AccountID: "0.0.1001", Mode: kit.ModeReturnBytes},
	})
	if err != nil {
		t.Fatalf("new toolkit: %v", err)
	}
	return tk
}

func TestERC20BalanceDefaultsToActingAccount(t *testing.T) {
	stub := &stubClient{}
	tk := newToolkit(t, stub)

	res, err := tk.Execute(context.Background(), GetERC20Balance, json.RawMessage(`{"contractId":"0.0.5001"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.HumanMessage != "Account 0.0.1001 holds 123.45 GLD" {
		t.Fatalf("unexpected message %q", res.HumanMessage)
	}
	if stub.holder != common.HexToAddress("0x00000000000000000000000000000000000003e9") {
		t.Fatalf("unexpected holder %s", stub.holder.Hex())
	}
}

func TestChainInfoFailureBecomesResult(t *testing.T) {
	tk := newToolkit(t, &stubClient{err: errors.New("relay down")})

	res, err := tk.Execute(context.Background(), GetEVMChainInfo, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Failed() {
		t.Fatalf("expected failed result, got %+v", res)
	}
}

func TestPluginWithoutClientHasNoTools(t *testing.T) {
	if tools := Plugin(nil).Tools(kit.Context{}); len(tools) != 0 {
		t.Fatalf("expected no tools, got %d", len(tools))
	}
}
