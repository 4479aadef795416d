// Package kittest provides helpers for testing tools built on the kit:
// a submitter that records instead of reaching the network, an offline
// testnet client and a decoder for returnBytes results.
package kittest

import (
	"context"
	"testing"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
)

// OperatorID is the operator account of Client.
var OperatorID = hedera.AccountID{Account: 2}

// Submitter records submitted transactions and answers with Receipt. A
// receipt left at its zero status reports SUCCESS.
type Submitter struct {
	Receipt hedera.TransactionReceipt
	Calls   int
	Last    kit.Executable
}

// Submit implements kit.Submitter.
func (s *Submitter) Submit(_ context.Context, _ *hedera.Client, tx kit.Executable, _ bool) (*kit.Execution, error) {
	s.Calls++
	s.Last = tx
	receipt := s.Receipt
	if receipt.Status == hedera.StatusOk {
		receipt.Status = hedera.StatusSuccess
	}
	return &kit.Execution{
		TransactionID: hedera.TransactionIDGenerate(OperatorID),
		Receipt:       receipt,
	}, nil
}

// Client returns a testnet client with a throwaway ed25519 operator. It is
// never used to reach the network when paired with a Submitter or returnBytes.
func Client(t testing.TB) *hedera.Client {
	t.Helper()
	client := hedera.ClientForTestnet()
	key, err := hedera.PrivateKeyGenerateEd25519()
	require.NoError(t, err)
	client.SetOperator(OperatorID, key)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Decode unpacks the bytes of a returnBytes result. The SDK hands back
// transactions by value, e.g. hedera.ScheduleCreateTransaction.
func Decode(t testing.TB, res *kit.Result) interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.Failed(), res.Error)
	payload, ok := res.Raw.(*dispatch.Bytes)
	require.True(t, ok, "raw is %T, want *dispatch.Bytes", res.Raw)
	require.NotEmpty(t, payload.Bytes)

	decoded, err := hedera.TransactionFromBytes(payload.Bytes)
	require.NoError(t, err)
	return decoded
}

// Raw returns the autonomous response of res.
func Raw(t testing.TB, res *kit.Result) *dispatch.RawResponse {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.Failed(), res.Error)
	raw, ok := res.Raw.(*dispatch.RawResponse)
	require.True(t, ok, "raw is %T, want *dispatch.RawResponse", res.Raw)
	return raw
}
