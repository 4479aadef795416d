package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
)

type fakeSubmitter struct {
	exec       *kit.Execution
	err        error
	calls      int
	withRecord bool
}

func (f *fakeSubmitter) Submit(_ context.Context, _ *hedera.Client, _ kit.Executable, withRecord bool) (*kit.Execution, error) {
	f.calls++
	f.withRecord = withRecord
	return f.exec, f.err
}

func testClient(t *testing.T) *hedera.Client {
	t.Helper()
	client := hedera.ClientForTestnet()
	key, err := hedera.PrivateKeyGenerateEd25519()
	require.NoError(t, err)
	client.SetOperator(hedera.AccountID{Account: 2}, key)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func transfer() *hedera.TransferTransaction {
	return hedera.NewTransferTransaction().
		AddHbarTransfer(hedera.AccountID{Account: 1001}, hedera.HbarFromTinybar(-500)).
		AddHbarTransfer(hedera.AccountID{Account: 1002}, hedera.HbarFromTinybar(500))
}

func TestHandleReturnBytesFreezesForContextAccount(t *testing.T) {
	sub := &fakeSubmitter{}
	rt := &kit.Runtime{
		Client:    testClient(t),
		Context:   kit.Context{Mode: kit.ModeReturnBytes, AccountID: "0.0.1001"},
		Submitter: sub,
	}

	res, err := Handle(context.Background(), rt, transfer(), nil)
	require.NoError(t, err)
	assert.Zero(t, sub.calls)

	payload, ok := res.Raw.(*Bytes)
	require.True(t, ok)
	assert.NotEmpty(t, payload.Bytes)
	assert.True(t, strings.HasPrefix(payload.TransactionID, "0.0.1001@"), payload.TransactionID)
	assert.Contains(t, res.HumanMessage, payload.TransactionID)
}

func TestHandleReturnBytesRequiresAccount(t *testing.T) {
	rt := &kit.Runtime{
		Client:  testClient(t),
		Context: kit.Context{Mode: kit.ModeReturnBytes},
	}
	_, err := Handle(context.Background(), rt, transfer(), nil)
	assert.True(t, errors.Is(err, kit.ErrAccountRequired))
}

func TestHandleAutonomousBuildsRawResponse(t *testing.T) {
	tokenID := hedera.TokenID{Token: 777}
	txID := hedera.TransactionIDGenerate(hedera.AccountID{Account: 2})
	sub := &fakeSubmitter{exec: &kit.Execution{
		TransactionID: txID,
		Receipt:       hedera.TransactionReceipt{Status: hedera.StatusSuccess, TokenID: &tokenID},
		CallResult:    []byte{0xca, 0xfe},
	}}
	rt := &kit.Runtime{Client: testClient(t), Submitter: sub}

	res, err := Handle(context.Background(), rt, transfer(), func(raw *RawResponse) string {
		return "created " + raw.TokenID
	}, WithRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, sub.calls)
	assert.True(t, sub.withRecord)
	assert.Equal(t, "created 0.0.777", res.HumanMessage)

	raw := res.Raw.(*RawResponse)
	assert.Equal(t, "SUCCESS", raw.Status)
	assert.Equal(t, txID.String(), raw.TransactionID)
	assert.Equal(t, "0xcafe", raw.ContractCallResultHex)
}

func TestHandleAutonomousDefaultMessageAndErrors(t *testing.T) {
	sub := &fakeSubmitter{exec: &kit.Execution{
		TransactionID: hedera.TransactionIDGenerate(hedera.AccountID{Account: 2}),
		Receipt:       hedera.TransactionReceipt{Status: hedera.StatusSuccess},
	}}
	rt := &kit.Runtime{Client: testClient(t), Submitter: sub}

	res, err := Handle(context.Background(), rt, transfer(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.HumanMessage, "SUCCESS")

	sub.err = errors.New("INSUFFICIENT_PAYER_BALANCE")
	_, err = Handle(context.Background(), rt, transfer(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub.err = nil
	_, err = Handle(ctx, rt, transfer(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApplySchedule(t *testing.T) {
	inner := transfer()
	sc, err := hedera.NewScheduleCreateTransaction().SetScheduledTransaction(inner)
	require.NoError(t, err)

	payer := hedera.AccountID{Account: 1001}
	ApplySchedule(sc, ScheduleOptions{PayerAccountID: &payer, WaitForExpiry: true, Memo: "later"})
	assert.Equal(t, payer, sc.GetPayerAccountID())
	assert.True(t, sc.GetWaitForExpiry())
	assert.Equal(t, "later", sc.GetScheduleMemo())

	msg := ScheduledMessage(&RawResponse{ScheduleID: "0.0.9", ScheduledTransactionID: "0.0.2@1.2?scheduled"})
	assert.Contains(t, msg, "0.0.9")
}
