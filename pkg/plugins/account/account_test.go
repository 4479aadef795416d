package account_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/kittest"
	"hedera-agent-kit/pkg/plugins/account"
)

func newToolkit(t *testing.T, mode kit.Mode, sub *kittest.Submitter) *kit.Toolkit {
	t.Helper()
	tk, err := kit.NewToolkit(kittest.Client(t), kit.Configuration{
		Plugins:   []kit.Plugin{account.Plugin()},
		Context:   kit.Context{Mode: mode, AccountID: "0.0.1001"},
		Submitter: sub,
	})
	require.NoError(t, err)
	return tk
}

func scheduledJSON(expiry time.Time) string {
	return fmt.Sprintf(`"schedulingParams":{"isScheduled":true,"payerAccountId":"0.0.1003","expirationTime":%q,"waitForExpiry":true}`,
		expiry.UTC().Format(time.RFC3339))
}

func TestAccountToolsReturnBytes(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	cases := []struct {
		name   string
		method string
		params string
		check  func(t *testing.T, decoded interface{})
	}{
		{
			name:   "transfer",
			method: account.TransferHbar,
			params: `{"transfers":[{"accountId":"0.0.1002","amount":1.5}],"transactionMemo":"rent"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.TransferTransaction)
				require.True(t, ok, "got %T", decoded)
				hbar := tx.GetHbarTransfers()
				assert.Equal(t, int64(-150_000_000), hbar[hedera.AccountID{Account: 1001}].AsTinybar())
				assert.Equal(t, int64(150_000_000), hbar[hedera.AccountID{Account: 1002}].AsTinybar())
				assert.Equal(t, "rent", tx.GetTransactionMemo())
			},
		},
		{
			name:   "scheduled transfer",
			method: account.TransferHbar,
			params: `{"transfers":[{"accountId":"0.0.1002","amount":1.5}],` + scheduledJSON(expiry) + `}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.ScheduleCreateTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.1003", tx.GetPayerAccountID().String())
				assert.True(t, tx.GetWaitForExpiry())
				assert.WithinDuration(t, expiry, tx.GetExpirationTime(), time.Second)
			},
		},
		{
			name:   "update account",
			method: account.UpdateAccount,
			params: `{"accountMemo":"treasury","maxAutomaticTokenAssociations":5,"stakedAccountId":"0.0.800","declineStakingReward":true}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.AccountUpdateTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.1001", tx.GetAccountID().String())
				assert.Equal(t, "treasury", tx.GetAccountMemo())
				assert.Equal(t, int32(5), tx.GetMaxAutomaticTokenAssociations())
				assert.Equal(t, "0.0.800", tx.GetStakedAccountID().String())
				assert.True(t, tx.GetDeclineStakingReward())
			},
		},
		{
			name:   "delete account",
			method: account.DeleteAccount,
			params: `{"accountId":"0.0.1005"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.AccountDeleteTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.1005", tx.GetAccountID().String())
				assert.Equal(t, "0.0.1001", tx.GetTransferAccountID().String())
			},
		},
		{
			name:   "sign schedule",
			method: account.SignScheduleTransaction,
			params: `{"scheduleId":"0.0.777"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.ScheduleSignTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.777", tx.GetScheduleID().String())
			},
		},
		{
			name:   "delete schedule",
			method: account.ScheduleDelete,
			params: `{"scheduleId":"0.0.777"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.ScheduleDeleteTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.777", tx.GetScheduleID().String())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &kittest.Submitter{}
			tk := newToolkit(t, kit.ModeReturnBytes, sub)

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			tc.check(t, kittest.Decode(t, res))
			assert.Zero(t, sub.Calls)
		})
	}
}

func TestAccountToolsAutonomous(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	schedule := hedera.ScheduleID{Schedule: 777}

	cases := []struct {
		name    string
		method  string
		params  string
		receipt hedera.TransactionReceipt
		txType  kit.Executable
		message string
	}{
		{
			name:    "transfer",
			method:  account.TransferHbar,
			params:  `{"transfers":[{"accountId":"0.0.1002","amount":1}]}`,
			txType:  &hedera.TransferTransaction{},
			message: "HBAR successfully transferred.",
		},
		{
			name:    "scheduled transfer",
			method:  account.TransferHbar,
			params:  `{"transfers":[{"accountId":"0.0.1002","amount":1}],` + scheduledJSON(expiry) + `}`,
			receipt: hedera.TransactionReceipt{ScheduleID: &schedule},
			txType:  &hedera.ScheduleCreateTransaction{},
			message: "Scheduled transaction created successfully. Schedule ID: 0.0.777",
		},
		{
			name:    "update account",
			method:  account.UpdateAccount,
			params:  `{"accountId":"0.0.1004","accountMemo":"cold"}`,
			txType:  &hedera.AccountUpdateTransaction{},
			message: "Account 0.0.1004 updated.",
		},
		{
			name:    "delete account",
			method:  account.DeleteAccount,
			params:  `{"accountId":"0.0.1005","transferAccountId":"0.0.1006"}`,
			txType:  &hedera.AccountDeleteTransaction{},
			message: "Account 0.0.1005 deleted, remaining balance sent to 0.0.1006.",
		},
		{
			name:    "sign schedule",
			method:  account.SignScheduleTransaction,
			params:  `{"scheduleId":"0.0.777"}`,
			txType:  &hedera.ScheduleSignTransaction{},
			message: "Scheduled transaction 0.0.777 signed.",
		},
		{
			name:    "delete schedule",
			method:  account.ScheduleDelete,
			params:  `{"scheduleId":"0.0.777"}`,
			txType:  &hedera.ScheduleDeleteTransaction{},
			message: "Scheduled transaction 0.0.777 deleted.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &kittest.Submitter{Receipt: tc.receipt}
			tk := newToolkit(t, kit.ModeAutonomous, sub)

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			raw := kittest.Raw(t, res)
			assert.Equal(t, "SUCCESS", raw.Status)
			assert.Equal(t, 1, sub.Calls)
			assert.IsType(t, tc.txType, sub.Last)
			assert.Contains(t, res.HumanMessage, tc.message)
		})
	}
}

func TestScheduledTransferRecordsPayer(t *testing.T) {
	sub := &kittest.Submitter{}
	tk := newToolkit(t, kit.ModeAutonomous, sub)

	res, err := tk.Execute(context.Background(), account.TransferHbar,
		json.RawMessage(`{"transfers":[{"accountId":"0.0.1002","amount":2}],"schedulingParams":{"isScheduled":true,"payerAccountId":"0.0.1003"}}`))
	require.NoError(t, err)
	kittest.Raw(t, res)

	tx, ok := sub.Last.(*hedera.ScheduleCreateTransaction)
	require.True(t, ok, "got %T", sub.Last)
	assert.Equal(t, "0.0.1003", tx.GetPayerAccountID().String())
	assert.False(t, tx.GetWaitForExpiry())
}

func TestAccountToolsRejectInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		method string
		params string
	}{
		{"nothing to update", account.UpdateAccount, `{}`},
		{"delete into itself", account.DeleteAccount, `{"accountId":"0.0.1001"}`},
		{"bad schedule id", account.SignScheduleTransaction, `{"scheduleId":"schedule"}`},
		{"past expiry", account.TransferHbar,
			`{"transfers":[{"accountId":"0.0.1002","amount":1}],"schedulingParams":{"isScheduled":true,"expirationTime":"2001-01-01T00:00:00Z"}}`},
		{"wait without expiry", account.TransferHbar,
			`{"transfers":[{"accountId":"0.0.1002","amount":1}],"schedulingParams":{"isScheduled":true,"waitForExpiry":true}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &kittest.Submitter{}
			tk := newToolkit(t, kit.ModeAutonomous, sub)

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			assert.True(t, res.Failed())
			assert.Zero(t, sub.Calls)
		})
	}
}
