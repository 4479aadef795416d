package queries_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/mirror"
	"hedera-agent-kit/pkg/plugins/queries"
)

type stubMirror struct {
	mirror.Service
	records   map[string][]mirror.Transaction
	airdrops  map[string][]mirror.PendingAirdrop
	schedules map[string]*mirror.ScheduleInfo

	lastTransactionID string
	lastNonce         *int
}

func (s *stubMirror) GetTransactionRecord(_ context.Context, id string, nonce *int) ([]mirror.Transaction, error) {
	s.lastTransactionID = id
	s.lastNonce = nonce
	return s.records[id], nil
}

func (s *stubMirror) GetPendingAirdrops(_ context.Context, accountID string) ([]mirror.PendingAirdrop, error) {
	return s.airdrops[accountID], nil
}

func (s *stubMirror) GetScheduleInfo(_ context.Context, id string) (*mirror.ScheduleInfo, error) {
	info, ok := s.schedules[id]
	if !ok {
		return nil, mirror.ErrNotFound
	}
	return info, nil
}

func newToolkit(t *testing.T, m mirror.Service) *kit.Toolkit {
	t.Helper()
	tk, err := kit.NewToolkit(nil, kit.Configuration{
		Plugins: []kit.Plugin{queries.Plugin()},
		Context: kit.Context{AccountID: "0.0.1001"},
		Mirror:  m,
	})
	require.NoError(t, err)
	return tk
}

func testMirror() *stubMirror {
	serial := int64(4)
	executed := "1700000100.000000000"
	return &stubMirror{
		records: map[string][]mirror.Transaction{
			"0.0.5-1700000000-000000001": {{
				TransactionID:      "0.0.5-1700000000-000000001",
				ConsensusTimestamp: "1700000001.000000000",
				Name:               "CRYPTOTRANSFER",
				Result:             "SUCCESS",
				ChargedTxFee:       100_000,
				MemoBase64:         base64.StdEncoding.EncodeToString([]byte("rent")),
				Transfers: []mirror.Transfer{
					{Account: "0.0.5", Amount: -150_000_000},
					{Account: "0.0.1002", Amount: 150_000_000},
				},
			}},
		},
		airdrops: map[string][]mirror.PendingAirdrop{
			"0.0.1001": {
				{Amount: 250, SenderID: "0.0.5", ReceiverID: "0.0.1001", TokenID: "0.0.600"},
				{SenderID: "0.0.6", ReceiverID: "0.0.1001", TokenID: "0.0.700", SerialNumber: &serial},
			},
		},
		schedules: map[string]*mirror.ScheduleInfo{
			"0.0.777": {
				ScheduleID:       "0.0.777",
				CreatorAccountID: "0.0.1001",
				PayerAccountID:   "0.0.1003",
				Memo:             "payroll",
				Signatures:       []mirror.ScheduleSignature{{Type: "ED25519"}, {Type: "ED25519"}},
			},
			"0.0.778": {
				ScheduleID:        "0.0.778",
				CreatorAccountID:  "0.0.1001",
				PayerAccountID:    "0.0.1001",
				ExecutedTimestamp: &executed,
			},
			"0.0.779": {ScheduleID: "0.0.779", Deleted: true},
		},
	}
}

func TestMirrorQueryTools(t *testing.T) {
	cases := []struct {
		name     string
		method   string
		params   string
		contains []string
	}{
		{
			name:   "transaction record",
			method: queries.GetTransactionRecord,
			params: `{"transactionId":"0.0.5@1700000000.000000001"}`,
			contains: []string{
				"Transaction details for 0.0.5-1700000000-000000001:",
				"- CRYPTOTRANSFER: SUCCESS, fee 0.001 HBAR, consensus at 1700000001.000000000",
				"memo: rent",
				"0.0.5 -1.5 HBAR",
				"0.0.1002 1.5 HBAR",
			},
		},
		{
			name:     "missing transaction record",
			method:   queries.GetTransactionRecord,
			params:   `{"transactionId":"0.0.5-1700000009-000000001"}`,
			contains: []string{"No record found for transaction 0.0.5-1700000009-000000001"},
		},
		{
			name:   "pending airdrops for acting account",
			method: queries.GetPendingAirdrops,
			params: `{}`,
			contains: []string{
				"Pending airdrops for account 0.0.1001:",
				"- 250 base units of 0.0.600 from 0.0.5",
				"- NFT 0.0.700 #4 from 0.0.6",
			},
		},
		{
			name:     "no pending airdrops",
			method:   queries.GetPendingAirdrops,
			params:   `{"accountId":"0.0.1009"}`,
			contains: []string{"No pending airdrops for account 0.0.1009"},
		},
		{
			name:   "pending schedule",
			method: queries.GetScheduleInfo,
			params: `{"scheduleId":"0.0.777"}`,
			contains: []string{
				"Details for schedule 0.0.777:",
				"- State: pending",
				"- Creator: 0.0.1001\n- Payer: 0.0.1003",
				"- Signatures: 2",
				"- Memo: payroll",
			},
		},
		{
			name:     "executed schedule",
			method:   queries.GetScheduleInfo,
			params:   `{"scheduleId":"0.0.778"}`,
			contains: []string{"- State: executed at 1700000100.000000000"},
		},
		{
			name:     "deleted schedule",
			method:   queries.GetScheduleInfo,
			params:   `{"scheduleId":"0.0.779"}`,
			contains: []string{"- State: deleted"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := newToolkit(t, testMirror())

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			require.False(t, res.Failed(), res.Error)
			for _, want := range tc.contains {
				assert.Contains(t, res.HumanMessage, want)
			}
		})
	}
}

func TestTransactionRecordPassesNonce(t *testing.T) {
	m := testMirror()
	tk := newToolkit(t, m)

	res, err := tk.Execute(context.Background(), queries.GetTransactionRecord,
		json.RawMessage(`{"transactionId":"0.0.5@1700000000.42","nonce":1}`))
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "0.0.5-1700000000-000000042", m.lastTransactionID)
	require.NotNil(t, m.lastNonce)
	assert.Equal(t, 1, *m.lastNonce)
}

func TestMirrorQueryToolsFail(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		params  string
		message string
	}{
		{"malformed transaction id", queries.GetTransactionRecord, `{"transactionId":"garbage"}`, ""},
		{"unknown schedule", queries.GetScheduleInfo, `{"scheduleId":"0.0.1"}`, "Failed to get schedule info"},
		{"malformed schedule id", queries.GetScheduleInfo, `{"scheduleId":"schedule"}`, ""},
		{"malformed airdrop account", queries.GetPendingAirdrops, `{"accountId":"acct"}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := newToolkit(t, testMirror())

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			assert.True(t, res.Failed())
			if tc.message != "" {
				assert.Contains(t, res.HumanMessage, tc.message)
			}
		})
	}
}

func TestScheduleInfoWithoutMirror(t *testing.T) {
	tk := newToolkit(t, nil)

	res, err := tk.Execute(context.Background(), queries.GetScheduleInfo, json.RawMessage(`{"scheduleId":"0.0.777"}`))
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Contains(t, res.HumanMessage, "Failed to get schedule info")
}
