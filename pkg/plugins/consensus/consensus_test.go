package consensus_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/kittest"
	"hedera-agent-kit/pkg/plugins/consensus"
)

func newToolkit(t *testing.T, mode kit.Mode, sub *kittest.Submitter) *kit.Toolkit {
	t.Helper()
	tk, err := kit.NewToolkit(kittest.Client(t), kit.Configuration{
		Plugins:   []kit.Plugin{consensus.Plugin()},
		Context:   kit.Context{Mode: mode, AccountID: "0.0.1001"},
		Submitter: sub,
	})
	require.NoError(t, err)
	return tk
}

func TestConsensusToolsReturnBytes(t *testing.T) {
	cases := []struct {
		name   string
		method string
		params string
		check  func(t *testing.T, decoded interface{})
	}{
		{
			name:   "submit message",
			method: consensus.SubmitTopicMessage,
			params: `{"topicId":"0.0.4242","message":"hello ledger","transactionMemo":"greeting"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.TopicMessageSubmitTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.4242", tx.GetTopicID().String())
				assert.Equal(t, "hello ledger", string(tx.GetMessage()))
				assert.Equal(t, "greeting", tx.GetTransactionMemo())
			},
		},
		{
			name:   "delete topic",
			method: consensus.DeleteTopic,
			params: `{"topicId":"0.0.4242"}`,
			check: func(t *testing.T, decoded interface{}) {
				tx, ok := decoded.(hedera.TopicDeleteTransaction)
				require.True(t, ok, "got %T", decoded)
				assert.Equal(t, "0.0.4242", tx.GetTopicID().String())
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

func TestConsensusToolsAutonomous(t *testing.T) {
	topic := hedera.TopicID{Topic: 4242}

	cases := []struct {
		name    string
		method  string
		params  string
		receipt hedera.TransactionReceipt
		txType  kit.Executable
		message string
	}{
		{
			name:    "create topic",
			method:  consensus.CreateTopic,
			params:  `{"topicMemo":"events"}`,
			receipt: hedera.TransactionReceipt{TopicID: &topic},
			txType:  &hedera.TopicCreateTransaction{},
			message: "Topic created successfully.\nTopic ID: 0.0.4242",
		},
		{
			name:    "submit message reports sequence",
			method:  consensus.SubmitTopicMessage,
			params:  `{"topicId":"0.0.4242","message":"hello"}`,
			receipt: hedera.TransactionReceipt{TopicSequenceNumber: 17},
			txType:  &hedera.TopicMessageSubmitTransaction{},
			message: "Message submitted successfully to topic 0.0.4242.\nSequence number: 17",
		},
		{
			name:    "delete topic",
			method:  consensus.DeleteTopic,
			params:  `{"topicId":"0.0.4242"}`,
			txType:  &hedera.TopicDeleteTransaction{},
			message: "Topic 0.0.4242 deleted.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &kittest.Submitter{Receipt: tc.receipt}
			tk := newToolkit(t, kit.ModeAutonomous, sub)

			res, err := tk.Execute(context.Background(), tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			kittest.Raw(t, res)
			assert.Equal(t, 1, sub.Calls)
			assert.IsType(t, tc.txType, sub.Last)
			assert.Contains(t, res.HumanMessage, tc.message)
		})
	}
}

func TestSubmitTopicMessageRecordsPayload(t *testing.T) {
	sub := &kittest.Submitter{}
	tk := newToolkit(t, kit.ModeAutonomous, sub)

	res, err := tk.Execute(context.Background(), consensus.SubmitTopicMessage,
		json.RawMessage(`{"topicId":"0.0.4242","message":"{\"event\":\"paid\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), kittest.Raw(t, res).TopicSequenceNumber)

	tx, ok := sub.Last.(*hedera.TopicMessageSubmitTransaction)
	require.True(t, ok, "got %T", sub.Last)
	assert.Equal(t, `{"event":"paid"}`, string(tx.GetMessage()))
}

func TestSubmitTopicMessageRejectsBadTopic(t *testing.T) {
	sub := &kittest.Submitter{}
	tk := newToolkit(t, kit.ModeAutonomous, sub)

	for _, params := range []string{
		`{"topicId":"topic","message":"hello"}`,
		`{"topicId":"0.0.4242"}`,
	} {
		res, err := tk.Execute(context.Background(), consensus.SubmitTopicMessage, json.RawMessage(params))
		require.NoError(t, err)
		assert.True(t, res.Failed(), params)
	}
	assert.Zero(t, sub.Calls)
}
