// Package consensus provides the core consensus plugin for topics.
package consensus

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
	"hedera-agent-kit/pkg/kit/normalise"
)

// PluginName identifies the plugin in a registry.
const PluginName = "core-consensus-plugin"

// Tool methods.
const (
	CreateTopic        = "create_topic_tool"
	SubmitTopicMessage = "submit_topic_message_tool"
	DeleteTopic        = "delete_topic_tool"
)

// Plugin returns the consensus plugin.
func Plugin() kit.Plugin {
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Create and delete consensus topics and submit messages to them",
		Capabilities: []kit.Capability{kit.CapabilityTransaction},
		Tools:        Tools,
	}
}

// Tools builds the plugin tools.
func Tools(_ kit.Context) []kit.Tool {
	return []kit.Tool{
		kit.NewTool(CreateTopic, "Create Topic",
			"Create a new consensus topic. The admin key defaults to the acting account key; a submit key restricts who may post.",
			"Failed to create topic", createTopic),
		kit.NewTool(SubmitTopicMessage, "Submit Topic Message",
			"Submit a message to a consensus topic.",
			"Failed to submit topic message", submitTopicMessage),
		kit.NewTool(DeleteTopic, "Delete Topic",
			"Delete a consensus topic. Requires the topic admin key.",
			"Failed to delete topic", deleteTopic),
	}
}

func createTopic(ctx context.Context, rt *kit.Runtime, p normalise.CreateTopicParams) (*kit.Result, error) {
	n, err := normalise.NormaliseCreateTopic(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTopicCreateTransaction()
	if n.Memo != "" {
		tx.SetTopicMemo(n.Memo)
	}
	if n.TransactionMemo != "" {
		tx.SetTransactionMemo(n.TransactionMemo)
	}
	if n.AdminKey != nil {
		tx.SetAdminKey(n.AdminKey)
	}
	if n.SubmitKey != nil {
		tx.SetSubmitKey(n.SubmitKey)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Topic created successfully.\nTopic ID: %s\nTransaction ID: %s", raw.TopicID, raw.TransactionID)
	})
}

func submitTopicMessage(ctx context.Context, rt *kit.Runtime, p normalise.SubmitTopicMessageParams) (*kit.Result, error) {
	n, err := normalise.NormaliseSubmitTopicMessage(p)
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(n.TopicID).
		SetMessage(n.Message)
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Message submitted successfully to topic %s.\nSequence number: %d\nTransaction ID: %s",
			n.TopicID, raw.TopicSequenceNumber, raw.TransactionID)
	})
}

func deleteTopic(ctx context.Context, rt *kit.Runtime, p normalise.TopicIDParams) (*kit.Result, error) {
	id, err := normalise.ParseTopicID(p.TopicID)
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTopicDeleteTransaction().SetTopicID(id)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Topic %s deleted.\nTransaction ID: %s", id, raw.TransactionID)
	})
}
