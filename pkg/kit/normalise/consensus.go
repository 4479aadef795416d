package normalise

import (
	"context"
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/mirror"
)

// CreateTopic is the normalised form of CreateTopicParams.
type CreateTopic struct {
	Memo            string
	TransactionMemo string
	AdminKey        hedera.Key
	SubmitKey       hedera.Key
}

// NormaliseCreateTopic gives the topic the default public key as admin key
// unless the caller opts out, and a submit key only when asked.
func NormaliseCreateTopic(ctx context.Context, p CreateTopicParams, r *Resolver) (*CreateTopic, error) {
	out := &CreateTopic{Memo: p.TopicMemo, TransactionMemo: p.TransactionMemo}
	var err error
	if out.AdminKey, err = p.AdminKey.Resolve(ctx, r, true); err != nil {
		return nil, err
	}
	if out.SubmitKey, err = p.SubmitKey.Resolve(ctx, r, false); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitTopicMessage is the normalised form of SubmitTopicMessageParams.
type SubmitTopicMessage struct {
	TopicID hedera.TopicID
	Message []byte
	Memo    string
}

// NormaliseSubmitTopicMessage parses the topic id.
func NormaliseSubmitTopicMessage(p SubmitTopicMessageParams) (*SubmitTopicMessage, error) {
	topicID, err := ParseTopicID(p.TopicID)
	if err != nil {
		return nil, err
	}
	return &SubmitTopicMessage{TopicID: topicID, Message: []byte(p.Message), Memo: p.TransactionMemo}, nil
}

// NormaliseTopicMessagesQuery converts RFC3339 bounds into mirror timestamps.
func NormaliseTopicMessagesQuery(p TopicMessagesParams) (mirror.TopicMessagesQuery, error) {
	q := mirror.TopicMessagesQuery{TopicID: p.TopicID, Limit: p.Limit, Order: "asc"}
	if _, err := ParseTopicID(p.TopicID); err != nil {
		return q, err
	}
	var lower, upper time.Time
	if p.StartTime != "" {
		t, err := time.Parse(time.RFC3339, p.StartTime)
		if err != nil {
			return q, invalidField("startTime", p.StartTime)
		}
		lower = t
		q.Lower = mirror.Timestamp(t)
	}
	if p.EndTime != "" {
		t, err := time.Parse(time.RFC3339, p.EndTime)
		if err != nil {
			return q, invalidField("endTime", p.EndTime)
		}
		upper = t
		q.Upper = mirror.Timestamp(t)
	}
	if !lower.IsZero() && !upper.IsZero() && upper.Before(lower) {
		return q, invalid("endTime must not be before startTime")
	}
	if q.Limit == 0 {
		q.Limit = 100
	}
	return q, nil
}
