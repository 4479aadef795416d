package task

import (
	"encoding/json"
	"hash/fnv"
	"strings"
	"time"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/kit"
)

// Delivery 是投递到队列中的对话任务消息。
// 消费端据此按会话路由，任务正文仍以存储中的记录为准。
type Delivery struct {
	TaskID     string   `json:"task_id"`
	SessionID  string   `json:"session_id"`
	AccountID  string   `json:"account_id,omitempty"`
	Mode       kit.Mode `json:"mode,omitempty"`
	Attempt    int      `json:"attempt"`
	EnqueuedAt int64    `json:"enqueued_at"`
}

// Delivery 根据任务当前状态生成队列消息。
func (t *Task) Delivery() Delivery {
	return Delivery{
		TaskID:     t.ID,
		SessionID:  t.SessionID,
		AccountID:  t.AccountID,
		Mode:       t.EffectiveMode(),
		Attempt:    t.Attempts,
		EnqueuedAt: time.Now().UnixMilli(),
	}
}

// Encode 将消息编码为 JSON。
func (d Delivery) Encode() ([]byte, error) {
	if strings.TrimSpace(d.TaskID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "投递消息缺少任务 ID")
	}
	return json.Marshal(d)
}

// DecodeDelivery 解析队列消息。
func DecodeDelivery(raw []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Delivery{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析投递消息失败", xerrors.WithRetryable(false))
	}
	if strings.TrimSpace(d.TaskID) == "" {
		return Delivery{}, xerrors.New(xerrors.CodeQueueFailure, "投递消息缺少任务 ID", xerrors.WithRetryable(false))
	}
	return d, nil
}

// shard 将同一会话固定到同一分片，保证会话内按投递顺序处理。
func (d Delivery) shard(n int) int {
	if n <= 1 {
		return 0
	}
	key := d.SessionID
	if key == "" {
		key = d.TaskID
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
