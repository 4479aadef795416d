package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/kit"
)

func TestTaskDeliveryCarriesChatRouting(t *testing.T) {
	task := &Task{ID: "t1", SessionID: "s1", AccountID: "0.0.1001", Mode: "human", Attempts: 2}
	d := task.Delivery()
	if d.TaskID != "t1" || d.SessionID != "s1" || d.AccountID != "0.0.1001" || d.Mode != kit.ModeReturnBytes || d.Attempt != 2 || d.EnqueuedAt == 0 {
		t.Fatalf("unexpected delivery %+v", d)
	}

	payload, err := d.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(payload), `"mode":"returnBytes"`) {
		t.Fatalf("mode not encoded: %s", payload)
	}
	if _, err := (Delivery{SessionID: "s1"}).Encode(); err == nil {
		t.Fatalf("delivery without task id should not encode")
	}

	for _, raw := range []string{`not json`, `{"session_id":"s1"}`} {
		_, err := DecodeDelivery([]byte(raw))
		if xerrors.CodeOf(err) != xerrors.CodeQueueFailure || xerrors.RetryableError(err) {
			t.Fatalf("%s: expected non-retryable queue failure, got %v", raw, err)
		}
	}
}

func TestDeliveryShardFollowsSession(t *testing.T) {
	a := Delivery{TaskID: "t1", SessionID: "alice"}
	b := Delivery{TaskID: "t2", SessionID: "alice"}
	if a.shard(8) != b.shard(8) {
		t.Fatalf("same session landed on different shards")
	}
	if got := a.shard(1); got != 0 {
		t.Fatalf("single shard should be 0, got %d", got)
	}
	spread := map[int]bool{}
	for i := 0; i < 64; i++ {
		d := Delivery{TaskID: "t", SessionID: string(rune('a' + i%26)) + strings.Repeat("x", i)}
		spread[d.shard(4)] = true
	}
	if len(spread) < 2 {
		t.Fatalf("sessions did not spread across shards: %v", spread)
	}
	if (Delivery{TaskID: "orphan"}).shard(4) != (Delivery{TaskID: "orphan"}).shard(4) {
		t.Fatalf("task id fallback not stable")
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), Delivery{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_ = q.Close()
	if err := q.Publish(context.Background(), Delivery{TaskID: "t1"}); xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("expected queue failure after close, got %v", err)
	}
}

func TestRedisQueueShardKeys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := newRedisQueue(client, RedisQueueConfig{Queue: "chat", Shards: 3})
	if strings.Join(q.keys, ",") != "chat:0,chat:1,chat:2" {
		t.Fatalf("unexpected keys %v", q.keys)
	}
	d := Delivery{TaskID: "t1", SessionID: "alice"}
	if q.keyFor(d) != q.keys[d.shard(3)] {
		t.Fatalf("delivery routed to %s", q.keyFor(d))
	}

	defaults := newRedisQueue(client, RedisQueueConfig{})
	if len(defaults.keys) != defaultShards || defaults.keys[0] != "hedera-agent:tasks:0" || defaults.wait != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", defaults)
	}
}

func TestRabbitMQPublishingHeaders(t *testing.T) {
	msg, err := publishing(Delivery{TaskID: "t1", SessionID: "s1", AccountID: "0.0.1001", Mode: kit.ModeAutonomous, Attempt: 1, EnqueuedAt: 1700000000000})
	if err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if msg.MessageId != "t1" || msg.CorrelationId != "s1" || msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", msg)
	}
	if msg.Headers["account_id"] != "0.0.1001" || msg.Headers["mode"] != "autonomous" || msg.Headers["attempt"] != int32(1) {
		t.Fatalf("unexpected headers %v", msg.Headers)
	}
	if !msg.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestRabbitMQHandleMessageOutcome(t *testing.T) {
	body, _ := Delivery{TaskID: "t1", SessionID: "s1"}.Encode()
	var seen Delivery
	ok := func(_ context.Context, d Delivery) error { seen = d; return nil }
	fail := func(context.Context, Delivery) error { return errors.New("store down") }

	if got := handleMessage(context.Background(), amqp.Delivery{Body: []byte("garbage")}, ok); got != ackDrop {
		t.Fatalf("garbage should be dropped, got %v", got)
	}
	if got := handleMessage(context.Background(), amqp.Delivery{Body: body}, fail); got != ackRequeue {
		t.Fatalf("handler failure should requeue, got %v", got)
	}
	if got := handleMessage(context.Background(), amqp.Delivery{Body: body}, ok); got != ackDone || seen.SessionID != "s1" {
		t.Fatalf("unexpected outcome %v %+v", got, seen)
	}
}

func TestFilterWhereMatchesChatColumns(t *testing.T) {
	where, args := NewFilter(
		WithSession("s1"),
		WithMode(kit.ModeAutonomous),
		WithStatuses(StatusPending, StatusFailed),
		WithPrepared(true),
		WithText("hbar"),
	).where()

	want := " WHERE session_id = ? AND (mode = ? OR mode = '') AND status IN (?,?) AND prepared_count > 0" +
		" AND (id LIKE ? OR session_id LIKE ? OR message LIKE ? OR last_error LIKE ? OR result_reply LIKE ?)"
	if where != want {
		t.Fatalf("unexpected where:\n%s\n%s", where, want)
	}
	if len(args) != 9 || args[0] != "s1" || args[1] != "autonomous" || args[3] != "failed" || args[4] != "%hbar%" {
		t.Fatalf("unexpected args %v", args)
	}

	if where, args := NewFilter().where(); where != "" || args != nil {
		t.Fatalf("empty filter should not add conditions: %q %v", where, args)
	}
	if where, _ := NewFilter(WithReplied(false), WithMode(kit.ModeReturnBytes)).where(); where != " WHERE mode = ? AND COALESCE(result_reply, '') = ''" {
		t.Fatalf("unexpected where %q", where)
	}
	if NewFilter(WithOrder(OldestFirst)).orderBy() != " ORDER BY updated_at ASC, created_at ASC, id ASC" {
		t.Fatalf("unexpected order")
	}
}
