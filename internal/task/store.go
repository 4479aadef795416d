package task

import (
	"context"

	xerrors "hedera-agent-kit/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	// MarkFailed 记录失败原因。terminal 为 false 时任务回到 pending，等待重新投递。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	// List 与 Stats 使用同一组过滤条件，Stats 忽略分页。
	List(ctx context.Context, filter Filter) ([]*Task, error)
	Stats(ctx context.Context, filter Filter) (TaskStats, error)
	Close() error
}
