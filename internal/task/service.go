package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/logger"
)

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// SubmitRequest 描述一次异步对话请求。ID 可选，用于幂等提交。
type SubmitRequest struct {
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	AccountID string         `json:"account_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// validate 校验请求并返回规范化后的执行模式。
func (r SubmitRequest) validate() (kit.Mode, error) {
	if strings.TrimSpace(r.Message) == "" {
		return "", xerrors.New(CodeTaskValidation, "消息内容不能为空")
	}
	mode, err := kit.ParseMode(r.Mode)
	if err != nil {
		return "", xerrors.Wrap(CodeTaskValidation, err, "执行模式无效")
	}
	if err := (kit.Context{AccountID: strings.TrimSpace(r.AccountID), Mode: mode}).Validate(); err != nil {
		return "", xerrors.Wrap(CodeTaskValidation, err, "账户上下文无效")
	}
	return mode, nil
}

// Submit 为一次对话轮次创建任务并投递到会话所在的队列分片。
// 携带已存在的 ID 重复提交时直接返回已有任务。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	mode, err := req.validate()
	if err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	if existing, err := s.lookup(ctx, req.ID); existing != nil || err != nil {
		return existing, err
	}

	task := s.newTask(req, mode)
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			if existing, getErr := s.lookup(ctx, task.ID); existing != nil || getErr != nil {
				return existing, getErr
			}
		}
		return nil, err
	}
	if err := s.enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// lookup 按幂等 ID 查找已提交的任务，不存在时返回 nil, nil。
func (s *Service) lookup(ctx context.Context, id string) (*Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	task, err := s.store.Get(ctx, id)
	if stdErrors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	return task, err
}

func (s *Service) newTask(req SubmitRequest, mode kit.Mode) *Task {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	session := strings.TrimSpace(req.SessionID)
	if session == "" {
		session = uuid.NewString()
	}
	return &Task{
		ID:         id,
		SessionID:  session,
		Message:    strings.TrimSpace(req.Message),
		AccountID:  strings.TrimSpace(req.AccountID),
		Mode:       string(mode),
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
}

// enqueue 投递任务，失败时把任务直接标记为终止失败。
func (s *Service) enqueue(ctx context.Context, task *Task) error {
	if err := s.producer.Publish(ctx, task.Delivery()); err != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "对话任务入队失败", xerrors.WithMetadata("session_id", task.SessionID))
		logger.Named("task").Error("对话任务入队失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
		_ = s.store.MarkFailed(ctx, task.ID, CodeTaskPublish, wrapped.Error(), true)
		return wrapped
	}
	logger.Audit().Info("对话任务已入队",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("account_id", task.AccountID),
		slog.String("mode", task.Mode),
		slog.Int("max_retries", task.MaxRetries),
	)
	return nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, NewFilter(opts...))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, NewFilter(opts...))
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询任务状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status == StatusSucceeded || task.Status == StatusFailed {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
