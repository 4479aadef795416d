package task

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "hedera-agent-kit/internal/errors"
)

// MemoryStore 以内存方式保存任务状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if task.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return ErrTaskConflict
	}
	now := time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// update 在写锁内修改任务并刷新更新时间。fn 返回错误时不刷新。
func (m *MemoryStore) update(id string, fn func(*Task) error) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if err := fn(task); err != nil {
		return cloneTask(task), err
	}
	task.UpdatedAt = time.Now().Unix()
	return cloneTask(task), nil
}

// Claim 将 pending 任务更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	return m.update(id, func(task *Task) error {
		if err := task.claimable(); err != nil {
			return err
		}
		task.Status = StatusRunning
		task.Attempts++
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
}

// MarkSucceeded 记录对话回复与待签名交易。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result ExecutionResult) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusSucceeded
		task.Result = cloneResult(&result)
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
	return err
}

// MarkFailed 标记任务失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusPending
		if terminal {
			task.Status = StatusFailed
		}
		task.LastError = lastError
		task.ErrorCode = string(code)
		return nil
	})
	return err
}

func (m *MemoryStore) matching(filter Filter) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if filter.Match(task) {
			results = append(results, cloneTask(task))
		}
	}
	return results
}

// List 返回符合条件的任务。
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]*Task, error) {
	filter.normalise()
	results := m.matching(filter)
	sort.Slice(results, func(i, j int) bool { return filter.before(results[i], results[j]) })

	if filter.Offset >= len(results) {
		return []*Task{}, nil
	}
	results = results[filter.Offset:]
	if len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务。
func (m *MemoryStore) Stats(_ context.Context, filter Filter) (TaskStats, error) {
	filter.normalise()
	var stats TaskStats
	sessions := make(map[string]struct{})
	for _, task := range m.matching(filter) {
		stats.add(task)
		sessions[task.SessionID] = struct{}{}
	}
	stats.Sessions = len(sessions)
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTask(task *Task) *Task {
	clone := *task
	clone.Result = cloneResult(task.Result)
	clone.Metadata = cloneMetadata(task.Metadata)
	return &clone
}

var _ Store = (*MemoryStore)(nil)
