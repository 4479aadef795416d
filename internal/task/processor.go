package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hedera-agent-kit/internal/agent"
	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/internal/observability/alerting"
	"hedera-agent-kit/pkg/logger"
)

// Executor 是处理器驱动的对话代理。
type Executor interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResult, error)
}

// Processor 消费对话任务投递，按会话串行地交给代理执行并记录结果。
type Processor struct {
	executor Executor
	store    Store
	consumer Consumer
	producer Producer
	workers  int
	log      *slog.Logger
	recovery RecoveryHandler
	alerter  alerting.Dispatcher
	sessions sessionGate
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定运行日志，审计日志始终写入 logger.Audit()。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}

// WithWorkerCount 设置同时执行的任务数。
func WithWorkerCount(n int) ProcessorOption {
	return func(p *Processor) { p.workers = n }
}

// WithRecoveryHandler 为不可重试的失败配置降级回复。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) { p.recovery = handler }
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// NewProcessor 构造 Processor，producer 用于重试时重新投递。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{executor: executor, store: store, consumer: consumer, producer: producer}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.log == nil {
		p.log = logger.Named("task")
	}
	return p
}

// Start 阻塞消费队列直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workers, p.handle)
}

func (p *Processor) handle(ctx context.Context, delivery Delivery) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	unlock := p.sessions.lock(delivery.SessionID)
	defer unlock()

	task, err := p.store.Claim(ctx, delivery.TaskID)
	switch {
	case stdErrors.Is(err, ErrTaskNotFound), stdErrors.Is(err, ErrTaskCompleted), stdErrors.Is(err, ErrTaskExhausted):
		p.log.Debug("跳过投递",
			slog.String("task_id", delivery.TaskID),
			slog.Int("attempt", delivery.Attempt),
			slog.String("reason", err.Error()))
		return nil
	case err != nil:
		p.log.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", delivery.TaskID))
		p.alert(ctx, &Task{ID: delivery.TaskID, SessionID: delivery.SessionID}, CodeTaskProcessing, err, "claim")
		return err
	}

	reply, execErr := p.executor.Chat(ctx, task.ChatRequest())
	if execErr != nil {
		return p.fail(ctx, task, execErr)
	}
	result := resultOf(reply)
	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		return p.retryAfterStoreFailure(ctx, task, CodeTaskProcessing, err, "标记成功失败")
	}
	logger.Audit().Info("对话任务完成",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("account_id", task.AccountID),
		slog.String("mode", string(task.EffectiveMode())),
		slog.Int("attempt", task.Attempts),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("prepared_transactions", len(result.Transactions)),
	)
	return nil
}

func resultOf(reply *agent.ChatResult) ExecutionResult {
	if reply == nil {
		return ExecutionResult{}
	}
	return ExecutionResult{Reply: reply.Reply, Transactions: reply.Transactions, ToolCalls: reply.ToolCalls}
}

// failurePlan 是一次执行失败的处理结论。
type failurePlan struct {
	code      xerrors.Code
	retryable bool
	terminal  bool
	stage     string
}

// planFailure 按错误归类与剩余次数决定重试、降级还是终止。
func planFailure(task *Task, err error) failurePlan {
	classified := xerrors.Classify(err)
	plan := failurePlan{code: classified.Code(), retryable: classified.Retryable()}
	if plan.code == xerrors.CodeUnknown {
		plan.code = CodeTaskProcessing
	}
	plan.terminal = !plan.retryable || task.Attempts >= task.MaxRetries
	plan.stage = "retry"
	if plan.terminal {
		plan.stage = "terminal"
	}
	return plan
}

func (p *Processor) fail(ctx context.Context, task *Task, execErr error) error {
	plan := planFailure(task, execErr)

	if !plan.retryable && p.recovery != nil {
		handled, err := p.degrade(ctx, task, plan, execErr)
		if handled || err != nil {
			return err
		}
	}

	if err := p.store.MarkFailed(ctx, task.ID, plan.code, execErr.Error(), plan.terminal); err != nil {
		p.log.Error("记录任务失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Warn("对话任务失败",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("stage", plan.stage),
		slog.String("error_code", string(plan.code)),
		slog.String("error", execErr.Error()),
		slog.Int("attempt", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)
	p.alert(ctx, task, plan.code, execErr, plan.stage)

	if plan.terminal {
		return nil
	}
	if err := p.requeue(ctx, task, "执行失败"); err != nil {
		return err
	}
	p.log.Debug("任务已重新投递", slog.String("task_id", task.ID), slog.Int("attempt", task.Attempts))
	return nil
}

// degrade 写入补偿回复。handled 为 true 表示任务已有最终结果。
func (p *Processor) degrade(ctx context.Context, task *Task, plan failurePlan, execErr error) (handled bool, err error) {
	fallback, recErr := p.recovery.Recover(ctx, task, execErr)
	if recErr != nil {
		wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败")
		p.log.Error("执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
		p.alert(ctx, task, CodeTaskCompensate, wrapped, "compensate")
		return false, nil
	}
	if fallback == nil {
		return false, nil
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, *fallback); err != nil {
		return true, p.retryAfterStoreFailure(ctx, task, plan.code, err, "降级失败")
	}
	logger.Audit().Warn("对话任务降级完成",
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("error_code", string(plan.code)),
		slog.String("cause", execErr.Error()),
	)
	p.alert(ctx, task, plan.code, execErr, "degraded")
	return true, nil
}

// retryAfterStoreFailure 在写结果失败后将任务放回 pending 并重新投递。
func (p *Processor) retryAfterStoreFailure(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) error {
	p.log.Error("写入任务结果失败", slog.Any("error", cause), slog.String("task_id", task.ID), slog.String("stage", stage))
	if err := p.store.MarkFailed(ctx, task.ID, code, cause.Error(), false); err != nil {
		p.log.Error("回写失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	return p.requeue(ctx, task, stage)
}

func (p *Processor) requeue(ctx context.Context, task *Task, stage string) error {
	if err := p.producer.Publish(ctx, task.Delivery()); err != nil {
		return xerrors.Wrap(CodeTaskPublish, err, fmt.Sprintf("任务 %s 在%s后重投失败", task.ID, stage),
			xerrors.WithMetadata("session_id", task.SessionID))
	}
	return nil
}

// alertEvent 组装告警事件，错误归类得到的元数据（如账本状态）一并带上。
func alertEvent(task *Task, code xerrors.Code, cause error, stage string) alerting.Event {
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    attrs.Message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		SessionID:  task.SessionID,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if task.AccountID != "" {
		event.Metadata["account_id"] = task.AccountID
	}
	if cause != nil {
		event.Message = cause.Error()
		for k, v := range xerrors.Classify(cause).Metadata() {
			event.Metadata[k] = v
		}
	}
	return event
}

func (p *Processor) alert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	if err := p.alerter.Notify(ctx, alertEvent(task, code, cause, stage)); err != nil {
		p.log.Error("告警通知失败", slog.Any("error", err), slog.String("task_id", task.ID), slog.String("stage", stage))
	}
}

// sessionGate 让同一会话的任务在单个进程内串行执行，避免并发修改同一段对话历史。
type sessionGate struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (g *sessionGate) lock(sessionID string) func() {
	if sessionID == "" {
		return func() {}
	}
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*sessionLock)
	}
	l, ok := g.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		g.locks[sessionID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, sessionID)
		}
		g.mu.Unlock()
	}
}

// active 返回当前持有或等待锁的会话数量。
func (g *sessionGate) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
