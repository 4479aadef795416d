package task

import "context"

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 ExecutionResult 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}

// ApologyRecovery 在不可重试的失败后写入一条说明性的回复，使调用方总能拿到可展示的结果。
type ApologyRecovery struct {
	Reply string
}

// Recover 实现 RecoveryHandler。
func (r ApologyRecovery) Recover(_ context.Context, _ *Task, _ error) (*ExecutionResult, error) {
	reply := r.Reply
	if reply == "" {
		reply = "The request could not be completed. Please rephrase it or try again later."
	}
	return &ExecutionResult{Reply: reply}, nil
}
