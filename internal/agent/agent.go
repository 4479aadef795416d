package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashgraph/hedera-sdk-go/v2"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/internal/knowledge"
	"hedera-agent-kit/internal/llm"
	"hedera-agent-kit/internal/storage/mysql"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
	"hedera-agent-kit/pkg/logger"
)

// ChatRequest 描述一次用户对话请求。
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	// AccountID 是钱包账户，returnBytes 模式下必填。
	AccountID string `json:"account_id,omitempty"`
	// Mode 覆盖默认执行模式，可选 autonomous、returnBytes 或 human。
	Mode string `json:"mode,omitempty"`
}

// ToolCallRecord 记录一次工具调用及其结果。
type ToolCallRecord struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result"`
	Failed    bool            `json:"failed"`
}

// PreparedTransaction 是待钱包签名的冻结交易。
type PreparedTransaction struct {
	Tool          string `json:"tool"`
	TransactionID string `json:"transaction_id"`
	Bytes         []byte `json:"bytes"`
}

// ChatResult 汇总一次对话的回复、工具调用与待签名交易。
type ChatResult struct {
	SessionID    string                `json:"session_id"`
	Mode         string                `json:"mode"`
	Reply        string                `json:"reply"`
	ToolCalls    []ToolCallRecord      `json:"tool_calls,omitempty"`
	Transactions []PreparedTransaction `json:"transactions,omitempty"`
	CreatedAt    int64                 `json:"created_at"`
}

// ToolkitFactory 为某个账户上下文构建工具集。
type ToolkitFactory func(ctx kit.Context) (*kit.Toolkit, error)

// NewToolkitFactory 基于共享的插件注册表为每次请求构建工具集。
func NewToolkitFactory(client *hedera.Client, base kit.Configuration) ToolkitFactory {
	return func(ctx kit.Context) (*kit.Toolkit, error) {
		cfg := base
		cfg.Context = ctx
		cfg.Plugins = nil
		return kit.NewToolkit(client, cfg)
	}
}

// Agent 协调大模型与账本工具，是系统的业务核心。
type Agent struct {
	llmClient    llm.Client
	toolkits     ToolkitFactory
	conversation mysql.ConversationRepository
	knowledge    knowledge.Provider
	memoryDepth  int
	maxRounds    int
	llmTimeout   time.Duration
	defaultMode  kit.Mode
	temperature  *float32
	log          *slog.Logger
	onTool       func(tool, outcome string)
	onLLM        func(err error)
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

const (
	defaultMemoryDepth   = 10
	defaultMaxToolRounds = 5
)

// WithMemoryDepth 设置大模型调用时可参考的历史消息数量。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithMaxToolRounds 设置单次对话中模型与工具往返的最大轮数。
func WithMaxToolRounds(rounds int) Option {
	return func(a *Agent) {
		a.maxRounds = rounds
	}
}

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Agent) {
		a.knowledge = provider
	}
}

// WithConversationRepository 配置会话持久化。
func WithConversationRepository(repo mysql.ConversationRepository) Option {
	return func(a *Agent) {
		a.conversation = repo
	}
}

// WithLLMTimeout 设置单次调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// WithDefaultMode 设置请求未指定时使用的执行模式。
func WithDefaultMode(mode kit.Mode) Option {
	return func(a *Agent) {
		a.defaultMode = mode
	}
}

// WithTemperature 设置采样温度。
func WithTemperature(t *float32) Option {
	return func(a *Agent) {
		a.temperature = t
	}
}

// WithLogger 指定日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithObservers 注册工具调用与模型调用的观测回调，通常接入指标。
func WithObservers(onTool func(tool, outcome string), onLLM func(err error)) Option {
	return func(a *Agent) {
		a.onTool = onTool
		a.onLLM = onLLM
	}
}

// New 创建一个 Agent。
func New(llmClient llm.Client, toolkits ToolkitFactory, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:   llmClient,
		toolkits:    toolkits,
		memoryDepth: defaultMemoryDepth,
		maxRounds:   defaultMaxToolRounds,
		defaultMode: kit.ModeAutonomous,
		log:         logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth < 0 {
		ag.memoryDepth = 0
	}
	if ag.maxRounds <= 0 {
		ag.maxRounds = defaultMaxToolRounds
	}
	return ag
}

// Chat 让大模型基于会话历史回答用户消息，并按需调用账本工具。
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if a.llmClient == nil || a.toolkits == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端或工具集")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	mode := a.defaultMode
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := kit.ParseMode(req.Mode)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "执行模式无效")
		}
		mode = parsed
	}
	kitCtx := kit.Context{AccountID: strings.TrimSpace(req.AccountID), Mode: mode}
	toolkit, err := a.toolkits(kitCtx)
	if err != nil {
		if stdErrors.Is(err, kit.ErrAccountRequired) || strings.Contains(err.Error(), "invalid context account") {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "账户上下文无效")
		}
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "构建工具集失败")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := a.log.With(slog.String("session_id", sessionID), slog.String("mode", mode.String()))

	history, err := a.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tools := toolkit.Tools()
	specs := make([]llm.ToolSpec, 0, len(tools))
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, llm.ToolSpec{Name: tool.Method(), Description: tool.Description(), Parameters: tool.Schema()})
		names = append(names, tool.Method())
	}
	system := kit.SystemPrompt(kitCtx, a.collectKnowledge(message, names))

	turn := []llm.Message{{Role: llm.RoleUser, Content: message}}
	result := &ChatResult{SessionID: sessionID, Mode: mode.String()}

	for round := 0; ; round++ {
		offerTools := specs
		if round >= a.maxRounds {
			// 达到上限后不再提供工具，强制模型给出文本答复。
			offerTools = nil
		}
		resp, err := a.complete(ctx, llm.ChatRequest{
			System:      system,
			Messages:    append(append([]llm.Message{}, history...), turn...),
			Tools:       offerTools,
			Temperature: a.temperature,
		})
		if err != nil {
			return nil, err
		}
		reply := resp.Message
		reply.Role = llm.RoleAssistant
		turn = append(turn, reply)

		if len(reply.ToolCalls) == 0 || offerTools == nil {
			result.Reply = strings.TrimSpace(reply.Content)
			break
		}
		for _, call := range reply.ToolCalls {
			record, prepared, err := a.invoke(ctx, toolkit, call)
			if err != nil {
				return nil, err
			}
			log.Info("工具调用完成", slog.String("tool", call.Name), slog.Bool("failed", record.Failed))
			result.ToolCalls = append(result.ToolCalls, record)
			if prepared != nil {
				result.Transactions = append(result.Transactions, *prepared)
			}
			turn = append(turn, llm.Message{
				Role:       llm.RoleTool,
				Content:    record.Result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	result.CreatedAt = time.Now().Unix()
	if err := a.persist(ctx, sessionID, turn, result); err != nil {
		return nil, err
	}
	for _, tx := range result.Transactions {
		logger.Audit().Info("交易已返回钱包签名",
			slog.String("session_id", sessionID),
			slog.String("account", kitCtx.AccountID),
			slog.String("tool", tx.Tool),
			slog.String("transaction_id", tx.TransactionID),
		)
	}
	return result, nil
}

// History 返回会话中最近的消息，按时间正序。
func (a *Agent) History(ctx context.Context, sessionID string, limit int) ([]mysql.MessageRecord, error) {
	if a.conversation == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话仓库")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	records, err := a.conversation.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话失败")
	}
	if len(records) == 0 {
		return nil, xerrors.New(xerrors.CodeNotFound, "会话不存在")
	}
	return records, nil
}

// ClearSession 删除会话的全部消息与回执。
func (a *Agent) ClearSession(ctx context.Context, sessionID string) error {
	if a.conversation == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置会话仓库")
	}
	if strings.TrimSpace(sessionID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	if err := a.conversation.DeleteSession(ctx, sessionID); err != nil {
		if stdErrors.Is(err, mysql.ErrNotFound) {
			return xerrors.Wrap(xerrors.CodeNotFound, err, "会话不存在")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除会话失败")
	}
	return nil
}

// RecordReceipt 保存钱包回报的交易执行结果。
func (a *Agent) RecordReceipt(ctx context.Context, receipt mysql.ReceiptRecord) (*mysql.ReceiptRecord, error) {
	if a.conversation == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话仓库")
	}
	receipt.TransactionID = strings.TrimSpace(receipt.TransactionID)
	if receipt.SessionID == "" || receipt.TransactionID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 与交易 ID 不能为空")
	}
	if _, err := hedera.TransactionIdFromString(receipt.TransactionID); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "交易 ID 无效")
	}
	if receipt.Status == "" {
		receipt.Status = "SUCCESS"
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = time.Now().Unix()
	}
	if err := a.conversation.SaveReceipt(ctx, &receipt); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存交易回执失败")
	}
	logger.Audit().Info("钱包回报交易结果",
		slog.String("session_id", receipt.SessionID),
		slog.String("transaction_id", receipt.TransactionID),
		slog.String("status", receipt.Status),
	)
	return &receipt, nil
}

// Receipts 列出会话的交易回执。
func (a *Agent) Receipts(ctx context.Context, sessionID string) ([]mysql.ReceiptRecord, error) {
	if a.conversation == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话仓库")
	}
	records, err := a.conversation.ListReceipts(ctx, sessionID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易回执失败")
	}
	return records, nil
}

// complete 调用大模型并归类错误。
func (a *Agent) complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	resp, err := a.llmClient.Chat(llmCtx, req)
	if a.onLLM != nil {
		a.onLLM(err)
	}
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, llm.ErrEmptyResponse, "大模型推理失败")
	}
	return resp, nil
}

// invoke 执行一次工具调用。工具层面的失败作为结果返回给模型，只有上下文取消才中断对话。
func (a *Agent) invoke(ctx context.Context, toolkit *kit.Toolkit, call llm.ToolCall) (ToolCallRecord, *PreparedTransaction, error) {
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	record := ToolCallRecord{Tool: call.Name, Arguments: args}

	res, err := toolkit.Execute(ctx, call.Name, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return record, nil, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, "工具调用被取消")
		}
		res = kit.ErrorResult(fmt.Sprintf("Failed to run %s", call.Name), err)
	}
	encoded, err := res.JSON()
	if err != nil {
		return record, nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "编码工具结果失败")
	}
	record.Result = encoded
	record.Failed = res.Failed()
	a.observeTool(call.Name, res)

	if bytes, ok := res.Raw.(*dispatch.Bytes); ok && bytes != nil {
		return record, &PreparedTransaction{Tool: call.Name, TransactionID: bytes.TransactionID, Bytes: bytes.Bytes}, nil
	}
	return record, nil, nil
}

func (a *Agent) observeTool(tool string, res *kit.Result) {
	if a.onTool == nil {
		return
	}
	outcome := "success"
	if res.Failed() {
		outcome = "failure"
	}
	a.onTool(tool, outcome)
}

// loadHistory 加载会话历史以供大模型参考。
func (a *Agent) loadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if a.conversation == nil || a.memoryDepth == 0 {
		return nil, nil
	}
	records, err := a.conversation.ListMessages(ctx, sessionID, a.memoryDepth)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "加载会话历史失败")
	}
	history := make([]llm.Message, 0, len(records))
	for _, record := range records {
		msg := llm.Message{
			Role:       llm.Role(record.Role),
			Content:    record.Content,
			ToolCallID: record.ToolCallID,
			Name:       record.Name,
		}
		if record.ToolCalls != "" {
			if err := json.Unmarshal([]byte(record.ToolCalls), &msg.ToolCalls); err != nil {
				a.log.Warn("忽略无法解析的工具调用记录", slog.Int64("id", record.ID), slog.Any("error", err))
			}
		}
		history = append(history, msg)
	}
	return trimOrphanToolResults(history), nil
}

// trimOrphanToolResults 去掉窗口开头缺少对应调用的工具结果。
func trimOrphanToolResults(history []llm.Message) []llm.Message {
	for len(history) > 0 && history[0].Role == llm.RoleTool {
		history = history[1:]
	}
	return history
}

// collectKnowledge 从知识库中检索相关内容并渲染为提示词段落。
func (a *Agent) collectKnowledge(message string, tools []string) string {
	if a.knowledge == nil {
		return ""
	}
	return knowledge.Render(a.knowledge.Query(message, tools))
}

func (a *Agent) persist(ctx context.Context, sessionID string, turn []llm.Message, result *ChatResult) error {
	if a.conversation == nil {
		return nil
	}
	records := make([]*mysql.MessageRecord, 0, len(turn))
	for _, msg := range turn {
		record := &mysql.MessageRecord{
			SessionID:  sessionID,
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
			CreatedAt:  result.CreatedAt,
		}
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "编码工具调用失败")
			}
			record.ToolCalls = string(encoded)
		}
		records = append(records, record)
	}
	if err := a.conversation.AppendMessages(ctx, records); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存会话失败")
	}
	for _, tx := range result.Transactions {
		receipt := &mysql.ReceiptRecord{
			SessionID:     sessionID,
			TransactionID: tx.TransactionID,
			Status:        "PENDING_SIGNATURE",
			Detail:        tx.Tool,
			CreatedAt:     result.CreatedAt,
		}
		if err := a.conversation.SaveReceipt(ctx, receipt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存待签名交易失败")
		}
	}
	return nil
}
