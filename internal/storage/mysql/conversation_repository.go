package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("记录不存在")

// MessageRecord 表示会话中的一条消息。
type MessageRecord struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCalls  string `json:"tool_calls,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// ReceiptRecord 记录钱包回报的交易结果。
type ReceiptRecord struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// ConversationRepository 抽象会话与钱包回执的持久化接口。
type ConversationRepository interface {
	AppendMessages(ctx context.Context, records []*MessageRecord) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SaveReceipt(ctx context.Context, record *ReceiptRecord) error
	ListReceipts(ctx context.Context, sessionID string) ([]ReceiptRecord, error)
}

const maxMemoryMessagesPerSession = 512

type fileEntry struct {
	Kind    string         `json:"kind"`
	Message *MessageRecord `json:"message,omitempty"`
	Receipt *ReceiptRecord `json:"receipt,omitempty"`
	Session string         `json:"session,omitempty"`
}

// MemoryConversationRepository 使用本地 JSON Lines 文件模拟 MySQL 的效果，方便迭代开发。
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	dataFile string
	nextID   int64
	messages map[string][]MessageRecord
	receipts map[string][]ReceiptRecord
}

// NewMemoryConversationRepository 创建一个内存会话仓库，并从磁盘恢复历史。
func NewMemoryConversationRepository(dataDir string) (*MemoryConversationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryConversationRepository{
		dataFile: filepath.Join(dataDir, "conversations.log"),
		messages: make(map[string][]MessageRecord),
		receipts: make(map[string][]ReceiptRecord),
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// AppendMessages 以追加写的方式记录消息并分配 ID。
func (m *MemoryConversationRepository) AppendMessages(_ context.Context, records []*MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]fileEntry, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		if strings.TrimSpace(record.SessionID) == "" {
			return fmt.Errorf("会话 ID 不能为空")
		}
		m.nextID++
		record.ID = m.nextID
		copied := *record
		entries = append(entries, fileEntry{Kind: "message", Message: &copied})
	}
	if err := m.appendToDisk(entries); err != nil {
		return err
	}
	for _, entry := range entries {
		m.applyMessage(*entry.Message)
	}
	return nil
}

// ListMessages 返回会话最近的 limit 条消息，按时间正序排列。
func (m *MemoryConversationRepository) ListMessages(_ context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	results := make([]MessageRecord, limit)
	copy(results, all[len(all)-limit:])
	return results, nil
}

// DeleteSession 删除会话的全部消息与回执。
func (m *MemoryConversationRepository) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[sessionID]; !ok {
		if _, ok := m.receipts[sessionID]; !ok {
			return ErrNotFound
		}
	}
	if err := m.appendToDisk([]fileEntry{{Kind: "delete", Session: sessionID}}); err != nil {
		return err
	}
	delete(m.messages, sessionID)
	delete(m.receipts, sessionID)
	return nil
}

// SaveReceipt 记录钱包回执。
func (m *MemoryConversationRepository) SaveReceipt(_ context.Context, record *ReceiptRecord) error {
	if record == nil {
		return fmt.Errorf("回执不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID
	copied := *record
	if err := m.appendToDisk([]fileEntry{{Kind: "receipt", Receipt: &copied}}); err != nil {
		return err
	}
	m.applyReceipt(copied)
	return nil
}

// applyReceipt 按交易 ID 覆盖已有回执，与 SQL 实现的唯一键语义一致。
func (m *MemoryConversationRepository) applyReceipt(record ReceiptRecord) {
	list := m.receipts[record.SessionID]
	for i := range list {
		if list[i].TransactionID == record.TransactionID {
			record.ID = list[i].ID
			record.CreatedAt = list[i].CreatedAt
			list[i] = record
			return
		}
	}
	m.receipts[record.SessionID] = append(list, record)
}

// ListReceipts 返回会话的钱包回执。
func (m *MemoryConversationRepository) ListReceipts(_ context.Context, sessionID string) ([]ReceiptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ReceiptRecord, len(m.receipts[sessionID]))
	copy(results, m.receipts[sessionID])
	return results, nil
}

// Sessions 返回已知会话 ID。
func (m *MemoryConversationRepository) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.messages))
	for id := range m.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryConversationRepository) applyMessage(record MessageRecord) {
	list := append(m.messages[record.SessionID], record)
	if len(list) > maxMemoryMessagesPerSession {
		list = list[len(list)-maxMemoryMessagesPerSession:]
	}
	m.messages[record.SessionID] = list
}

func (m *MemoryConversationRepository) appendToDisk(entries []fileEntry) error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开会话日志失败: %w", err)
	}
	defer file.Close()

	var buf []byte
	for _, entry := range entries {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("序列化会话记录失败: %w", err)
		}
		buf = append(buf, encoded...)
		buf = append(buf, '\n')
	}
	if _, err := file.Write(buf); err != nil {
		return fmt.Errorf("写入会话日志失败: %w", err)
	}
	return nil
}

func (m *MemoryConversationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取会话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry fileEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		switch entry.Kind {
		case "message":
			if entry.Message == nil {
				continue
			}
			m.applyMessage(*entry.Message)
			if entry.Message.ID > m.nextID {
				m.nextID = entry.Message.ID
			}
		case "receipt":
			if entry.Receipt == nil {
				continue
			}
			m.applyReceipt(*entry.Receipt)
			if entry.Receipt.ID > m.nextID {
				m.nextID = entry.Receipt.ID
			}
		case "delete":
			delete(m.messages, entry.Session)
			delete(m.receipts, entry.Session)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析会话日志失败: %w", err)
	}
	return nil
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLConversationRepository 使用真实的 MySQL 数据库存储会话。
type SQLConversationRepository struct {
	db   *sql.DB
	exec sqlExecutor
}

// NewSQLConversationRepository 创建连接池并执行迁移。
func NewSQLConversationRepository(ctx context.Context, cfg Config) (*SQLConversationRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SQLConversationRepository{db: db}, nil
}

func (s *SQLConversationRepository) executor() sqlExecutor {
	if s.exec != nil {
		return s.exec
	}
	return s.db
}

// WithTransaction 在事务中执行 fn，fn 返回错误时回滚。
func (s *SQLConversationRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo ConversationRepository) error) error {
	if s.exec != nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	if err := fn(ctx, &SQLConversationRepository{db: s.db, exec: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// AppendMessages 写入消息并回填自增 ID。
func (s *SQLConversationRepository) AppendMessages(ctx context.Context, records []*MessageRecord) error {
	const stmt = `INSERT INTO conversation_messages
    (session_id, role, content, tool_calls, tool_call_id, name, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, record := range records {
		if record == nil {
			continue
		}
		res, err := s.executor().ExecContext(ctx, stmt,
			record.SessionID,
			record.Role,
			record.Content,
			record.ToolCalls,
			record.ToolCallID,
			record.Name,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("写入会话消息失败: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("读取消息 ID 失败: %w", err)
		}
		record.ID = id
	}
	return nil
}

// ListMessages 查询会话最近的 limit 条消息，按时间正序返回。
func (s *SQLConversationRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = maxMemoryMessagesPerSession
	}

	rows, err := s.executor().QueryContext(ctx, `SELECT id, session_id, role, content, tool_calls, tool_call_id, name, created_at
    FROM conversation_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询会话消息失败: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var (
			record    MessageRecord
			toolCalls sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Role, &record.Content, &toolCalls, &record.ToolCallID, &record.Name, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析会话消息失败: %w", err)
		}
		record.ToolCalls = toolCalls.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话消息失败: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// DeleteSession 删除会话的消息与回执。
func (s *SQLConversationRepository) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.executor().ExecContext(ctx, `DELETE FROM conversation_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("删除会话消息失败: %w", err)
	}
	if _, err := s.executor().ExecContext(ctx, `DELETE FROM wallet_receipts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("删除钱包回执失败: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveReceipt 写入钱包回执，同一交易重复上报时覆盖状态。
func (s *SQLConversationRepository) SaveReceipt(ctx context.Context, record *ReceiptRecord) error {
	if record == nil {
		return fmt.Errorf("回执不能为空")
	}
	const stmt = `INSERT INTO wallet_receipts (session_id, transaction_id, status, detail, created_at)
    VALUES (?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE status = VALUES(status), detail = VALUES(detail)`

	res, err := s.executor().ExecContext(ctx, stmt, record.SessionID, record.TransactionID, record.Status, record.Detail, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("写入钱包回执失败: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListReceipts 查询会话的钱包回执。
func (s *SQLConversationRepository) ListReceipts(ctx context.Context, sessionID string) ([]ReceiptRecord, error) {
	rows, err := s.executor().QueryContext(ctx, `SELECT id, session_id, transaction_id, status, detail, created_at
    FROM wallet_receipts WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询钱包回执失败: %w", err)
	}
	defer rows.Close()

	var records []ReceiptRecord
	for rows.Next() {
		var (
			record ReceiptRecord
			detail sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.TransactionID, &record.Status, &detail, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析钱包回执失败: %w", err)
		}
		record.Detail = detail.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历钱包回执失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLConversationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ ConversationRepository = (*MemoryConversationRepository)(nil)
	_ ConversationRepository = (*SQLConversationRepository)(nil)
)
