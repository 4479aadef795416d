package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "hedera-agent-kit/internal/errors"
	storage "hedera-agent-kit/internal/storage/mysql"
)

// MySQLStore 使用 MySQL 记录任务状态。表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore，并确保迁移已执行。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	db, err := storage.Open(ctx, storage.Config{DSN: dsn, ConnMaxLifetime: 10 * time.Minute})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化任务存储失败")
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreWithDB 复用已有连接池。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const taskColumns = `id, session_id, message, account_id, mode, metadata, status, attempts, max_retries, last_error, error_code,
        result_reply, result_transactions, result_tool_calls, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create 插入新的任务记录。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	task.CreatedAt = time.Now().Unix()
	task.UpdatedAt = task.CreatedAt

	metadata, err := marshalJSON(task.Metadata, len(task.Metadata) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务 metadata 失败")
	}

	const insertTask = `INSERT INTO task_states
        (id, session_id, message, account_id, mode, metadata, status, attempts, max_retries,
         last_error, error_code, prepared_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', 0, ?, ?)`
	if _, err = s.db.ExecContext(ctx, insertTask,
		task.ID, task.SessionID, task.Message, task.AccountID, task.Mode, metadata,
		task.Status, task.Attempts, task.MaxRetries, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		if isDuplicateKey(err) {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入对话任务失败", xerrors.WithMetadata("session_id", task.SessionID))
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_states WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return task, nil
}

// Claim 将任务标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const updateStmt = `UPDATE task_states SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status = ? AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, updateStmt, StatusRunning, time.Now().Unix(), id, StatusPending)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	task, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected > 0 {
		return task, nil
	}
	if err := task.claimable(); err != nil {
		return task, err
	}
	// 条件更新落空但读回时仍可领取，说明另一个消费者刚刚改过这一行。
	return task, ErrTaskConflict
}

// MarkSucceeded 记录对话回复、待签名交易与工具调用。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	txs, err := marshalJSON(result.Transactions, len(result.Transactions) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码交易结果失败")
	}
	calls, err := marshalJSON(result.ToolCalls, len(result.ToolCalls) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码工具调用失败")
	}
	return s.transition(ctx, id, "标记任务成功失败",
		`status = ?, result_reply = ?, result_transactions = ?, result_tool_calls = ?, prepared_count = ?, last_error = '', error_code = ''`,
		StatusSucceeded, result.Reply, txs, calls, len(result.Transactions))
}

// MarkFailed 记录失败原因，非终止失败会让任务回到 pending。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	return s.transition(ctx, id, "标记任务失败失败",
		`status = ?, last_error = ?, error_code = ?`,
		status, lastError, string(code))
}

// transition 执行单行状态更新并刷新 updated_at，未命中时返回 ErrTaskNotFound。
func (s *MySQLStore) transition(ctx context.Context, id, failure, set string, args ...any) error {
	args = append(args, time.Now().Unix(), id)
	res, err := s.db.ExecContext(ctx, `UPDATE task_states SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, failure, xerrors.WithMetadata("task_id", id))
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回符合条件的任务。
func (s *MySQLStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	filter.normalise()
	where, args := filter.where()
	query := `SELECT ` + taskColumns + ` FROM task_states` + where + filter.orderBy() + ` LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, filter.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

const statsQuery = `SELECT
        COUNT(*),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COUNT(DISTINCT session_id),
        COALESCE(SUM(prepared_count), 0),
        COALESCE(MIN(updated_at), 0),
        COALESCE(MAX(updated_at), 0)
        FROM task_states`

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, filter Filter) (TaskStats, error) {
	filter.normalise()
	where, filterArgs := filter.where()
	args := append([]any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}, filterArgs...)

	var stats TaskStats
	if err := s.db.QueryRowContext(ctx, statsQuery+where, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Sessions,
		&stats.Transactions,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                       Task
		metadata, lastError        sql.NullString
		reply, txs, calls, errCode sql.NullString
		accountID, mode            sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.SessionID,
		&task.Message,
		&accountID,
		&mode,
		&metadata,
		&task.Status,
		&task.Attempts,
		&task.MaxRetries,
		&lastError,
		&errCode,
		&reply,
		&txs,
		&calls,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.AccountID = accountID.String
	task.Mode = mode.String
	task.LastError = lastError.String
	task.ErrorCode = errCode.String

	if err := unmarshalJSON(metadata, &task.Metadata); err != nil {
		return nil, fmt.Errorf("解析任务 metadata 失败: %w", err)
	}
	result := ExecutionResult{Reply: reply.String}
	if err := unmarshalJSON(txs, &result.Transactions); err != nil {
		return nil, fmt.Errorf("解析交易结果失败: %w", err)
	}
	if err := unmarshalJSON(calls, &result.ToolCalls); err != nil {
		return nil, fmt.Errorf("解析工具调用失败: %w", err)
	}
	if !result.Empty() {
		task.Result = &result
	}
	return &task, nil
}

func marshalJSON(value any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalJSON(raw sql.NullString, out any) error {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), out)
}

var _ Store = (*MySQLStore)(nil)
