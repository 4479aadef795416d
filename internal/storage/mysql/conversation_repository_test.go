package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"hedera-agent-kit/deploy/migrations"
)

func TestMemoryConversationRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryConversationRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	turn := []*MessageRecord{
		{SessionID: "s1", Role: "user", Content: "balance?", CreatedAt: 1},
		{SessionID: "s1", Role: "assistant", ToolCalls: `[{"id":"c1"}]`, CreatedAt: 2},
		{SessionID: "s1", Role: "tool", ToolCallID: "c1", Content: "10 HBAR", CreatedAt: 3},
		{SessionID: "s2", Role: "user", Content: "hi", CreatedAt: 4},
	}
	if err := repo.AppendMessages(ctx, turn); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if turn[3].ID != 4 {
		t.Fatalf("expected sequential ids, got %d", turn[3].ID)
	}

	recent, err := repo.ListMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Role != "assistant" || recent[1].ToolCallID != "c1" {
		t.Fatalf("unexpected list result: %+v", recent)
	}

	if err := repo.SaveReceipt(ctx, &ReceiptRecord{SessionID: "s1", TransactionID: "0.0.2@1.2", Status: "SUCCESS"}); err != nil {
		t.Fatalf("save receipt failed: %v", err)
	}
	if err := repo.DeleteSession(ctx, "s2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.DeleteSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	restored, err := NewMemoryConversationRepository(dir)
	if err != nil {
		t.Fatalf("failed to reopen memory repo: %v", err)
	}
	all, _ := restored.ListMessages(ctx, "s1", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 restored messages, got %d", len(all))
	}
	if sessions := restored.Sessions(); len(sessions) != 1 || sessions[0] != "s1" {
		t.Fatalf("unexpected sessions: %v", sessions)
	}
	receipts, _ := restored.ListReceipts(ctx, "s1")
	if len(receipts) != 1 || receipts[0].Status != "SUCCESS" {
		t.Fatalf("unexpected receipts: %+v", receipts)
	}

	next := &MessageRecord{SessionID: "s1", Role: "user", Content: "again"}
	if err := restored.AppendMessages(ctx, []*MessageRecord{next}); err != nil {
		t.Fatalf("append after restore failed: %v", err)
	}
	if next.ID != 6 {
		t.Fatalf("expected id to continue after restore, got %d", next.ID)
	}
}

func TestMemoryConversationRepositoryRequiresSession(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryConversationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	if err := repo.AppendMessages(context.Background(), []*MessageRecord{{Role: "user"}}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}

func TestSQLConversationRepositoryAppend(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(insertMessageSQL(), mockResult{lastInsertID: 41, rowsAffected: 1}),
		execOp(insertMessageSQL(), mockResult{lastInsertID: 42, rowsAffected: 1}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	records := []*MessageRecord{
		{SessionID: "s1", Role: "user", Content: "hi", CreatedAt: 1},
		{SessionID: "s1", Role: "assistant", Content: "hello", CreatedAt: 2},
	}
	if err := repo.AppendMessages(context.Background(), records); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if records[0].ID != 41 || records[1].ID != 42 {
		t.Fatalf("unexpected ids: %d %d", records[0].ID, records[1].ID)
	}
}

func TestSQLConversationRepositoryListMessages(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: []string{"id", "session_id", "role", "content", "tool_calls", "tool_call_id", "name", "created_at"},
		values: [][]driver.Value{
			{int64(2), "s1", "assistant", "hello", nil, "", "", int64(20)},
			{int64(1), "s1", "user", "hi", nil, "", "", int64(10)},
		},
	}

	db, driver := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, session_id, role, content, tool_calls, tool_call_id, name, created_at
    FROM conversation_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`, rows),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	list, err := repo.ListMessages(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].Content != "hello" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSQLConversationRepositoryReceipts(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: []string{"id", "session_id", "transaction_id", "status", "detail", "created_at"},
		values:  [][]driver.Value{{int64(3), "s1", "0.0.2@1.2", "SUCCESS", "ok", int64(5)}},
	}
	db, driver := newMockDB(t, []mockOperation{
		execOp(`INSERT INTO wallet_receipts (session_id, transaction_id, status, detail, created_at)
    VALUES (?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE status = VALUES(status), detail = VALUES(detail)`, mockResult{lastInsertID: 3, rowsAffected: 1}),
		queryOp(`SELECT id, session_id, transaction_id, status, detail, created_at
    FROM wallet_receipts WHERE session_id = ? ORDER BY id ASC`, rows),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	receipt := &ReceiptRecord{SessionID: "s1", TransactionID: "0.0.2@1.2", Status: "SUCCESS", Detail: "ok", CreatedAt: 5}
	if err := repo.SaveReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("save receipt failed: %v", err)
	}
	if receipt.ID != 3 {
		t.Fatalf("expected id 3, got %d", receipt.ID)
	}
	list, err := repo.ListReceipts(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list receipts failed: %v", err)
	}
	if len(list) != 1 || list[0].Detail != "ok" {
		t.Fatalf("unexpected receipts: %+v", list)
	}
}

func TestSQLConversationRepositoryDeleteSession(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(`DELETE FROM conversation_messages WHERE session_id = ?`, mockResult{rowsAffected: 0}),
		execOp(`DELETE FROM wallet_receipts WHERE session_id = ?`, mockResult{rowsAffected: 0}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	if err := repo.DeleteSession(context.Background(), "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLConversationRepositoryWithTransaction(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		beginOp(),
		execOp(insertMessageSQL(), mockResult{lastInsertID: 1, rowsAffected: 1}),
		commitOp(),
		beginOp(),
		rollbackOp(),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	err := repo.WithTransaction(context.Background(), func(ctx context.Context, tx ConversationRepository) error {
		return tx.AppendMessages(ctx, []*MessageRecord{{SessionID: "s1", Role: "user", Content: "hi", CreatedAt: 1}})
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	boom := errors.New("boom")
	err = repo.WithTransaction(context.Background(), func(context.Context, ConversationRepository) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}
}

func TestMigrateAppliesPendingFilesUnderLock(t *testing.T) {
	t.Parallel()

	files, err := parseMigrations(migrations.Files)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) != 4 || files[0].name != "0001_create_conversations.sql" || files[3].version != 4 {
		t.Fatalf("unexpected migrations: %+v", files)
	}
	for _, stmt := range files[3].statements {
		if strings.HasPrefix(stmt, "--") {
			t.Fatalf("comment leaked into statement: %q", stmt)
		}
	}

	ops := []mockOperation{
		queryOp(`SELECT GET_LOCK(?, ?)`, mockRowsData{
			columns: []string{"lock"},
			values:  [][]driver.Value{{int64(1)}},
		}),
		execOp(createSchemaTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}, {"0002"}},
		}),
	}
	for _, file := range files[2:] {
		for _, stmt := range file.statements {
			ops = append(ops, execOp(stmt, mockResult{}))
		}
		ops = append(ops, execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}))
	}
	ops = append(ops, execOp(`SELECT RELEASE_LOCK(?)`, mockResult{}))

	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestMigrateStopsWhenLockUnavailable(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		queryOp(`SELECT GET_LOCK(?, ?)`, mockRowsData{
			columns: []string{"lock"},
			values:  [][]driver.Value{{int64(0)}},
		}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	err := Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "迁移锁") {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func TestParseMigrations(t *testing.T) {
	t.Parallel()

	stmts := splitSQLStatements("-- header\nCREATE TABLE a (id INT);\n\n  -- note\nCREATE TABLE b (id INT);  ")
	if len(stmts) != 2 || stmts[0] != "CREATE TABLE a (id INT)" || !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Fatalf("unexpected statements: %q", stmts)
	}
	if v, err := parseMigrationVersion("0002_create_wallet_receipts.sql"); err != nil || v != 2 {
		t.Fatalf("unexpected version %d %v", v, err)
	}

	cases := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{"duplicate version", fstest.MapFS{
			"0001_a.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
			"001_b.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
			"0002_ok.sql": {Data: []byte("CREATE TABLE c (id INT);")},
		}, "重复"},
		{"unnumbered", fstest.MapFS{"init.sql": {Data: []byte("CREATE TABLE a (id INT);")}}, "格式"},
		{"zero version", fstest.MapFS{"0000_init.sql": {Data: []byte("CREATE TABLE a (id INT);")}}, "版本号无效"},
		{"only comments", fstest.MapFS{"0001_empty.sql": {Data: []byte("-- nothing yet\n")}}, "不包含任何语句"},
	}
	for _, tc := range cases {
		if _, err := parseMigrations(tc.files); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}

	ordered, err := parseMigrations(fstest.MapFS{
		"0010_late.sql":  {Data: []byte("CREATE TABLE z (id INT);")},
		"0002_early.sql": {Data: []byte("CREATE TABLE a (id INT);")},
	})
	if err != nil || ordered[0].version != 2 || ordered[1].label() != "0010" {
		t.Fatalf("unexpected ordering: %+v %v", ordered, err)
	}
}

func insertMessageSQL() string {
	return `INSERT INTO conversation_messages
    (session_id, role, content, tool_calls, tool_call_id, name, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, named(args))
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, named(args))
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" {
		expectedSQL := normalizeSQL(op.query)
		actualSQL := normalizeSQL(query)
		if expectedSQL != actualSQL {
			return nil, fmt.Errorf("unexpected query. want %q got %q", expectedSQL, actualSQL)
		}
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.next(opCommit)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.next(opRollback)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) next(expected operationType) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&t.driver.idx))
	if idx >= len(t.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &t.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&t.driver.idx, 1)
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func named(args []driver.Value) []driver.NamedValue {
	namedArgs := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		namedArgs[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return namedArgs
}

func normalizeSQL(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}
