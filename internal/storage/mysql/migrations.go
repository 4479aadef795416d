package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"hedera-agent-kit/deploy/migrations"
)

const (
	// migrationLock 是 GET_LOCK 使用的命名锁，多个副本同时启动时只有一个执行迁移。
	migrationLock        = "hedera_agent_schema"
	migrationLockSeconds = 30

	createSchemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`
)

type migrationFile struct {
	version    int
	name       string
	statements []string
}

func (m migrationFile) label() string {
	return fmt.Sprintf("%04d", m.version)
}

// Migrate 在命名锁保护下按版本顺序执行尚未应用的内嵌迁移。
// MySQL 的 DDL 会隐式提交，因此每条语句直接在同一连接上执行，全部成功后才登记版本。
func Migrate(ctx context.Context, db *sql.DB) error {
	files, err := parseMigrations(migrations.Files)
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("获取迁移连接失败: %w", err)
	}
	defer conn.Close()

	if err := acquireMigrationLock(ctx, conn); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, migrationLock)
	}()

	if _, err := conn.ExecContext(ctx, createSchemaTable); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	for _, file := range files {
		if applied[file.version] {
			continue
		}
		if err := applyMigration(ctx, conn, file); err != nil {
			return err
		}
	}
	return nil
}

func acquireMigrationLock(ctx context.Context, conn *sql.Conn) error {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, migrationLock, migrationLockSeconds).Scan(&got); err != nil {
		return fmt.Errorf("获取迁移锁失败: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("等待迁移锁超时 (%ds)", migrationLockSeconds)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		version, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("schema_migrations 中存在无法识别的版本 %q", raw)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, file migrationFile) error {
	for i, stmt := range file.statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 第 %d 条语句失败: %w", file.name, i+1, err)
		}
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, file.label(), time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移版本 %s 失败: %w", file.label(), err)
	}
	return nil
}

// parseMigrations 读取 NNNN_描述.sql 形式的迁移文件，拒绝重复版本与无法识别的文件名。
func parseMigrations(fsys fs.FS) ([]migrationFile, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	seen := make(map[int]string, len(names))
	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		version, err := parseMigrationVersion(name)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移版本 %04d 重复: %s 与 %s", version, other, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			return nil, fmt.Errorf("迁移文件 %s 不包含任何语句", name)
		}
		files = append(files, migrationFile{version: version, name: name, statements: statements})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// splitSQLStatements 去掉整行 -- 注释后按分号切分语句。
func splitSQLStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || !strings.HasSuffix(name, ".sql") {
		return 0, fmt.Errorf("迁移文件名 %s 不符合 NNNN_描述.sql 格式", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("迁移文件名 %s 的版本号无效", name)
	}
	return version, nil
}
