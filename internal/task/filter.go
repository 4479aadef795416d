package task

import (
	"fmt"
	"strings"
	"time"

	"hedera-agent-kit/pkg/kit"
)

// Order 决定任务列表按更新时间的排列方向。
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Filter 描述对话任务的查询条件，零值匹配全部任务。
type Filter struct {
	SessionID string
	AccountID string
	// Mode 为空表示不限执行模式。
	Mode     kit.Mode
	Statuses []Status
	Since    time.Time
	Until    time.Time
	// Replied 按是否已生成回复过滤。
	Replied *bool
	// Prepared 按是否产生了待钱包签名的交易过滤。
	Prepared *bool
	// Text 在消息、回复、会话与错误信息中做不区分大小写的包含匹配。
	Text   string
	Limit  int
	Offset int
	Order  Order
}

// ListOption 修改 Filter。
type ListOption func(*Filter)

// WithSession 只返回指定会话的任务。
func WithSession(sessionID string) ListOption {
	return func(f *Filter) { f.SessionID = strings.TrimSpace(sessionID) }
}

// WithAccount 只返回代表指定账户执行的任务。
func WithAccount(accountID string) ListOption {
	return func(f *Filter) { f.AccountID = strings.TrimSpace(accountID) }
}

// WithMode 只返回指定执行模式的任务。
func WithMode(mode kit.Mode) ListOption {
	return func(f *Filter) { f.Mode = mode }
}

// WithStatuses 按任务状态过滤。
func WithStatuses(statuses ...Status) ListOption {
	return func(f *Filter) { f.Statuses = append([]Status(nil), statuses...) }
}

// WithWindow 限定更新时间范围，零值表示不设该端边界。
func WithWindow(since, until time.Time) ListOption {
	return func(f *Filter) {
		f.Since, f.Until = since, until
	}
}

// WithReplied 按是否已有回复过滤。
func WithReplied(replied bool) ListOption {
	return func(f *Filter) { f.Replied = &replied }
}

// WithPrepared 按是否产生待签名交易过滤。
func WithPrepared(prepared bool) ListOption {
	return func(f *Filter) { f.Prepared = &prepared }
}

// WithText 设置全文匹配关键字。
func WithText(text string) ListOption {
	return func(f *Filter) { f.Text = text }
}

// WithPage 设置分页参数。
func WithPage(limit, offset int) ListOption {
	return func(f *Filter) { f.Limit, f.Offset = limit, offset }
}

// WithOrder 设置排列方向。
func WithOrder(order Order) ListOption {
	return func(f *Filter) { f.Order = order }
}

// NewFilter 组合选项并规范化分页、状态与关键字。
func NewFilter(opts ...ListOption) Filter {
	var f Filter
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	f.normalise()
	return f
}

func (f *Filter) normalise() {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Order != OldestFirst {
		f.Order = NewestFirst
	}
	f.Statuses = uniqueStatuses(f.Statuses)
	f.Text = strings.TrimSpace(f.Text)
}

func uniqueStatuses(input []Status) []Status {
	var out []Status
	seen := make(map[Status]bool, len(input))
	for _, status := range input {
		if IsValidStatus(status) && !seen[status] {
			seen[status] = true
			out = append(out, status)
		}
	}
	return out
}

// Match 判断任务是否满足过滤条件。
func (f Filter) Match(t *Task) bool {
	if t == nil {
		return false
	}
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if f.Mode != "" && t.EffectiveMode() != f.Mode {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if !f.Since.IsZero() && t.UpdatedAt < f.Since.Unix() {
		return false
	}
	if !f.Until.IsZero() && t.UpdatedAt > f.Until.Unix() {
		return false
	}
	if f.Replied != nil && t.Replied() != *f.Replied {
		return false
	}
	if f.Prepared != nil && (t.PreparedCount() > 0) != *f.Prepared {
		return false
	}
	return f.Text == "" || matchesText(t, strings.ToLower(f.Text))
}

func containsStatus(statuses []Status, status Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func matchesText(t *Task, needle string) bool {
	haystack := []string{t.ID, t.SessionID, t.Message, t.LastError}
	if t.Result != nil {
		haystack = append(haystack, t.Result.Reply)
	}
	for _, field := range haystack {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// before 给出内存存储使用的排序关系，与 SQL 的 orderBy 保持一致。
func (f Filter) before(a, b *Task) bool {
	if f.Order == OldestFirst {
		a, b = b, a
	}
	if a.UpdatedAt != b.UpdatedAt {
		return a.UpdatedAt > b.UpdatedAt
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

func (f Filter) orderBy() string {
	if f.Order == OldestFirst {
		return " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	return " ORDER BY updated_at DESC, created_at DESC, id DESC"
}

// where 生成与 Match 语义一致的 SQL 条件。
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, values ...any) {
		conds = append(conds, cond)
		args = append(args, values...)
	}

	if f.SessionID != "" {
		add("session_id = ?", f.SessionID)
	}
	if f.AccountID != "" {
		add("account_id = ?", f.AccountID)
	}
	switch f.Mode {
	case "":
	case kit.ModeAutonomous:
		add("(mode = ? OR mode = '')", string(f.Mode))
	default:
		add("mode = ?", string(f.Mode))
	}
	if len(f.Statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Statuses)), ",")
		values := make([]any, 0, len(f.Statuses))
		for _, status := range f.Statuses {
			values = append(values, string(status))
		}
		add(fmt.Sprintf("status IN (%s)", marks), values...)
	}
	if !f.Since.IsZero() {
		add("updated_at >= ?", f.Since.Unix())
	}
	if !f.Until.IsZero() {
		add("updated_at <= ?", f.Until.Unix())
	}
	if f.Replied != nil {
		if *f.Replied {
			add("COALESCE(result_reply, '') <> ''")
		} else {
			add("COALESCE(result_reply, '') = ''")
		}
	}
	if f.Prepared != nil {
		if *f.Prepared {
			add("prepared_count > 0")
		} else {
			add("prepared_count = 0")
		}
	}
	if f.Text != "" {
		pattern := "%" + f.Text + "%"
		add("(id LIKE ? OR session_id LIKE ? OR message LIKE ? OR last_error LIKE ? OR result_reply LIKE ?)",
			pattern, pattern, pattern, pattern, pattern)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
