package action

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "Parry-QV/internal/errors"
	storagemysql "Parry-QV/internal/storage/mysql"
)

// MySQLStore 使用 MySQL 记录动作状态。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 建立连接并执行内嵌迁移。
func NewMySQLStore(ctx context.Context, cfg storagemysql.Config) (*MySQLStore, error) {
	db, err := storagemysql.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	if err := storagemysql.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return newMySQLStore(db), nil
}

func newMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

const actionColumns = `id, kind, project, params, status, error_code, last_error,
        result_strategy, result_sender, result_tx_hash, result_block_number, created_at, updated_at`

// Create 插入新的动作记录。
func (s *MySQLStore) Create(ctx context.Context, action *Action) error {
	if action == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "action 不能为空")
	}
	if strings.TrimSpace(action.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "动作 ID 不能为空")
	}
	now := s.now().Unix()
	action.CreatedAt = now
	action.UpdatedAt = now
	if action.Status == "" {
		action.Status = StatusIdle
	}
	params, err := json.Marshal(action.Params)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码动作参数失败")
	}

	const stmt = `INSERT INTO qv_actions
        (id, kind, project, params, status, error_code, last_error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, '', '', ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		action.ID,
		action.Kind,
		action.Project,
		string(params),
		action.Status,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrActionConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入动作失败")
	}
	return nil
}

// Get 查询指定动作。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM qv_actions WHERE id = ?`, id)
	action, err := scanAction(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询动作失败")
	}
	return action, nil
}

// Claim 将 idle 动作标记为 validating 并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Action, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qv_actions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusValidating, s.now().Unix(), id, StatusIdle)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新动作状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	action, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if action.Status.Terminal() {
			return action, ErrActionFinished
		}
		return action, ErrActionConflict
	}
	return action, nil
}

// Transition 更新动作的中间状态。
func (s *MySQLStore) Transition(ctx context.Context, id string, status Status) error {
	if !status.InFlight() {
		return xerrors.New(xerrors.CodeInvalidArgument, "非法的中间状态: "+string(status))
	}
	return s.update(ctx, id,
		`UPDATE qv_actions SET status = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		status, s.now().Unix(), id, StatusConfirmed, StatusFailed)
}

// MarkConfirmed 记录成功结果。
func (s *MySQLStore) MarkConfirmed(ctx context.Context, id string, result Result) error {
	return s.update(ctx, id,
		`UPDATE qv_actions SET status = ?, error_code = '', last_error = '', result_strategy = ?, result_sender = ?,
        result_tx_hash = ?, result_block_number = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		StatusConfirmed, result.Strategy, result.Sender, result.TxHash, result.BlockNumber, s.now().Unix(),
		id, StatusConfirmed, StatusFailed)
}

// MarkFailed 记录失败原因。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, message string) error {
	return s.update(ctx, id,
		`UPDATE qv_actions SET status = ?, error_code = ?, last_error = ?, updated_at = ?
        WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed, string(code), message, s.now().Unix(), id, StatusConfirmed, StatusFailed)
}

func (s *MySQLStore) update(ctx context.Context, id, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新动作失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrActionFinished
}

// List 返回符合过滤条件的动作。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Action, error) {
	opts.applyDefaults()
	where, args := buildWhere(opts)
	order := "DESC"
	if opts.Order == SortByUpdatedAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM qv_actions%s ORDER BY updated_at %s, created_at %s LIMIT ? OFFSET ?`,
		actionColumns, where, order, order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询动作列表失败")
	}
	defer rows.Close()

	actions := make([]*Action, 0, opts.Limit)
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析动作失败")
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历动作失败")
	}
	return actions, nil
}

// Stats 汇总符合过滤条件的动作数量。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	where, args := buildWhere(opts)
	query := `SELECT kind, status, COUNT(*), MIN(updated_at), MAX(updated_at) FROM qv_actions` + where + ` GROUP BY kind, status`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计动作失败")
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			kind           Kind
			status         Status
			count          int
			oldest, newest int64
		)
		if err := rows.Scan(&kind, &status, &count, &oldest, &newest); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.add(kind, status, count)
		stats.touch(oldest)
		stats.touch(newest)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildWhere(opts ListOptions) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(opts.Statuses))+")")
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if len(opts.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+placeholders(len(opts.Kinds))+")")
		for _, kind := range opts.Kinds {
			args = append(args, kind)
		}
	}
	if opts.Project != "" {
		clauses = append(clauses, "LOWER(project) = ?")
		args = append(args, opts.Project)
	}
	if opts.UpdatedGTE > 0 {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*Action, error) {
	var (
		action    Action
		params    sql.NullString
		lastError sql.NullString
		result    Result
	)
	if err := row.Scan(
		&action.ID,
		&action.Kind,
		&action.Project,
		&params,
		&action.Status,
		&action.ErrorCode,
		&lastError,
		&result.Strategy,
		&result.Sender,
		&result.TxHash,
		&result.BlockNumber,
		&action.CreatedAt,
		&action.UpdatedAt,
	); err != nil {
		return nil, err
	}
	action.LastError = lastError.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &action.Params); err != nil {
			return nil, fmt.Errorf("解析动作参数失败: %w", err)
		}
	}
	if result.TxHash != "" {
		action.Result = &result
	}
	return &action, nil
}
