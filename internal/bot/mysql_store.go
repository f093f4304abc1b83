package bot

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-sql-driver/mysql"

	xerrors "Recipe-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 的 bot_jobs 表记录作业状态，表结构由迁移脚本创建。
type MySQLStore struct {
	db     *sql.DB
	now    func() time.Time
	shared bool
}

// NewMySQLStore 基于已经完成迁移的连接创建作业存储。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL 连接不能为空")
	}
	return &MySQLStore{db: db, now: time.Now}, nil
}

// NewSharedMySQLStore 与 NewMySQLStore 相同，但 Close 不会关闭由其他组件持有的连接池。
func NewSharedMySQLStore(db *sql.DB) (*MySQLStore, error) {
	store, err := NewMySQLStore(db)
	if err != nil {
		return nil, err
	}
	store.shared = true
	return store, nil
}

const jobColumns = `id, sub_id, strategy_index, trigger_call_data, actions_call_data, status, attempts, max_retries,
        last_error, error_code, created_at, updated_at`

// Create 插入新的作业记录。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "作业 ID 不能为空")
	}
	triggers, err := json.Marshal(nonNil(job.TriggerCallData))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码触发器 calldata 失败")
	}
	actions, err := json.Marshal(nonNil(job.ActionsCallData))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码动作 calldata 失败")
	}
	now := s.now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	const stmt = `INSERT INTO bot_jobs (` + jobColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.SubID,
		job.StrategyIndex,
		string(triggers),
		string(actions),
		string(job.Status),
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入作业失败")
	}
	return nil
}

// Get 查询指定作业。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM bot_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业失败")
	}
	return job, nil
}

// Claim 将作业标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const stmt = `UPDATE bot_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning),
		s.now().Unix(),
		id,
		string(StatusPending),
		string(StatusRetrying),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		switch {
		case job.Done():
			return job, ErrJobCompleted
		case job.Status == StatusRunning:
			return job, ErrJobConflict
		case job.Attempts >= job.MaxRetries:
			return job, ErrJobExhausted
		default:
			return job, ErrJobConflict
		}
	}
	return job, nil
}

// MarkSucceeded 将作业标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string) error {
	return s.mark(ctx, id, StatusSucceeded, "", "")
}

// MarkSkipped 将作业标记为跳过。
func (s *MySQLStore) MarkSkipped(ctx context.Context, id string, code, lastError string) error {
	return s.mark(ctx, id, StatusSkipped, code, lastError)
}

// MarkFailed 将作业标记为失败或待重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code, lastError string, terminal bool) error {
	status := StatusRetrying
	if terminal {
		status = StatusFailed
	}
	return s.mark(ctx, id, status, code, lastError)
}

func (s *MySQLStore) mark(ctx context.Context, id string, status Status, code, lastError string) error {
	const stmt = `UPDATE bot_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt, string(status), lastError, code, s.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("标记作业 %s 失败", status))
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List 返回最近的作业。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()
	query := `SELECT ` + jobColumns + ` FROM bot_jobs`
	conditions := make([]string, 0, 2)
	args := make([]any, 0, len(opts.Statuses)+3)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.SubID != nil {
		conditions = append(conditions, "sub_id = ?")
		args = append(args, *opts.SubID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析作业记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历作业失败")
	}
	return jobs, nil
}

// Close 关闭底层数据库连接，共享连接池时不做任何事。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil || s.shared {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job      Job
		status   string
		triggers sql.NullString
		actions  sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.SubID,
		&job.StrategyIndex,
		&triggers,
		&actions,
		&status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	var err error
	if job.TriggerCallData, err = decodeCallData(triggers); err != nil {
		return nil, err
	}
	if job.ActionsCallData, err = decodeCallData(actions); err != nil {
		return nil, err
	}
	return &job, nil
}

func decodeCallData(raw sql.NullString) ([]hexutil.Bytes, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var out []hexutil.Bytes
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decode calldata: %w", err)
	}
	return out, nil
}

func nonNil(in []hexutil.Bytes) []hexutil.Bytes {
	if in == nil {
		return []hexutil.Bytes{}
	}
	return in
}

var _ Store = (*MySQLStore)(nil)
