package bot

import "context"

// Store 抽象了作业状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 把 pending 或 retrying 的作业置为 running 并增加尝试次数。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string, code, lastError string) error
	// MarkFailed 记录失败，terminal 为 false 时作业进入 retrying 等待重投。
	MarkFailed(ctx context.Context, id string, code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Close() error
}

// ListOptions 控制作业列表的过滤与分页。
type ListOptions struct {
	Limit    int
	Offset   int
	Statuses []Status
	SubID    *uint64
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if len(opts.Statuses) > 0 {
		kept := opts.Statuses[:0:0]
		for _, status := range opts.Statuses {
			if IsValidStatus(status) {
				kept = append(kept, status)
			}
		}
		opts.Statuses = kept
	}
}

func (opts ListOptions) matches(job *Job) bool {
	if opts.SubID != nil && job.SubID != *opts.SubID {
		return false
	}
	if len(opts.Statuses) == 0 {
		return true
	}
	for _, status := range opts.Statuses {
		if job.Status == status {
			return true
		}
	}
	return false
}
