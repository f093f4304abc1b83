package bot

import (
	stdErrors "errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "Recipe-Chain/internal/errors"
)

// Status 表示作业在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped 表示执行时前置条件不满足，等待下一轮扫描重新规划。
	StatusSkipped Status = "skipped"
)

// Job 描述一次排队执行的订阅。
type Job struct {
	ID              string          `json:"id"`
	SubID           uint64          `json:"sub_id"`
	StrategyIndex   int             `json:"strategy_index"`
	TriggerCallData []hexutil.Bytes `json:"trigger_call_data"`
	ActionsCallData []hexutil.Bytes `json:"actions_call_data"`
	Status          Status          `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxRetries      int             `json:"max_retries"`
	LastError       string          `json:"last_error,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// Done 判断作业是否已经进入终态。
func (j *Job) Done() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

const (
	CodeJobNotFound    xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict    xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted   xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted   xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobValidation  xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish     xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing  xerrors.Code = "JOB_PROCESSING_FAILED"
	CodeSubNotIndexed  xerrors.Code = "SUB_NOT_INDEXED"
	CodeIndexMalformed xerrors.Code = "INDEX_EVENT_MALFORMED"
)

var (
	// ErrJobNotFound 表示指定的作业不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示作业在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict")
	// ErrJobCompleted 表示作业已经结束。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed")
	// ErrJobExhausted 表示作业的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted")
	// ErrSubNotIndexed 表示索引中没有该订阅的参数。
	ErrSubNotIndexed = xerrors.New(CodeSubNotIndexed, "subscription not indexed")
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:  "job not found",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:  "job conflict",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryStructural,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:  "job already completed",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryStructural,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:  "job retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
		Category: xerrors.CategoryInfrastructure,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:  "job validation failed",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryStructural,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
		Category:  xerrors.CategoryInfrastructure,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
		Category:  xerrors.CategoryInfrastructure,
	})
	xerrors.Register(CodeSubNotIndexed, xerrors.Attributes{
		Message:  "subscription not indexed",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryPrecondition,
	})
	xerrors.Register(CodeIndexMalformed, xerrors.Attributes{
		Message:  "malformed subscription event",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
		Category: xerrors.CategoryIntegrity,
	})
}

// skippable 判断领取失败是否只需忽略该消息。
func skippable(err error) bool {
	return stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted)
}

func cloneCallData(in []hexutil.Bytes) []hexutil.Bytes {
	if in == nil {
		return nil
	}
	out := make([]hexutil.Bytes, len(in))
	for i, data := range in {
		out[i] = append(hexutil.Bytes(nil), data...)
	}
	return out
}

func cloneJob(job *Job) *Job {
	clone := *job
	clone.TriggerCallData = cloneCallData(job.TriggerCallData)
	clone.ActionsCallData = cloneCallData(job.ActionsCallData)
	return &clone
}

// IsValidStatus 检查给定的作业状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusRetrying, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}
