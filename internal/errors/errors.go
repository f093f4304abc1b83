package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category 将错误码归入执行引擎的失败分类。
type Category string

const (
	// CategoryAuthorization 调用方身份不正确，换用正确身份之前无法恢复。
	CategoryAuthorization Category = "authorization"
	// CategoryIntegrity 调用方提供的数据与账本记录不一致。
	CategoryIntegrity Category = "integrity"
	// CategoryPrecondition 当前时刻条件不满足，稍后可以用新数据重试。
	CategoryPrecondition Category = "precondition"
	// CategoryStructural 创建或管理阶段拒绝不一致的注册状态。
	CategoryStructural Category = "structural"
	// CategoryAction 动作执行失败，整个配方回滚。
	CategoryAction Category = "action"
	// CategoryInfrastructure 存储、队列等基础设施故障。
	CategoryInfrastructure Category = "infrastructure"
)

// Disposition 是 bot 对一次失败执行的处置方式。
type Disposition string

const (
	// DispositionSkip 跳过本次作业，等待下一轮扫描。
	DispositionSkip Disposition = "skip"
	// DispositionRetry 在重试预算内重新投递。
	DispositionRetry Disposition = "retry"
	// DispositionAlert 终止作业并通知运维。
	DispositionAlert Disposition = "alert"
	// DispositionFail 终止作业。
	DispositionFail Disposition = "fail"
)

// policy 是分类的默认行为，注册的属性只能在其基础上加严。
type policy struct {
	severity  Severity
	retryable bool
	alert     bool
}

var policies = map[Category]policy{
	CategoryAuthorization:  {severity: SeverityWarning, alert: true},
	CategoryIntegrity:      {severity: SeverityWarning, alert: true},
	CategoryPrecondition:   {severity: SeverityInfo},
	CategoryStructural:     {severity: SeverityInfo},
	CategoryAction:         {severity: SeverityWarning},
	CategoryInfrastructure: {severity: SeverityCritical, retryable: true, alert: true},
}

// Attributes 描述一个错误码。Severity 留空时取分类的默认值。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
	Category  Category
}

func (a Attributes) resolve() Attributes {
	if a.Category == "" {
		a.Category = CategoryInfrastructure
	}
	p := policies[a.Category]
	if a.Severity == "" {
		a.Severity = p.severity
	}
	a.Retryable = a.Retryable || p.retryable
	a.Alert = a.Alert || p.alert
	return a
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               Attributes{Message: "unknown error", Category: CategoryInfrastructure}.resolve(),
		CodeInvalidArgument:       Attributes{Message: "invalid argument", Category: CategoryStructural}.resolve(),
		CodeInitializationFailure: Attributes{Message: "service not initialized", Severity: SeverityWarning, Category: CategoryInfrastructure}.resolve(),
		CodeStorageFailure:        Attributes{Message: "storage failure", Category: CategoryInfrastructure}.resolve(),
		CodeTimeout:               Attributes{Message: "operation timed out", Severity: SeverityWarning, Category: CategoryInfrastructure}.resolve(),
	}
)

// Register 在包初始化阶段登记错误码，重复登记以后者为准。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	registry[code] = attr.resolve()
	registryMu.Unlock()
}

// AttributesOf 返回错误码对应的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 携带错误码、说明和可选的附加信息。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如触发器序号或订阅编号。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建错误，message 为空时使用登记的默认说明。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 同 New，并保留底层原因。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "[" + string(e.code) + "] " + e.message
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含错误码和原因的说明。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From 取出错误链上第一个 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// attributes 返回 err 的属性；不是 *Error 的错误按 UNKNOWN 处理。
func attributes(err error) Attributes {
	return AttributesOf(CodeOf(err))
}

// CodeOf 返回错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// CategoryOf 返回错误所属分类，非统一错误视为基础设施故障。
func CategoryOf(err error) Category {
	return attributes(err).Category
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	return attributes(err).Severity
}

// RetryableError 判断错误是否值得重新投递。
func RetryableError(err error) bool {
	return attributes(err).Retryable
}

// ShouldAlert 判断错误是否需要通知运维。
func ShouldAlert(err error) bool {
	return attributes(err).Alert
}

// DispositionOf 把错误映射为 bot 的处置方式，前置条件优先于其他属性。
func DispositionOf(err error) Disposition {
	attr := attributes(err)
	switch {
	case attr.Category == CategoryPrecondition:
		return DispositionSkip
	case attr.Retryable:
		return DispositionRetry
	case attr.Alert:
		return DispositionAlert
	default:
		return DispositionFail
	}
}
