package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/observability/alerting"
	"Recipe-Chain/pkg/logger"
)

// Executor 是处理器调用的策略执行入口，每次调用对应一个账本事务。
type Executor interface {
	ExecuteStrategy(ctx context.Context, bot common.Address, subID uint64, strategyIndex int, triggerCallData, actionsCallData []hexutil.Bytes, sub model.StrategySub) error
}

// JobObserver 统计作业结果。
type JobObserver interface {
	ObserveJob(status string)
}

// Processor 负责从队列消费作业并以 bot 身份执行。
type Processor struct {
	bot         common.Address
	executor    Executor
	store       Store
	index       Index
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	observer    JobObserver
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithJobObserver 配置作业指标。
func WithJobObserver(observer JobObserver) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(bot common.Address, executor Executor, store Store, index Index, queue Queue, opts ...ProcessorOption) *Processor {
	p := &Processor{
		bot:         bot,
		executor:    executor,
		store:       store,
		index:       index,
		consumer:    queue,
		producer:    queue,
		workerCount: 1,
		logger:      logger.Named("bot"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动作业处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置作业消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单个作业。只有作业状态无法落库时才返回错误，让队列重投。
func (p *Processor) Handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil || p.index == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if skippable(err) {
			p.logger.Debug("跳过作业", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		if xerrors.CodeOf(err) == CodeJobConflict {
			return nil
		}
		p.logger.Error("领取作业失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	execErr := p.execute(ctx, job)
	if execErr == nil {
		if err := p.store.MarkSucceeded(ctx, job.ID); err != nil {
			p.logger.Error("标记作业成功失败", slog.Any("error", err), slog.String("job_id", job.ID))
			return err
		}
		p.observe(StatusSucceeded)
		logger.Audit().Info("策略执行成功",
			slog.String("job_id", job.ID),
			slog.Uint64("sub_id", job.SubID),
			slog.Int("strategy_index", job.StrategyIndex),
			slog.String("bot", p.bot.Hex()),
		)
		return nil
	}
	return p.handleFailure(ctx, job, execErr)
}

func (p *Processor) execute(ctx context.Context, job *Job) error {
	indexed, err := p.index.Get(ctx, job.SubID)
	if err != nil {
		return err
	}
	return p.executor.ExecuteStrategy(ctx, p.bot, job.SubID, job.StrategyIndex,
		job.TriggerCallData, job.ActionsCallData, indexed.Sub)
}

// handleFailure 按错误的处置方式决定作业去向：前置条件不满足则跳过，
// 可重试的故障在重试次数内重投，其余失败直接终止。
func (p *Processor) handleFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	disposition := xerrors.DispositionOf(execErr)

	if disposition == xerrors.DispositionSkip {
		if err := p.store.MarkSkipped(ctx, job.ID, string(code), execErr.Error()); err != nil {
			return err
		}
		p.observe(StatusSkipped)
		p.logger.Info("作业前置条件不满足",
			slog.String("job_id", job.ID),
			slog.Uint64("sub_id", job.SubID),
			slog.String("error_code", string(code)),
		)
		return nil
	}

	retry := disposition == xerrors.DispositionRetry && job.Attempts < job.MaxRetries
	if err := p.store.MarkFailed(ctx, job.ID, string(code), execErr.Error(), !retry); err != nil {
		p.logger.Error("标记作业失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	logger.Audit().Warn("策略执行失败",
		slog.String("job_id", job.ID),
		slog.Uint64("sub_id", job.SubID),
		slog.Bool("retry", retry),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.String("category", string(xerrors.CategoryOf(execErr))),
		slog.String("disposition", string(disposition)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	switch {
	case retry:
		p.observe(StatusRetrying)
		if err := p.producer.Publish(ctx, job.ID); err != nil {
			return xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("作业 %s 重投失败", job.ID))
		}
		return nil
	case disposition == xerrors.DispositionRetry:
		p.observe(StatusFailed)
		p.emitAlert(ctx, job, xerrors.Wrap(CodeJobExhausted, execErr, ""), "exhausted")
	case disposition == xerrors.DispositionAlert:
		p.observe(StatusFailed)
		p.emitAlert(ctx, job, execErr, "terminal")
	default:
		p.observe(StatusFailed)
	}
	return nil
}

func (p *Processor) observe(status Status) {
	if p.observer != nil {
		p.observer.ObserveJob(string(status))
	}
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, cause error, stage string) {
	if p.alerter == nil {
		return
	}
	event := alerting.FromError(cause)
	event.JobID = job.ID
	event.SubID = job.SubID
	event.Attempts = job.Attempts
	event.MaxRetries = job.MaxRetries
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	event.Metadata["stage"] = stage
	event.OccurredAt = time.Now()
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
