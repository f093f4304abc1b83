package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/robfig/cron/v3"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/pkg/logger"
)

// Planner 为一个启用的订阅给出本轮需要提交的作业，返回空表示本轮不执行。
type Planner interface {
	Plan(ctx context.Context, sub IndexedSub) ([]JobRequest, error)
}

// PlannerFunc 把函数适配为 Planner。
type PlannerFunc func(ctx context.Context, sub IndexedSub) ([]JobRequest, error)

// Plan 实现 Planner。
func (f PlannerFunc) Plan(ctx context.Context, sub IndexedSub) ([]JobRequest, error) {
	return f(ctx, sub)
}

// Plan 是按策略或 bundle 配置的静态执行计划。
type Plan struct {
	StrategyOrBundleID uint64          `json:"strategy_or_bundle_id" yaml:"strategy_or_bundle_id"`
	IsBundle           bool            `json:"is_bundle" yaml:"is_bundle"`
	StrategyIndex      int             `json:"strategy_index" yaml:"strategy_index"`
	TriggerCallData    []hexutil.Bytes `json:"trigger_call_data" yaml:"trigger_call_data"`
	ActionsCallData    []hexutil.Bytes `json:"actions_call_data" yaml:"actions_call_data"`
}

type planKey struct {
	id       uint64
	isBundle bool
}

// StaticPlanner 对匹配到计划的订阅提交固定的 calldata。
type StaticPlanner struct {
	plans map[planKey]Plan
}

// NewStaticPlanner 创建静态规划器，同一策略后出现的计划覆盖先出现的。
func NewStaticPlanner(plans []Plan) *StaticPlanner {
	p := &StaticPlanner{plans: make(map[planKey]Plan, len(plans))}
	for _, plan := range plans {
		p.plans[planKey{plan.StrategyOrBundleID, plan.IsBundle}] = plan
	}
	return p
}

// Plan 实现 Planner。
func (p *StaticPlanner) Plan(_ context.Context, sub IndexedSub) ([]JobRequest, error) {
	plan, ok := p.plans[planKey{sub.Sub.StrategyOrBundleID, sub.Sub.IsBundle}]
	if !ok {
		return nil, nil
	}
	return []JobRequest{{
		SubID:           sub.SubID,
		StrategyIndex:   plan.StrategyIndex,
		TriggerCallData: cloneCallData(plan.TriggerCallData),
		ActionsCallData: cloneCallData(plan.ActionsCallData),
	}}, nil
}

// Scanner 按 cron 表达式周期性地为启用的订阅规划作业。
// 同一订阅上一轮的作业尚未结束时本轮跳过。
type Scanner struct {
	spec    string
	index   Index
	planner Planner
	service *Service
	cron    *cron.Cron
	log     *slog.Logger

	// scanMu 串行化整轮扫描，busy 检查与 inflight 登记因此不会被并发的一轮打断。
	scanMu   sync.Mutex
	mu       sync.Mutex
	inflight map[uint64]string
}

// cronLogger 把 cron 的日志接口接到 slog。
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}

// NewScanner 创建扫描器，spec 使用带秒字段的 cron 表达式，例如 "*/15 * * * * *"。
func NewScanner(spec string, index Index, planner Planner, service *Service) (*Scanner, error) {
	log := logger.Named("bot.scanner")
	clog := cronLogger{log: log}
	s := &Scanner{
		spec:    spec,
		index:   index,
		planner: planner,
		service: service,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		log:      log,
		inflight: make(map[uint64]string),
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(spec); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无效的扫描计划 "+spec)
	}
	return s, nil
}

// Start 注册定时任务并在 ctx 结束时停止。
func (s *Scanner) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.ScanOnce(ctx); err != nil {
			s.log.Error("扫描订阅失败", slog.Any("error", err))
		}
	}); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "注册扫描计划失败")
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// ScanOnce 执行一轮扫描并返回提交的作业数。
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	subs, err := s.index.Enabled(ctx)
	if err != nil {
		return 0, err
	}
	submitted := 0
	for _, sub := range subs {
		if s.busy(ctx, sub.SubID) {
			continue
		}
		requests, err := s.planner.Plan(ctx, sub)
		if err != nil {
			s.log.Warn("规划作业失败", slog.Any("error", err), slog.Uint64("sub_id", sub.SubID))
			continue
		}
		for _, req := range requests {
			job, err := s.service.Submit(ctx, req)
			if err != nil {
				return submitted, err
			}
			s.mu.Lock()
			s.inflight[sub.SubID] = job.ID
			s.mu.Unlock()
			submitted++
		}
	}
	if submitted > 0 {
		s.log.Debug("扫描完成", slog.Int("submitted", submitted), slog.Int("enabled", len(subs)))
	}
	return submitted, nil
}

func (s *Scanner) busy(ctx context.Context, subID uint64) bool {
	s.mu.Lock()
	jobID, ok := s.inflight[subID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	job, err := s.service.Get(ctx, jobID)
	if err != nil || job.Done() {
		s.mu.Lock()
		delete(s.inflight, subID)
		s.mu.Unlock()
		return false
	}
	return true
}
