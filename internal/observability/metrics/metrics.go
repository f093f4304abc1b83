// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Recipe-Chain/internal/action"
	xerrors "Recipe-Chain/internal/errors"
)

const namespace = "recipechain"

// Registry 持有全部指标。
type Registry struct {
	reg *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	executions     *prometheus.CounterVec
	execLatency    prometheus.Histogram
	actions        *prometheus.CounterVec
	triggers       *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	publishedEvent *prometheus.CounterVec
}

// New 创建指标集合并注册 Go 运行时指标。
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by handler, method and status code.",
		}, []string{"handler", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_executions_total",
			Help:      "Strategy executions by result code.",
		}, []string{"result"}),
		execLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_execution_duration_seconds",
			Help:      "Latency of one strategy execution including the ledger commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipe_actions_total",
			Help:      "Actions executed inside recipes by action, type and result.",
		}, []string{"action", "type", "result"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_evaluations_total",
			Help:      "Trigger evaluations by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_jobs_total",
			Help:      "Bot jobs by terminal or intermediate status.",
		}, []string{"status"}),
		publishedEvent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_published_total",
			Help:      "Ledger events handed to publishers by contract and name.",
		}, []string{"contract", "name"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests, r.httpLatency, r.executions, r.execLatency,
		r.actions, r.triggers, r.jobs, r.publishedEvent,
	)
	return r
}

// Handler 以 Prometheus 文本格式暴露指标。
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer 返回底层采集器，便于测试读取。
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (r *Registry) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveExecution 记录一次策略执行，成功时结果为 ok，否则为错误码。
func (r *Registry) ObserveExecution(err error, duration time.Duration) {
	r.executions.WithLabelValues(result(err)).Inc()
	r.execLatency.Observe(duration.Seconds())
}

// ObserveAction 实现 recipe.Observer。
func (r *Registry) ObserveAction(name string, typ action.Type, err error) {
	r.actions.WithLabelValues(name, typ.String(), result(err)).Inc()
}

// ObserveTrigger 实现 recipe.Observer。
func (r *Registry) ObserveTrigger(name string, triggered bool, err error) {
	outcome := "not_triggered"
	switch {
	case err != nil:
		outcome = "error"
	case triggered:
		outcome = "triggered"
	}
	r.triggers.WithLabelValues(name, outcome).Inc()
}

// ObserveJob 记录 bot 任务状态变化。
func (r *Registry) ObserveJob(status string) {
	r.jobs.WithLabelValues(status).Inc()
}

// ObserveEvent 记录发布的账本事件。
func (r *Registry) ObserveEvent(contract, name string) {
	r.publishedEvent.WithLabelValues(contract, name).Inc()
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(xerrors.CodeOf(err))
}
