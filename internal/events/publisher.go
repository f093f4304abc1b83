package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/pkg/logger"
)

// PublisherFunc 把普通函数适配为 ledger.Publisher。
type PublisherFunc func(ctx context.Context, events []model.Event) error

// Publish 实现 ledger.Publisher。
func (f PublisherFunc) Publish(ctx context.Context, events []model.Event) error {
	return f(ctx, events)
}

// Fanout 依次把事件交给全部发布器，单个失败不影响其他发布器。
type Fanout struct {
	publishers []ledger.Publisher
}

// NewFanout 创建组合发布器，nil 会被忽略。
func NewFanout(publishers ...ledger.Publisher) *Fanout {
	filtered := make([]ledger.Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &Fanout{publishers: filtered}
}

// Len 返回发布器数量。
func (f *Fanout) Len() int {
	return len(f.publishers)
}

// Publish 实现 ledger.Publisher。
func (f *Fanout) Publish(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditPublisher 把每个事件写入审计日志。
type AuditPublisher struct {
	Logger *slog.Logger
}

// Publish 实现 ledger.Publisher。
func (p AuditPublisher) Publish(_ context.Context, events []model.Event) error {
	log := p.Logger
	if log == nil {
		log = logger.Audit()
	}
	for _, event := range events {
		log.Info("ledger event",
			slog.String("tx_id", event.TxID),
			slog.String("contract", event.Contract),
			slog.String("event", event.Name),
			slog.Any("fields", event.Fields),
		)
	}
	return nil
}

// Observer 统计已发布的事件。
type Observer interface {
	ObserveEvent(contract, name string)
}

// Counting 在转发前统计事件，next 可以为 nil。
type Counting struct {
	Observer Observer
	Next     ledger.Publisher
}

// Publish 实现 ledger.Publisher。
func (c Counting) Publish(ctx context.Context, events []model.Event) error {
	if c.Observer != nil {
		for _, event := range events {
			c.Observer.ObserveEvent(event.Contract, event.Name)
		}
	}
	if c.Next == nil {
		return nil
	}
	return c.Next.Publish(ctx, events)
}

// RoutingKey 返回事件在消息系统中的路由键，形如 SubStorage.Subscribe。
func RoutingKey(event model.Event) string {
	return event.Contract + "." + event.Name
}

func encode(event model.Event) ([]byte, error) {
	return json.Marshal(event)
}
