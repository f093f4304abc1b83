package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Recipe-Chain/internal/action/basic"
	"Recipe-Chain/internal/action/flashloan"
	"Recipe-Chain/internal/auth"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/executor"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/recipe"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/strategy"
	"Recipe-Chain/internal/subscription"
	"Recipe-Chain/internal/trigger/builtin"
	"Recipe-Chain/internal/wallet"
	"Recipe-Chain/pkg/logger"
)

// 核心组件的实现名称，同时用于派生其地址。
const (
	RecipeExecutorName   = "RecipeExecutor"
	StrategyExecutorName = "StrategyExecutor"
	ProxyAuthName        = "ProxyAuth"
	BotAuthName          = "BotAuth"
	SubStorageName       = "SubStorage"
	StrategyStorageName  = "StrategyStorage"
	BundleStorageName    = "BundleStorage"
	ProxyFactoryName     = "ProxyFactory"
)

// Observer 接收执行指标。
type Observer interface {
	recipe.Observer
	ObserveExecution(err error, duration time.Duration)
}

// Option 定义 Engine 的可选配置。
type Option func(*options)

type options struct {
	observer Observer
	gasPrice builtin.GasPriceSource
	pool     common.Address
	feeBps   uint64
}

// WithObserver 指定指标观察者。
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithGasPriceSource 启用 gas 价格触发器。
func WithGasPriceSource(source builtin.GasPriceSource) Option {
	return func(o *options) {
		o.gasPrice = source
	}
}

// WithFlashLoan 配置内置闪电贷资金池与费率。
func WithFlashLoan(pool common.Address, feeBps uint64) Option {
	return func(o *options) {
		o.pool = pool
		o.feeBps = feeBps
	}
}

// Engine 持有账本与全部组件，每个方法对应一次完整事务。
type Engine struct {
	store    ledger.Store
	owner    common.Address
	catalog  *registry.Catalog
	registry *registry.Registry

	bots       *auth.BotAuth
	wallets    *wallet.Factory
	proxyAuth  *auth.ProxyAuth
	strategies *strategy.StrategyStorage
	bundles    *strategy.BundleStorage
	subs       *subscription.Storage
	recipes    *recipe.Executor
	executor   *executor.StrategyExecutor
	lender     *flashloan.Lender

	observer Observer
	log      *slog.Logger
}

// New 创建引擎并把内置实现放入目录。注册表内容由 Bootstrap 写入。
func New(store ledger.Store, owner common.Address, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "ledger store is nil")
	}
	o := options{pool: common.HexToAddress("0x00000000000000000000000000000000000f1a5e"), feeBps: 9}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &Engine{
		store:    store,
		owner:    owner,
		catalog:  registry.NewCatalog(),
		registry: registry.New(owner),
		observer: o.observer,
		log:      logger.Named("engine"),
	}
	e.bots = auth.NewBotAuth(owner)
	e.wallets = wallet.NewFactory(registry.ImplAddress(ProxyFactoryName))
	e.proxyAuth = auth.NewProxyAuth(registry.ImplAddress(ProxyAuthName), e.wallets)
	e.strategies = strategy.NewStrategyStorage(owner)
	e.bundles = strategy.NewBundleStorage(owner, e.strategies)
	e.subs = subscription.NewStorage(e.strategies, e.bundles)
	var recipeOpts []recipe.Option
	if o.observer != nil {
		recipeOpts = append(recipeOpts, recipe.WithObserver(o.observer))
	}
	e.recipes = recipe.NewExecutor(e.catalog, e.strategies, e.bundles, e.subs, recipeOpts...)
	e.executor = executor.New(registry.ImplAddress(StrategyExecutorName), e.bots, e.subs, e.proxyAuth, e.catalog)
	e.lender = flashloan.NewLender(o.pool, o.feeBps)

	impls := map[string]any{
		RecipeExecutorName:           e.recipes,
		StrategyExecutorName:         e.executor,
		ProxyAuthName:                e.proxyAuth,
		BotAuthName:                  e.bots,
		SubStorageName:               e.subs,
		StrategyStorageName:          e.strategies,
		BundleStorageName:            e.bundles,
		ProxyFactoryName:             e.wallets,
		basic.PullTokenName:          basic.PullToken{},
		basic.SendTokenName:          basic.SendToken{},
		basic.SumInputsName:          basic.SumInputs{},
		basic.SubInputsName:          basic.SubInputs{},
		basic.TokenBalanceCheckName:  basic.TokenBalanceCheck{},
		flashloan.Name:               e.lender,
		builtin.BalanceTriggerName:   builtin.BalanceTrigger{},
		builtin.TimestampTriggerName: builtin.TimestampTrigger{},
	}
	if o.gasPrice != nil {
		impls[builtin.GasPriceTriggerName] = builtin.NewGasPriceTrigger(o.gasPrice)
	}
	for name, impl := range impls {
		if _, err := e.Deploy(name, impl); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Deploy 在 ImplAddress(name) 处放入实现，相当于部署合约代码。
func (e *Engine) Deploy(name string, impl any) (common.Address, error) {
	addr := registry.ImplAddress(name)
	if err := e.catalog.Register(addr, name, impl); err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", name, err)
	}
	return addr, nil
}

// Owner 返回管理员地址。
func (e *Engine) Owner() common.Address {
	return e.owner
}

// Catalog 返回实现目录。
func (e *Engine) Catalog() *registry.Catalog {
	return e.catalog
}

// StrategyExecutorAddress 返回策略执行器地址，代理需要授权给 ProxyAuth 才能被执行。
func (e *Engine) StrategyExecutorAddress() common.Address {
	return e.executor.Address()
}

// ProxyAuthAddress 返回 ProxyAuth 地址。
func (e *Engine) ProxyAuthAddress() common.Address {
	return e.proxyAuth.Address()
}

// FlashLoanPool 返回内置闪电贷资金池地址。
func (e *Engine) FlashLoanPool() common.Address {
	return e.lender.Pool()
}

// Close 关闭账本。
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return e.store.Update(ctx, fn)
}

func (e *Engine) view(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return e.store.View(ctx, fn)
}
