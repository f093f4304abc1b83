package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/token"
	"Recipe-Chain/internal/wallet"
)

// CreateStrategy 创建策略并返回其 ID。
func (e *Engine) CreateStrategy(ctx context.Context, sender common.Address, name string, triggerIDs, actionIDs []model.ID, paramMapping [][]uint8, continuous bool) (uint64, error) {
	var id uint64
	err := e.update(ctx, func(tx ledger.Tx) error {
		var err error
		id, err = e.strategies.CreateStrategy(tx, sender, name, triggerIDs, actionIDs, paramMapping, continuous)
		return err
	})
	return id, err
}

// CreateBundle 创建 bundle 并返回其 ID。
func (e *Engine) CreateBundle(ctx context.Context, sender common.Address, strategyIDs []uint64) (uint64, error) {
	var id uint64
	err := e.update(ctx, func(tx ledger.Tx) error {
		var err error
		id, err = e.bundles.CreateBundle(tx, sender, strategyIDs)
		return err
	})
	return id, err
}

// SetStrategyEditPermission 打开或关闭公开创建策略。
func (e *Engine) SetStrategyEditPermission(ctx context.Context, sender common.Address, open bool) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.strategies.ChangeEditPermission(tx, sender, open)
	})
}

// SetBundleEditPermission 打开或关闭公开创建 bundle。
func (e *Engine) SetBundleEditPermission(ctx context.Context, sender common.Address, open bool) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.bundles.ChangeEditPermission(tx, sender, open)
	})
}

// throughProxy 以 proxy 身份调用 target，sender 必须是代理所有者或被授权地址。
func (e *Engine) throughProxy(ctx context.Context, sender, proxy, target common.Address, call wallet.Call) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.wallets.Execute(ctx, tx, sender, proxy, target, call)
	})
}

// Subscribe 通过代理订阅策略或 bundle，返回订阅 ID。
func (e *Engine) Subscribe(ctx context.Context, sender, proxy common.Address, sub model.StrategySub) (uint64, error) {
	var subID uint64
	err := e.throughProxy(ctx, sender, proxy, registry.ImplAddress(SubStorageName), func(_ context.Context, frame wallet.Frame) error {
		var err error
		subID, err = e.subs.SubscribeToStrategy(frame.Tx, frame.Proxy, sub)
		return err
	})
	return subID, err
}

// UpdateSubData 通过代理替换订阅参数。
func (e *Engine) UpdateSubData(ctx context.Context, sender, proxy common.Address, subID uint64, sub model.StrategySub) error {
	return e.throughProxy(ctx, sender, proxy, registry.ImplAddress(SubStorageName), func(_ context.Context, frame wallet.Frame) error {
		return e.subs.UpdateSubData(frame.Tx, frame.Proxy, subID, sub)
	})
}

// ActivateSub 通过代理启用订阅。
func (e *Engine) ActivateSub(ctx context.Context, sender, proxy common.Address, subID uint64) error {
	return e.throughProxy(ctx, sender, proxy, registry.ImplAddress(SubStorageName), func(_ context.Context, frame wallet.Frame) error {
		return e.subs.ActivateSub(frame.Tx, frame.Proxy, subID)
	})
}

// DeactivateSub 通过代理停用订阅。
func (e *Engine) DeactivateSub(ctx context.Context, sender, proxy common.Address, subID uint64) error {
	return e.throughProxy(ctx, sender, proxy, registry.ImplAddress(SubStorageName), func(_ context.Context, frame wallet.Frame) error {
		return e.subs.DeactivateSub(frame.Tx, frame.Proxy, subID)
	})
}

// ExecuteRecipe 由代理所有者直接执行一次性配方。
func (e *Engine) ExecuteRecipe(ctx context.Context, sender, proxy common.Address, r model.Recipe) error {
	return e.throughProxy(ctx, sender, proxy, registry.ImplAddress(RecipeExecutorName), func(ctx context.Context, frame wallet.Frame) error {
		return e.recipes.ExecuteRecipe(ctx, frame, r)
	})
}

// ExecuteActionDirect 通过代理以直接模式执行单个动作。
func (e *Engine) ExecuteActionDirect(ctx context.Context, sender, proxy common.Address, id model.ID, callData []byte) error {
	return e.throughProxy(ctx, sender, proxy, registry.ImplAddress(RecipeExecutorName), func(ctx context.Context, frame wallet.Frame) error {
		return e.recipes.ExecuteActionDirect(ctx, frame, id, callData)
	})
}

// ExecuteStrategy 是 bot 的执行入口，整个调用在一个事务中完成。
func (e *Engine) ExecuteStrategy(ctx context.Context, bot common.Address, subID uint64, strategyIndex int, triggerCallData, actionsCallData []hexutil.Bytes, sub model.StrategySub) error {
	start := time.Now()
	err := e.update(ctx, func(tx ledger.Tx) error {
		return e.executor.ExecuteStrategy(ctx, tx, bot, subID, strategyIndex, triggerCallData, actionsCallData, sub)
	})
	if e.observer != nil {
		e.observer.ObserveExecution(err, time.Since(start))
	}
	return err
}

// BuildProxy 为 owner 创建代理。
func (e *Engine) BuildProxy(ctx context.Context, owner common.Address) (model.Proxy, error) {
	var proxy model.Proxy
	err := e.update(ctx, func(tx ledger.Tx) error {
		var err error
		proxy, err = e.wallets.Build(tx, owner)
		return err
	})
	return proxy, err
}

// GrantProxy 授予 grantee 通过代理执行的权限。
func (e *Engine) GrantProxy(ctx context.Context, sender, proxy, grantee common.Address) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.wallets.Grant(tx, sender, proxy, grantee)
	})
}

// RevokeProxy 撤销 grantee 的权限。
func (e *Engine) RevokeProxy(ctx context.Context, sender, proxy, grantee common.Address) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.wallets.Revoke(tx, sender, proxy, grantee)
	})
}

// EnableAutomation 授权 ProxyAuth，使策略执行器可以通过代理运行订阅。
func (e *Engine) EnableAutomation(ctx context.Context, sender, proxy common.Address) error {
	return e.GrantProxy(ctx, sender, proxy, e.proxyAuth.Address())
}

// AddBot 把 bot 加入白名单。
func (e *Engine) AddBot(ctx context.Context, sender, bot common.Address) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.bots.AddCaller(tx, sender, bot)
	})
}

// RemoveBot 把 bot 移出白名单。
func (e *Engine) RemoveBot(ctx context.Context, sender, bot common.Address) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return e.bots.RemoveCaller(tx, sender, bot)
	})
}

// IsBotApproved 查询 bot 是否在白名单中。
func (e *Engine) IsBotApproved(ctx context.Context, bot common.Address) (bool, error) {
	var approved bool
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		approved, err = e.bots.IsApproved(tx, bot)
		return err
	})
	return approved, err
}

// Mint 铸造代币，仅管理员可调用。
func (e *Engine) Mint(ctx context.Context, sender, tok, to common.Address, amount *uint256.Int) error {
	if sender != e.owner {
		return xerrors.New(registry.CodeSenderNotOwner, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	return e.update(ctx, func(tx ledger.Tx) error {
		return token.Mint(tx, tok, to, amount)
	})
}

// Approve 设置 owner 对 spender 的授权额度。
func (e *Engine) Approve(ctx context.Context, owner, tok, spender common.Address, amount *uint256.Int) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return token.Approve(tx, tok, owner, spender, amount)
	})
}

// Transfer 从 from 转账到 to。
func (e *Engine) Transfer(ctx context.Context, from, tok, to common.Address, amount *uint256.Int) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return token.Transfer(tx, tok, from, to, amount)
	})
}

// Balance 查询余额。
func (e *Engine) Balance(ctx context.Context, tok, owner common.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = token.BalanceOf(tx, tok, owner)
		return err
	})
	return balance, err
}

// RegistryOp 是一次注册表管理操作。
type RegistryOp func(tx ledger.Tx, reg *registry.Registry) error

// AdministerRegistry 在一个事务中执行注册表管理操作。
func (e *Engine) AdministerRegistry(ctx context.Context, op RegistryOp) error {
	return e.update(ctx, func(tx ledger.Tx) error {
		return op(tx, e.registry)
	})
}

// AddContract 新增注册项。
func (e *Engine) AddContract(ctx context.Context, sender common.Address, id model.ID, addr common.Address, waitPeriod uint64) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.AddNewContract(tx, sender, id, addr, waitPeriod)
	})
}

// StartContractChange 发起地址变更。
func (e *Engine) StartContractChange(ctx context.Context, sender common.Address, id model.ID, newAddr common.Address) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.StartContractChange(tx, sender, id, newAddr)
	})
}

// ApproveContractChange 在等待期结束后确认地址变更。
func (e *Engine) ApproveContractChange(ctx context.Context, sender common.Address, id model.ID) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.ApproveContractChange(tx, sender, id)
	})
}

// CancelContractChange 取消地址变更。
func (e *Engine) CancelContractChange(ctx context.Context, sender common.Address, id model.ID) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.CancelContractChange(tx, sender, id)
	})
}

// StartWaitPeriodChange 发起等待期变更。
func (e *Engine) StartWaitPeriodChange(ctx context.Context, sender common.Address, id model.ID, newWaitPeriod uint64) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.StartWaitPeriodChange(tx, sender, id, newWaitPeriod)
	})
}

// ApproveWaitPeriodChange 确认等待期变更。
func (e *Engine) ApproveWaitPeriodChange(ctx context.Context, sender common.Address, id model.ID) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.ApproveWaitPeriodChange(tx, sender, id)
	})
}

// CancelWaitPeriodChange 取消等待期变更。
func (e *Engine) CancelWaitPeriodChange(ctx context.Context, sender common.Address, id model.ID) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.CancelWaitPeriodChange(tx, sender, id)
	})
}

// RevertToPreviousAddress 立即回滚到上一个地址。
func (e *Engine) RevertToPreviousAddress(ctx context.Context, sender common.Address, id model.ID) error {
	return e.AdministerRegistry(ctx, func(tx ledger.Tx, reg *registry.Registry) error {
		return reg.RevertToPreviousAddress(tx, sender, id)
	})
}

// Strategy 查询策略。
func (e *Engine) Strategy(ctx context.Context, id uint64) (model.Strategy, error) {
	var out model.Strategy
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.strategies.GetStrategy(tx, id)
		return err
	})
	return out, err
}

// Strategies 分页查询策略。
func (e *Engine) Strategies(ctx context.Context, page, perPage uint64) ([]model.Strategy, error) {
	var out []model.Strategy
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.strategies.Paginated(tx, page, perPage)
		return err
	})
	return out, err
}

// Bundle 查询 bundle。
func (e *Engine) Bundle(ctx context.Context, id uint64) (model.Bundle, error) {
	var out model.Bundle
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.bundles.GetBundle(tx, id)
		return err
	})
	return out, err
}

// Bundles 分页查询 bundle。
func (e *Engine) Bundles(ctx context.Context, page, perPage uint64) ([]model.Bundle, error) {
	var out []model.Bundle
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.bundles.Paginated(tx, page, perPage)
		return err
	})
	return out, err
}

// BundleStrategyID 返回 bundle 中第 index 个策略的 ID。
func (e *Engine) BundleStrategyID(ctx context.Context, bundleID uint64, index int) (uint64, error) {
	var out uint64
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.bundles.GetStrategyID(tx, bundleID, index)
		return err
	})
	return out, err
}

// Sub 查询订阅记录。
func (e *Engine) Sub(ctx context.Context, subID uint64) (model.StoredSub, error) {
	var out model.StoredSub
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.subs.GetSub(tx, subID)
		return err
	})
	return out, err
}

// Counts 汇总账本中的记录数量。
type Counts struct {
	Strategies uint64 `json:"strategies"`
	Bundles    uint64 `json:"bundles"`
	Subs       uint64 `json:"subs"`
}

// Counts 返回策略、bundle 与订阅的数量。
func (e *Engine) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		if out.Strategies, err = e.strategies.Count(tx); err != nil {
			return err
		}
		if out.Bundles, err = e.bundles.Count(tx); err != nil {
			return err
		}
		out.Subs, err = e.subs.GetSubsCount(tx)
		return err
	})
	return out, err
}

// RegistryEntry 按 id 查询注册项。
func (e *Engine) RegistryEntry(ctx context.Context, id model.ID) (model.Entry, error) {
	var out model.Entry
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.registry.Entry(tx, id)
		return err
	})
	return out, err
}

// Proxy 查询代理。
func (e *Engine) Proxy(ctx context.Context, addr common.Address) (model.Proxy, error) {
	var out model.Proxy
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = e.wallets.Get(tx, addr)
		return err
	})
	return out, err
}

// ResolveName 把名称或 0x 开头的 id 转换为注册表 id。
func ResolveName(name string) (model.ID, error) {
	id, err := Registration{Name: name}.ID()
	if err != nil {
		return model.ID{}, fmt.Errorf("resolve %q: %w", name, err)
	}
	return id, nil
}
