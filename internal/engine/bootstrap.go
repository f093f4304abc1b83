package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action/basic"
	"Recipe-Chain/internal/action/flashloan"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/token"
	"Recipe-Chain/internal/trigger/builtin"
)

// genesisFlag 标记一次性初始化（权限开关与初始余额）已经执行。
const genesisFlag = "engine.genesis"

// Registration 是一条注册表启动项。
type Registration struct {
	// Name 是注册表名称，也可以是 0x 开头的 4 字节 id。
	Name string
	// Impl 是目录中的实现名称。
	Impl string
	// Address 非零时把实现额外放在该地址。
	Address    common.Address
	WaitPeriod uint64
}

// ID 返回注册项对应的注册表 id。
func (r Registration) ID() (model.ID, error) {
	name := strings.TrimSpace(r.Name)
	if strings.HasPrefix(name, "0x") && len(name) == 10 {
		return model.ParseID(name)
	}
	return model.NameID(name), nil
}

// Allocation 是首次启动时铸造的余额。
type Allocation struct {
	Token  common.Address
	Owner  common.Address
	Amount *uint256.Int
}

// Genesis 描述启动时写入账本的内容。
type Genesis struct {
	Entries        []Registration
	Bots           []common.Address
	OpenStrategies bool
	OpenBundles    bool
	Allocations    []Allocation
}

// DefaultEntries 返回全部内置动作与触发器的注册项，等待期为 0。
func (e *Engine) DefaultEntries() []Registration {
	names := []string{
		basic.PullTokenName,
		basic.SendTokenName,
		basic.SumInputsName,
		basic.SubInputsName,
		basic.TokenBalanceCheckName,
		flashloan.Name,
		builtin.BalanceTriggerName,
		builtin.TimestampTriggerName,
	}
	if _, ok := e.catalog.Lookup(registry.ImplAddress(builtin.GasPriceTriggerName)); ok {
		names = append(names, builtin.GasPriceTriggerName)
	}
	out := make([]Registration, len(names))
	for i, name := range names {
		out[i] = Registration{Name: name, Impl: name}
	}
	return out
}

type coreEntry struct {
	id   model.ID
	name string
}

func (e *Engine) coreEntries() []coreEntry {
	return []coreEntry{
		{registry.RecipeExecutorID, RecipeExecutorName},
		{registry.StrategyExecutorID, StrategyExecutorName},
		{registry.ProxyAuthID, ProxyAuthName},
		{registry.BotAuthID, BotAuthName},
		{registry.SubStorageID, SubStorageName},
		{registry.StrategyStorageID, StrategyStorageName},
		{registry.BundleStorageID, BundleStorageName},
	}
}

// Bootstrap 在一个事务中登记核心组件与 Entries，已存在的注册项保持不变。
// Entries 为空时使用 DefaultEntries。Bots 只会被添加，权限开关与初始余额只在首次执行时生效。
func (e *Engine) Bootstrap(ctx context.Context, genesis Genesis) error {
	entries := genesis.Entries
	if len(entries) == 0 {
		entries = e.DefaultEntries()
	}
	return e.update(ctx, func(tx ledger.Tx) error {
		for _, core := range e.coreEntries() {
			if err := e.registerIfMissing(tx, core.id, registry.ImplAddress(core.name), 0); err != nil {
				return fmt.Errorf("bootstrap %s: %w", core.name, err)
			}
		}
		for _, entry := range entries {
			id, err := entry.ID()
			if err != nil {
				return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "registry entry "+entry.Name)
			}
			addr, err := e.implAddress(entry)
			if err != nil {
				return err
			}
			if err := e.registerIfMissing(tx, id, addr, entry.WaitPeriod); err != nil {
				return fmt.Errorf("bootstrap %s: %w", entry.Name, err)
			}
		}
		for _, bot := range genesis.Bots {
			approved, err := e.bots.IsApproved(tx, bot)
			if err != nil {
				return err
			}
			if !approved {
				if err := e.bots.AddCaller(tx, e.owner, bot); err != nil {
					return err
				}
			}
		}

		done, err := tx.Flag(genesisFlag)
		if err != nil || done {
			return err
		}
		if err := e.strategies.ChangeEditPermission(tx, e.owner, genesis.OpenStrategies); err != nil {
			return err
		}
		if err := e.bundles.ChangeEditPermission(tx, e.owner, genesis.OpenBundles); err != nil {
			return err
		}
		for _, alloc := range genesis.Allocations {
			if err := token.Mint(tx, alloc.Token, alloc.Owner, alloc.Amount); err != nil {
				return err
			}
		}
		e.log.Info("账本初始化完成",
			slog.Int("entries", len(entries)),
			slog.Int("allocations", len(genesis.Allocations)),
			slog.String("tx_id", tx.ID()),
		)
		return tx.SetFlag(genesisFlag, true)
	})
}

func (e *Engine) implAddress(entry Registration) (common.Address, error) {
	defaultAddr := registry.ImplAddress(entry.Impl)
	binding, ok := e.catalog.Lookup(defaultAddr)
	if !ok {
		return common.Address{}, xerrors.New(registry.CodeImplementationNotFound,
			fmt.Sprintf("no implementation named %q", entry.Impl))
	}
	if entry.Address == (common.Address{}) || entry.Address == defaultAddr {
		return defaultAddr, nil
	}
	if existing, ok := e.catalog.Lookup(entry.Address); ok {
		if existing.Name != entry.Impl {
			return common.Address{}, xerrors.New(registry.CodeImplementationAddressInUse,
				fmt.Sprintf("%s already hosts %s", entry.Address.Hex(), existing.Name))
		}
		return entry.Address, nil
	}
	if err := e.catalog.Register(entry.Address, binding.Name, binding.Impl); err != nil {
		return common.Address{}, err
	}
	return entry.Address, nil
}

func (e *Engine) registerIfMissing(tx ledger.Tx, id model.ID, addr common.Address, wait uint64) error {
	registered, err := e.registry.IsRegistered(tx, id)
	if err != nil || registered {
		return err
	}
	return e.registry.AddNewContract(tx, e.owner, id, addr, wait)
}
