package strategy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

// BundleStorage 保存共享同一触发器列表的策略组合。
type BundleStorage struct {
	owner      common.Address
	strategies *StrategyStorage
}

// NewBundleStorage 创建 bundle 存储。
func NewBundleStorage(owner common.Address, strategies *StrategyStorage) *BundleStorage {
	return &BundleStorage{owner: owner, strategies: strategies}
}

// CreateBundle 追加 bundle。所有策略必须存在且触发器 id 列表完全一致。
func (b *BundleStorage) CreateBundle(tx ledger.Tx, sender common.Address, strategyIDs []uint64) (uint64, error) {
	open, err := tx.Flag(BundleOpenFlag)
	if err != nil {
		return 0, err
	}
	if !open && sender != b.owner {
		return 0, xerrors.New(CodeNoAuthToCreateBundle, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	if len(strategyIDs) == 0 {
		return 0, xerrors.New(CodeEmptyBundle, "")
	}
	first, err := b.strategies.GetStrategy(tx, strategyIDs[0])
	if err != nil {
		return 0, err
	}
	for _, id := range strategyIDs[1:] {
		strategy, err := b.strategies.GetStrategy(tx, id)
		if err != nil {
			return 0, err
		}
		if !sameTriggers(first.TriggerIDs, strategy.TriggerIDs) {
			return 0, xerrors.New(CodeDiffTriggersInBundle,
				fmt.Sprintf("strategy %d triggers differ from strategy %d", id, strategyIDs[0]))
		}
	}
	id, err := tx.AppendBundle(model.Bundle{Creator: sender, StrategyIDs: strategyIDs})
	if err != nil {
		return 0, err
	}
	tx.Emit(model.Event{Contract: "BundleStorage", Name: "BundleCreated", Fields: map[string]any{
		"bundle_id":    id,
		"creator":      sender.Hex(),
		"strategy_ids": append([]uint64(nil), strategyIDs...),
	}})
	return id, nil
}

func sameTriggers(a, b []model.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ChangeEditPermission 打开或关闭公开创建。
func (b *BundleStorage) ChangeEditPermission(tx ledger.Tx, sender common.Address, open bool) error {
	return changeEditPermission(tx, b.owner, sender, BundleOpenFlag, "BundleStorage", open)
}

// OpenToPublic 返回是否允许任何人创建 bundle。
func (b *BundleStorage) OpenToPublic(tx ledger.Tx) (bool, error) {
	return tx.Flag(BundleOpenFlag)
}

// GetBundle 按 id 读取 bundle。
func (b *BundleStorage) GetBundle(tx ledger.Tx, id uint64) (model.Bundle, error) {
	bundle, err := tx.Bundle(id)
	if err != nil {
		if xerrors.CodeOf(err) == ledger.CodeNotFound {
			return model.Bundle{}, xerrors.New(CodeBundleNotFound, fmt.Sprintf("bundle %d not found", id),
				xerrors.WithMetadata("bundle_id", fmt.Sprint(id)))
		}
		return model.Bundle{}, err
	}
	return bundle, nil
}

// GetStrategyID 返回 bundle 中第 index 个策略的 id。
func (b *BundleStorage) GetStrategyID(tx ledger.Tx, bundleID uint64, index int) (uint64, error) {
	bundle, err := b.GetBundle(tx, bundleID)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(bundle.StrategyIDs) {
		return 0, xerrors.New(CodeBundleIndexOutOfRange,
			fmt.Sprintf("index %d outside bundle %d of %d strategies", index, bundleID, len(bundle.StrategyIDs)))
	}
	return bundle.StrategyIDs[index], nil
}

// Count 返回 bundle 数量。
func (b *BundleStorage) Count(tx ledger.Tx) (uint64, error) {
	return tx.BundleCount()
}

// Paginated 返回第 page 页的 bundle。
func (b *BundleStorage) Paginated(tx ledger.Tx, page, perPage uint64) ([]model.Bundle, error) {
	total, err := tx.BundleCount()
	if err != nil {
		return nil, err
	}
	start, end := ledger.Page(total, page, perPage)
	out := make([]model.Bundle, 0, end-start)
	for id := start; id < end; id++ {
		bundle, err := tx.Bundle(id)
		if err != nil {
			return nil, err
		}
		out = append(out, bundle)
	}
	return out, nil
}
