package strategy

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

// 账本标志位键。
const (
	StrategyOpenFlag = "strategy.openToPublic"
	BundleOpenFlag   = "bundle.openToPublic"
)

// StrategyStorage 是策略模板的只追加存储。
type StrategyStorage struct {
	owner common.Address
}

// NewStrategyStorage 创建策略存储，owner 在关闭公开创建时仍可创建。
func NewStrategyStorage(owner common.Address) *StrategyStorage {
	return &StrategyStorage{owner: owner}
}

// CreateStrategy 追加一条策略并返回其 id。
func (s *StrategyStorage) CreateStrategy(tx ledger.Tx, sender common.Address, name string, triggerIDs, actionIDs []model.ID, paramMapping [][]uint8, continuous bool) (uint64, error) {
	open, err := tx.Flag(StrategyOpenFlag)
	if err != nil {
		return 0, err
	}
	if !open && sender != s.owner {
		return 0, xerrors.New(CodeNoAuthToCreateStrategy, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	if len(actionIDs) == 0 || len(actionIDs) != len(paramMapping) {
		return 0, xerrors.New(CodeInvalidStrategy,
			fmt.Sprintf("%d actions, %d param mappings", len(actionIDs), len(paramMapping)))
	}
	id, err := tx.AppendStrategy(model.Strategy{
		Name:         strings.TrimSpace(name),
		Creator:      sender,
		TriggerIDs:   triggerIDs,
		ActionIDs:    actionIDs,
		ParamMapping: paramMapping,
		Continuous:   continuous,
	})
	if err != nil {
		return 0, err
	}
	tx.Emit(model.Event{Contract: "StrategyStorage", Name: "StrategyCreated", Fields: map[string]any{
		"strategy_id": id,
		"creator":     sender.Hex(),
		"name":        name,
	}})
	return id, nil
}

// ChangeEditPermission 打开或关闭公开创建，仅 owner 可调用。
func (s *StrategyStorage) ChangeEditPermission(tx ledger.Tx, sender common.Address, open bool) error {
	return changeEditPermission(tx, s.owner, sender, StrategyOpenFlag, "StrategyStorage", open)
}

// OpenToPublic 返回是否允许任何人创建策略。
func (s *StrategyStorage) OpenToPublic(tx ledger.Tx) (bool, error) {
	return tx.Flag(StrategyOpenFlag)
}

// GetStrategy 按 id 读取策略。
func (s *StrategyStorage) GetStrategy(tx ledger.Tx, id uint64) (model.Strategy, error) {
	strategy, err := tx.Strategy(id)
	if err != nil {
		if xerrors.CodeOf(err) == ledger.CodeNotFound {
			return model.Strategy{}, xerrors.New(CodeStrategyNotFound, fmt.Sprintf("strategy %d not found", id),
				xerrors.WithMetadata("strategy_id", fmt.Sprint(id)))
		}
		return model.Strategy{}, err
	}
	return strategy, nil
}

// Count 返回策略数量。
func (s *StrategyStorage) Count(tx ledger.Tx) (uint64, error) {
	return tx.StrategyCount()
}

// Paginated 返回第 page 页的策略，page 从 0 开始。
func (s *StrategyStorage) Paginated(tx ledger.Tx, page, perPage uint64) ([]model.Strategy, error) {
	total, err := tx.StrategyCount()
	if err != nil {
		return nil, err
	}
	start, end := ledger.Page(total, page, perPage)
	out := make([]model.Strategy, 0, end-start)
	for id := start; id < end; id++ {
		strategy, err := tx.Strategy(id)
		if err != nil {
			return nil, err
		}
		out = append(out, strategy)
	}
	return out, nil
}

func changeEditPermission(tx ledger.Tx, owner, sender common.Address, flag, contract string, open bool) error {
	if sender != owner {
		return xerrors.New(CodeSenderNotOwner, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	if err := tx.SetFlag(flag, open); err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: contract, Name: "ChangeEditPermission", Fields: map[string]any{"open": open}})
	return nil
}
