// Package subscription keeps per-proxy subscriptions to strategies and
// bundles. Only the hash of the full parameters is stored; the parameters
// themselves travel in events and must be resupplied at execution time.
package subscription

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/strategy"
)

const (
	CodeSubIDOutOfRange   xerrors.Code = "SUB_ID_OUT_OF_RANGE"
	CodeSenderNotSubOwner xerrors.Code = "SENDER_NOT_SUB_OWNER"
	CodeSubNotFound       xerrors.Code = "SUB_NOT_FOUND"
)

func init() {
	xerrors.Register(CodeSubIDOutOfRange, xerrors.Attributes{
		Message:  "strategy or bundle id out of range",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeSenderNotSubOwner, xerrors.Attributes{
		Message:  "sender does not own the subscription",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAuthorization,
	})
	xerrors.Register(CodeSubNotFound, xerrors.Attributes{
		Message:  "subscription not found",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryIntegrity,
	})
}

// 订阅事件名称。
const (
	EventSubscribe     = "Subscribe"
	EventUpdateData    = "UpdateData"
	EventActivateSub   = "ActivateSub"
	EventDeactivateSub = "DeactivateSub"
)

// Storage 管理订阅记录。
type Storage struct {
	strategies *strategy.StrategyStorage
	bundles    *strategy.BundleStorage
}

// NewStorage 创建订阅存储。
func NewStorage(strategies *strategy.StrategyStorage, bundles *strategy.BundleStorage) *Storage {
	return &Storage{strategies: strategies, bundles: bundles}
}

// SubscribeToStrategy 为 sender 代理创建启用状态的订阅。
func (s *Storage) SubscribeToStrategy(tx ledger.Tx, sender common.Address, sub model.StrategySub) (uint64, error) {
	if err := s.checkRange(tx, sub); err != nil {
		return 0, err
	}
	hash, err := codec.HashSub(sub)
	if err != nil {
		return 0, err
	}
	id, err := tx.AppendSub(model.StoredSub{WalletAddr: sender, IsEnabled: true, StrategySubHash: hash})
	if err != nil {
		return 0, err
	}
	emit(tx, EventSubscribe, id, sender, hash, sub)
	return id, nil
}

// UpdateSubData 替换订阅参数并重新计算哈希。
func (s *Storage) UpdateSubData(tx ledger.Tx, sender common.Address, subID uint64, sub model.StrategySub) error {
	stored, err := s.owned(tx, sender, subID)
	if err != nil {
		return err
	}
	if err := s.checkRange(tx, sub); err != nil {
		return err
	}
	hash, err := codec.HashSub(sub)
	if err != nil {
		return err
	}
	stored.StrategySubHash = hash
	if err := tx.PutSub(subID, stored); err != nil {
		return err
	}
	emit(tx, EventUpdateData, subID, sender, hash, sub)
	return nil
}

// ActivateSub 重新启用订阅。
func (s *Storage) ActivateSub(tx ledger.Tx, sender common.Address, subID uint64) error {
	return s.setEnabled(tx, sender, subID, true, EventActivateSub)
}

// DeactivateSub 停用订阅，之后的执行都会失败。
func (s *Storage) DeactivateSub(tx ledger.Tx, sender common.Address, subID uint64) error {
	return s.setEnabled(tx, sender, subID, false, EventDeactivateSub)
}

// GetSub 读取订阅记录。
func (s *Storage) GetSub(tx ledger.Tx, subID uint64) (model.StoredSub, error) {
	stored, err := tx.Sub(subID)
	if err != nil {
		if xerrors.CodeOf(err) == ledger.CodeNotFound {
			return model.StoredSub{}, xerrors.New(CodeSubNotFound, fmt.Sprintf("sub %d not found", subID),
				xerrors.WithMetadata("sub_id", fmt.Sprint(subID)))
		}
		return model.StoredSub{}, err
	}
	return stored, nil
}

// GetSubsCount 返回订阅数量。
func (s *Storage) GetSubsCount(tx ledger.Tx) (uint64, error) {
	return tx.SubCount()
}

func (s *Storage) setEnabled(tx ledger.Tx, sender common.Address, subID uint64, enabled bool, event string) error {
	stored, err := s.owned(tx, sender, subID)
	if err != nil {
		return err
	}
	stored.IsEnabled = enabled
	if err := tx.PutSub(subID, stored); err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: "SubStorage", Name: event, Fields: map[string]any{
		"sub_id": subID,
		"proxy":  sender.Hex(),
	}})
	return nil
}

func (s *Storage) owned(tx ledger.Tx, sender common.Address, subID uint64) (model.StoredSub, error) {
	stored, err := s.GetSub(tx, subID)
	if err != nil {
		return model.StoredSub{}, err
	}
	if stored.WalletAddr != sender {
		return model.StoredSub{}, xerrors.New(CodeSenderNotSubOwner,
			fmt.Sprintf("%s does not own sub %d", sender.Hex(), subID))
	}
	return stored, nil
}

func (s *Storage) checkRange(tx ledger.Tx, sub model.StrategySub) error {
	var (
		count uint64
		err   error
		kind  = "strategy"
	)
	if sub.IsBundle {
		kind = "bundle"
		count, err = s.bundles.Count(tx)
	} else {
		count, err = s.strategies.Count(tx)
	}
	if err != nil {
		return err
	}
	if sub.StrategyOrBundleID >= count {
		return xerrors.New(CodeSubIDOutOfRange,
			fmt.Sprintf("%s %d out of range, %d exist", kind, sub.StrategyOrBundleID, count))
	}
	return nil
}

func emit(tx ledger.Tx, name string, subID uint64, proxy common.Address, hash common.Hash, sub model.StrategySub) {
	tx.Emit(model.Event{Contract: "SubStorage", Name: name, Fields: map[string]any{
		"sub_id":   subID,
		"proxy":    proxy.Hex(),
		"sub_hash": hash.Hex(),
		"sub":      sub.Clone(),
	}})
}
