package registry

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

// Registry 管理 id 到实现地址的映射，变更需要等待期。
type Registry struct {
	owner common.Address
}

// New 创建由 owner 管理的注册表。
func New(owner common.Address) *Registry {
	return &Registry{owner: owner}
}

// Owner 返回注册表管理员地址。
func (r *Registry) Owner() common.Address {
	return r.owner
}

func (r *Registry) onlyOwner(sender common.Address) error {
	if sender != r.owner {
		return xerrors.New(CodeSenderNotOwner, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	return nil
}

func existingEntry(tx ledger.Tx, id model.ID) (model.Entry, error) {
	entry, err := tx.Entry(id)
	if err != nil {
		return model.Entry{}, err
	}
	if !entry.Exists {
		return model.Entry{}, xerrors.New(CodeEntryNonExistent, fmt.Sprintf("entry %s does not exist", id))
	}
	return entry, nil
}

// AddNewContract 新增注册项。
func (r *Registry) AddNewContract(tx ledger.Tx, sender common.Address, id model.ID, addr common.Address, waitPeriod uint64) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := tx.Entry(id)
	if err != nil {
		return err
	}
	if entry.Exists {
		return xerrors.New(CodeEntryAlreadyExists, fmt.Sprintf("entry %s already exists", id))
	}
	if err := tx.PutEntry(id, model.Entry{ContractAddr: addr, WaitPeriod: waitPeriod, Exists: true}); err != nil {
		return err
	}
	r.record(tx, "AddNewContract", id, slog.String("addr", addr.Hex()), slog.Uint64("wait_period", waitPeriod))
	return nil
}

// RevertToPreviousAddress 回退到上一次批准前的地址。
func (r *Registry) RevertToPreviousAddress(tx ledger.Tx, sender common.Address, id model.ID) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if entry.PreviousAddr == (common.Address{}) {
		return xerrors.New(CodeEmptyPrevAddr, fmt.Sprintf("entry %s has no previous address", id))
	}
	current := entry.ContractAddr
	entry.ContractAddr = entry.PreviousAddr
	entry.PreviousAddr = current
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "RevertToPreviousAddress", id, slog.String("addr", entry.ContractAddr.Hex()))
	return nil
}

// StartContractChange 开始地址变更，等待期从当前时刻起算。
func (r *Registry) StartContractChange(tx ledger.Tx, sender common.Address, id model.ID, newAddr common.Address) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if entry.InWaitPeriodChange {
		return xerrors.New(CodeAlreadyInWaitPeriodChange, "")
	}
	entry.ChangeStartTime = tx.Now().Unix()
	entry.InContractChange = true
	entry.PendingContractAddr = newAddr
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "StartContractChange", id, slog.String("pending_addr", newAddr.Hex()))
	return nil
}

// ApproveContractChange 在等待期结束后生效地址变更。
func (r *Registry) ApproveContractChange(tx ledger.Tx, sender common.Address, id model.ID) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if !entry.InContractChange {
		return xerrors.New(CodeEntryNotInChange, "")
	}
	if err := ready(tx, entry); err != nil {
		return err
	}
	entry.PreviousAddr = entry.ContractAddr
	entry.ContractAddr = entry.PendingContractAddr
	entry.PendingContractAddr = common.Address{}
	entry.InContractChange = false
	entry.ChangeStartTime = 0
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "ApproveContractChange", id,
		slog.String("old_addr", entry.PreviousAddr.Hex()),
		slog.String("new_addr", entry.ContractAddr.Hex()),
	)
	return nil
}

// CancelContractChange 放弃进行中的地址变更。
func (r *Registry) CancelContractChange(tx ledger.Tx, sender common.Address, id model.ID) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if !entry.InContractChange {
		return xerrors.New(CodeEntryNotInChange, "")
	}
	pending := entry.PendingContractAddr
	entry.PendingContractAddr = common.Address{}
	entry.InContractChange = false
	entry.ChangeStartTime = 0
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "CancelContractChange", id, slog.String("cancelled_addr", pending.Hex()))
	return nil
}

// StartWaitPeriodChange 开始等待期变更。
func (r *Registry) StartWaitPeriodChange(tx ledger.Tx, sender common.Address, id model.ID, newWaitPeriod uint64) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if entry.InContractChange {
		return xerrors.New(CodeAlreadyInContractChange, "")
	}
	entry.PendingWaitPeriod = newWaitPeriod
	entry.ChangeStartTime = tx.Now().Unix()
	entry.InWaitPeriodChange = true
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "StartWaitPeriodChange", id, slog.Uint64("pending_wait_period", newWaitPeriod))
	return nil
}

// ApproveWaitPeriodChange 在旧等待期结束后生效新的等待期。
func (r *Registry) ApproveWaitPeriodChange(tx ledger.Tx, sender common.Address, id model.ID) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if !entry.InWaitPeriodChange {
		return xerrors.New(CodeEntryNotInChange, "")
	}
	if err := ready(tx, entry); err != nil {
		return err
	}
	old := entry.WaitPeriod
	entry.WaitPeriod = entry.PendingWaitPeriod
	entry.PendingWaitPeriod = 0
	entry.InWaitPeriodChange = false
	entry.ChangeStartTime = 0
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "ApproveWaitPeriodChange", id,
		slog.Uint64("old_wait_period", old),
		slog.Uint64("new_wait_period", entry.WaitPeriod),
	)
	return nil
}

// CancelWaitPeriodChange 放弃进行中的等待期变更。
func (r *Registry) CancelWaitPeriodChange(tx ledger.Tx, sender common.Address, id model.ID) error {
	if err := r.onlyOwner(sender); err != nil {
		return err
	}
	entry, err := existingEntry(tx, id)
	if err != nil {
		return err
	}
	if !entry.InWaitPeriodChange {
		return xerrors.New(CodeEntryNotInChange, "")
	}
	entry.PendingWaitPeriod = 0
	entry.InWaitPeriodChange = false
	entry.ChangeStartTime = 0
	if err := tx.PutEntry(id, entry); err != nil {
		return err
	}
	r.record(tx, "CancelWaitPeriodChange", id)
	return nil
}

// GetAddr 返回 id 当前对应的地址，未注册时返回零地址。
func (r *Registry) GetAddr(tx ledger.Tx, id model.ID) (common.Address, error) {
	entry, err := tx.Entry(id)
	if err != nil {
		return common.Address{}, err
	}
	return entry.ContractAddr, nil
}

// IsRegistered 判断 id 是否存在。
func (r *Registry) IsRegistered(tx ledger.Tx, id model.ID) (bool, error) {
	entry, err := tx.Entry(id)
	if err != nil {
		return false, err
	}
	return entry.Exists, nil
}

// Entry 返回完整注册项。
func (r *Registry) Entry(tx ledger.Tx, id model.ID) (model.Entry, error) {
	return existingEntry(tx, id)
}

// ready 以整秒比较等待期，时钟回拨时视为未就绪。
func ready(tx ledger.Tx, entry model.Entry) error {
	now := tx.Now().Unix()
	if now >= entry.ChangeStartTime && uint64(now-entry.ChangeStartTime) >= entry.WaitPeriod {
		return nil
	}
	return xerrors.New(CodeChangeNotReady, fmt.Sprintf("change started at %d needs %d seconds, now %d",
		entry.ChangeStartTime, entry.WaitPeriod, now))
}

// record 通过账本事件留痕，事务提交后由审计发布器写入审计日志。
func (r *Registry) record(tx ledger.Tx, op string, id model.ID, attrs ...slog.Attr) {
	fields := map[string]any{"id": id.String()}
	for _, attr := range attrs {
		fields[attr.Key] = attr.Value.Any()
	}
	tx.Emit(model.Event{Contract: "Registry", Name: op, Fields: fields})
}
