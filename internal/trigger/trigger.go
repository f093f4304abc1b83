// Package trigger defines the read-only predicates that gate automated
// strategy execution.
package trigger

import (
	"context"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
)

// CodeSubDataInvalid 表示订阅中保存的触发器参数无法解码。
const CodeSubDataInvalid xerrors.Code = "TRIGGER_DATA_INVALID"

func init() {
	xerrors.Register(CodeSubDataInvalid, xerrors.Attributes{
		Message:  "trigger sub data invalid",
		Category: xerrors.CategoryIntegrity,
	})
}

// InvalidSubData 把触发器参数的解码失败包装为 CodeSubDataInvalid。
func InvalidSubData(name string, cause error) error {
	return xerrors.Wrap(CodeSubDataInvalid, cause, name+" 的订阅参数无效")
}

// Trigger 判断当前状态是否满足执行条件，不得写账本。
// callData 由 bot 每次执行时提供，subData 是订阅中保存的触发器参数。
type Trigger interface {
	IsTriggered(ctx context.Context, tx ledger.Tx, callData, subData []byte) (bool, error)
}

// Changeable 由执行后需要改写订阅参数的触发器实现，例如定投的下一次时间。
type Changeable interface {
	IsChangeable() bool
	ChangedSubData(subData []byte) ([]byte, error)
}

// ChangedSubData 返回触发器执行后的新参数，不可变触发器返回 false。
func ChangedSubData(t Trigger, subData []byte) ([]byte, bool, error) {
	c, ok := t.(Changeable)
	if !ok || !c.IsChangeable() {
		return nil, false, nil
	}
	next, err := c.ChangedSubData(subData)
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
