package builtin

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/codec"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/token"
	"Recipe-Chain/internal/trigger"
)

// BalanceTriggerName 是余额触发器的名称。
const BalanceTriggerName = "BalanceTrigger"

// BalanceState 指定余额比较方向。
type BalanceState uint8

const (
	// Over 余额不低于目标时触发。
	Over BalanceState = iota
	// Under 余额不高于目标时触发。
	Under
)

var balanceArgs = codec.MustArguments("address", "address", "uint256", "uint8")

// EncodeBalance 编码余额触发器的订阅参数。
func EncodeBalance(tok, owner common.Address, target *uint256.Int, state BalanceState) ([]byte, error) {
	return codec.Pack(balanceArgs, tok, owner, target, uint8(state))
}

// BalanceTrigger 比较 owner 的代币余额与目标值。
type BalanceTrigger struct{}

// IsTriggered 实现 trigger.Trigger。
func (BalanceTrigger) IsTriggered(_ context.Context, tx ledger.Tx, _, subData []byte) (bool, error) {
	values, err := codec.Unpack(balanceArgs, subData)
	if err != nil {
		return false, trigger.InvalidSubData(BalanceTriggerName, err)
	}
	tok, err := values.Address(0)
	if err != nil {
		return false, trigger.InvalidSubData(BalanceTriggerName, err)
	}
	owner, err := values.Address(1)
	if err != nil {
		return false, trigger.InvalidSubData(BalanceTriggerName, err)
	}
	target, err := values.Uint256(2)
	if err != nil {
		return false, trigger.InvalidSubData(BalanceTriggerName, err)
	}
	state, err := values.Uint8(3)
	if err != nil {
		return false, trigger.InvalidSubData(BalanceTriggerName, err)
	}
	balance, err := token.BalanceOf(tx, tok, owner)
	if err != nil {
		return false, err
	}
	switch BalanceState(state) {
	case Over:
		return !balance.Lt(target), nil
	case Under:
		return !balance.Gt(target), nil
	default:
		return false, trigger.InvalidSubData(BalanceTriggerName, fmt.Errorf("unknown state %d", state))
	}
}
