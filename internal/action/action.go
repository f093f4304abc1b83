package action

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/wallet"
)

// Type 是动作的分类。
type Type uint8

const (
	TypeFlashLoan Type = iota
	TypeStandard
	TypeFee
	TypeCheck
	TypeCustom
)

// String 返回分类名称。
func (t Type) String() string {
	switch t {
	case TypeFlashLoan:
		return "flashloan"
	case TypeStandard:
		return "standard"
	case TypeFee:
		return "fee"
	case TypeCheck:
		return "check"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Callback 是闪电贷出借方在借出资产后回调配方执行器的入口。
type Callback interface {
	ExecuteActionsFromFL(ctx context.Context, correlationID string, repayAmount *uint256.Int) error
}

// Env 是动作运行时的代理上下文。
type Env struct {
	Frame wallet.Frame
	// CorrelationID 仅在闪电贷动作执行时设置，用于回调时定位剩余动作。
	CorrelationID string
	Callback      Callback
}

// Action 是所有动作共同遵守的调用约定。
type Action interface {
	// ExecuteAction 在配方中执行，返回值供后续动作引用。
	ExecuteAction(ctx context.Context, env Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error)
	// ExecuteActionDirect 单独执行，不解析管道参数。
	ExecuteActionDirect(ctx context.Context, env Env, callData []byte) error
	ActionType() Type
}

// Log 记录配方模式下的动作事件。
func Log(env Env, name string, payload []byte) {
	emit(env, "ActionEvent", name, payload)
}

// LogDirect 记录直接调用模式下的动作事件。
func LogDirect(env Env, name string, payload []byte) {
	emit(env, "ActionDirectEvent", name, payload)
}

func emit(env Env, event, name string, payload []byte) {
	if env.Frame.Tx == nil {
		return
	}
	env.Frame.Tx.Emit(model.Event{Contract: "Logger", Name: event, Fields: map[string]any{
		"action":  name,
		"proxy":   env.Frame.Proxy.Hex(),
		"payload": hexutil.Bytes(payload).String(),
	}})
}
