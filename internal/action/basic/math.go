package basic

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
)

const (
	CodeArithmeticOverflow  xerrors.Code = "ARITHMETIC_OVERFLOW"
	CodeArithmeticUnderflow xerrors.Code = "ARITHMETIC_UNDERFLOW"
)

func init() {
	xerrors.Register(CodeArithmeticOverflow, xerrors.Attributes{
		Message:  "pipe arithmetic overflow",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeArithmeticUnderflow, xerrors.Attributes{
		Message:  "pipe arithmetic underflow",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
}

var twoUintArgs = codec.MustArguments("uint256", "uint256")

// EncodeInputs 编码 SumInputs 与 SubInputs 的输入。
func EncodeInputs(a, b *uint256.Int) ([]byte, error) {
	return codec.Pack(twoUintArgs, a, b)
}

type binaryOp struct {
	name string
	op   func(a, b *uint256.Int) (*uint256.Int, error)
}

func (o binaryOp) decode(callData []byte) (*uint256.Int, *uint256.Int, error) {
	values, err := codec.Unpack(twoUintArgs, callData)
	if err != nil {
		return nil, nil, action.InvalidCallData(o.name, err)
	}
	a, err := values.Uint256(0)
	if err != nil {
		return nil, nil, action.InvalidCallData(o.name, err)
	}
	b, err := values.Uint256(1)
	if err != nil {
		return nil, nil, action.InvalidCallData(o.name, err)
	}
	return a, b, nil
}

func (o binaryOp) run(env action.Env, callData []byte, p *action.Params) (*uint256.Int, error) {
	a, b, err := o.decode(callData)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if a, err = p.Uint(0, a); err != nil {
			return nil, err
		}
		if b, err = p.Uint(1, b); err != nil {
			return nil, err
		}
	}
	return o.op(a, b)
}

func (o binaryOp) executeAction(env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	result, err := o.run(env, callData, action.NewParams(env, paramMapping, subData, returnValues))
	if err != nil {
		return common.Hash{}, err
	}
	word := codec.UintWord(result)
	action.Log(env, o.name, word.Bytes())
	return word, nil
}

func (o binaryOp) executeDirect(env action.Env, callData []byte) error {
	result, err := o.run(env, callData, nil)
	if err != nil {
		return err
	}
	action.LogDirect(env, o.name, codec.UintWord(result).Bytes())
	return nil
}

var (
	sum = binaryOp{name: SumInputsName, op: func(a, b *uint256.Int) (*uint256.Int, error) {
		out, overflow := new(uint256.Int).AddOverflow(a, b)
		if overflow {
			return nil, xerrors.New(CodeArithmeticOverflow, fmt.Sprintf("%s + %s", a.Dec(), b.Dec()))
		}
		return out, nil
	}}
	sub = binaryOp{name: SubInputsName, op: func(a, b *uint256.Int) (*uint256.Int, error) {
		out, underflow := new(uint256.Int).SubOverflow(a, b)
		if underflow {
			return nil, xerrors.New(CodeArithmeticUnderflow, fmt.Sprintf("%s - %s", a.Dec(), b.Dec()))
		}
		return out, nil
	}}
)

// SumInputs 返回两个输入之和，溢出时中止配方。
type SumInputs struct{}

// ExecuteAction 实现 action.Action。
func (SumInputs) ExecuteAction(_ context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	return sum.executeAction(env, callData, subData, paramMapping, returnValues)
}

// ExecuteActionDirect 实现 action.Action。
func (SumInputs) ExecuteActionDirect(_ context.Context, env action.Env, callData []byte) error {
	return sum.executeDirect(env, callData)
}

// ActionType 实现 action.Action。
func (SumInputs) ActionType() action.Type { return action.TypeStandard }

// SubInputs 返回 a - b，下溢时中止配方。
type SubInputs struct{}

// ExecuteAction 实现 action.Action。
func (SubInputs) ExecuteAction(_ context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	return sub.executeAction(env, callData, subData, paramMapping, returnValues)
}

// ExecuteActionDirect 实现 action.Action。
func (SubInputs) ExecuteActionDirect(_ context.Context, env action.Env, callData []byte) error {
	return sub.executeDirect(env, callData)
}

// ActionType 实现 action.Action。
func (SubInputs) ActionType() action.Type { return action.TypeStandard }
