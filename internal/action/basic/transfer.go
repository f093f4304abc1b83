package basic

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/codec"
	"Recipe-Chain/internal/token"
)

var tokenAddrAmountArgs = codec.MustArguments("address", "address", "uint256")

// 动作名称，同时用于注册表 id 与事件。
const (
	PullTokenName         = "PullToken"
	SendTokenName         = "SendToken"
	SumInputsName         = "SumInputs"
	SubInputsName         = "SubInputs"
	TokenBalanceCheckName = "TokenBalanceCheck"
)

type tokenAddrAmount struct {
	Token  common.Address
	Addr   common.Address
	Amount *uint256.Int
}

func decodeTokenAddrAmount(name string, callData []byte) (tokenAddrAmount, error) {
	values, err := codec.Unpack(tokenAddrAmountArgs, callData)
	if err != nil {
		return tokenAddrAmount{}, action.InvalidCallData(name, err)
	}
	var in tokenAddrAmount
	if in.Token, err = values.Address(0); err != nil {
		return tokenAddrAmount{}, action.InvalidCallData(name, err)
	}
	if in.Addr, err = values.Address(1); err != nil {
		return tokenAddrAmount{}, action.InvalidCallData(name, err)
	}
	if in.Amount, err = values.Uint256(2); err != nil {
		return tokenAddrAmount{}, action.InvalidCallData(name, err)
	}
	return in, nil
}

func (in *tokenAddrAmount) resolve(p *action.Params) error {
	var err error
	if in.Token, err = p.Address(0, in.Token); err != nil {
		return err
	}
	if in.Addr, err = p.Address(1, in.Addr); err != nil {
		return err
	}
	in.Amount, err = p.Uint(2, in.Amount)
	return err
}

// EncodePullToken 编码 PullToken 的输入。
func EncodePullToken(tok, from common.Address, amount *uint256.Int) ([]byte, error) {
	return codec.Pack(tokenAddrAmountArgs, tok, from, amount)
}

// EncodeSendToken 编码 SendToken 的输入。
func EncodeSendToken(tok, to common.Address, amount *uint256.Int) ([]byte, error) {
	return codec.Pack(tokenAddrAmountArgs, tok, to, amount)
}

// PullToken 把代币从 from 拉入代理，from 需要事先授权代理。
// 数量为最大值时拉取 from 的全部余额。
type PullToken struct{}

// ExecuteAction 实现 action.Action。
func (PullToken) ExecuteAction(ctx context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	in, err := decodeTokenAddrAmount(PullTokenName, callData)
	if err != nil {
		return common.Hash{}, err
	}
	if err := in.resolve(action.NewParams(env, paramMapping, subData, returnValues)); err != nil {
		return common.Hash{}, err
	}
	pulled, err := pull(env, in)
	if err != nil {
		return common.Hash{}, err
	}
	payload, _ := EncodePullToken(in.Token, in.Addr, pulled)
	action.Log(env, PullTokenName, payload)
	return codec.UintWord(pulled), nil
}

// ExecuteActionDirect 实现 action.Action。
func (PullToken) ExecuteActionDirect(ctx context.Context, env action.Env, callData []byte) error {
	in, err := decodeTokenAddrAmount(PullTokenName, callData)
	if err != nil {
		return err
	}
	pulled, err := pull(env, in)
	if err != nil {
		return err
	}
	payload, _ := EncodePullToken(in.Token, in.Addr, pulled)
	action.LogDirect(env, PullTokenName, payload)
	return nil
}

// ActionType 实现 action.Action。
func (PullToken) ActionType() action.Type { return action.TypeStandard }

func pull(env action.Env, in tokenAddrAmount) (*uint256.Int, error) {
	tx := env.Frame.Tx
	amount := in.Amount
	if token.IsMax(amount) {
		balance, err := token.BalanceOf(tx, in.Token, in.Addr)
		if err != nil {
			return nil, err
		}
		amount = balance
	}
	if in.Addr == env.Frame.Proxy || amount.IsZero() {
		return amount, nil
	}
	if err := token.TransferFrom(tx, in.Token, env.Frame.Proxy, in.Addr, env.Frame.Proxy, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SendToken 把代理持有的代币发送到 to。数量为最大值时发送全部余额。
type SendToken struct{}

// ExecuteAction 实现 action.Action。
func (SendToken) ExecuteAction(ctx context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	in, err := decodeTokenAddrAmount(SendTokenName, callData)
	if err != nil {
		return common.Hash{}, err
	}
	if err := in.resolve(action.NewParams(env, paramMapping, subData, returnValues)); err != nil {
		return common.Hash{}, err
	}
	sent, err := send(env, in)
	if err != nil {
		return common.Hash{}, err
	}
	payload, _ := EncodeSendToken(in.Token, in.Addr, sent)
	action.Log(env, SendTokenName, payload)
	return codec.UintWord(sent), nil
}

// ExecuteActionDirect 实现 action.Action。
func (SendToken) ExecuteActionDirect(ctx context.Context, env action.Env, callData []byte) error {
	in, err := decodeTokenAddrAmount(SendTokenName, callData)
	if err != nil {
		return err
	}
	sent, err := send(env, in)
	if err != nil {
		return err
	}
	payload, _ := EncodeSendToken(in.Token, in.Addr, sent)
	action.LogDirect(env, SendTokenName, payload)
	return nil
}

// ActionType 实现 action.Action。
func (SendToken) ActionType() action.Type { return action.TypeStandard }

func send(env action.Env, in tokenAddrAmount) (*uint256.Int, error) {
	tx := env.Frame.Tx
	amount := in.Amount
	if token.IsMax(amount) {
		balance, err := token.BalanceOf(tx, in.Token, env.Frame.Proxy)
		if err != nil {
			return nil, err
		}
		amount = balance
	}
	if in.Addr == env.Frame.Proxy || amount.IsZero() {
		return amount, nil
	}
	if err := token.Transfer(tx, in.Token, env.Frame.Proxy, in.Addr, amount); err != nil {
		return nil, err
	}
	return amount, nil
}
