package basic

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/token"
)

const CodeBalanceCheckFailed xerrors.Code = "BALANCE_CHECK_FAILED"

func init() {
	xerrors.Register(CodeBalanceCheckFailed, xerrors.Attributes{
		Message:  "balance below required minimum",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAction,
	})
}

// EncodeTokenBalanceCheck 编码余额检查的输入。
func EncodeTokenBalanceCheck(tok, owner common.Address, minimum *uint256.Int) ([]byte, error) {
	return codec.Pack(tokenAddrAmountArgs, tok, owner, minimum)
}

// TokenBalanceCheck 在 owner 余额低于下限时中止配方，通常放在配方末尾做结果校验。
type TokenBalanceCheck struct{}

// ExecuteAction 实现 action.Action。
func (TokenBalanceCheck) ExecuteAction(_ context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	in, err := decodeTokenAddrAmount(TokenBalanceCheckName, callData)
	if err != nil {
		return common.Hash{}, err
	}
	if err := in.resolve(action.NewParams(env, paramMapping, subData, returnValues)); err != nil {
		return common.Hash{}, err
	}
	balance, err := checkBalance(env, in)
	if err != nil {
		return common.Hash{}, err
	}
	payload, _ := EncodeTokenBalanceCheck(in.Token, in.Addr, balance)
	action.Log(env, TokenBalanceCheckName, payload)
	return codec.UintWord(balance), nil
}

// ExecuteActionDirect 实现 action.Action。
func (TokenBalanceCheck) ExecuteActionDirect(_ context.Context, env action.Env, callData []byte) error {
	in, err := decodeTokenAddrAmount(TokenBalanceCheckName, callData)
	if err != nil {
		return err
	}
	balance, err := checkBalance(env, in)
	if err != nil {
		return err
	}
	payload, _ := EncodeTokenBalanceCheck(in.Token, in.Addr, balance)
	action.LogDirect(env, TokenBalanceCheckName, payload)
	return nil
}

// ActionType 实现 action.Action。
func (TokenBalanceCheck) ActionType() action.Type { return action.TypeCheck }

func checkBalance(env action.Env, in tokenAddrAmount) (*uint256.Int, error) {
	balance, err := token.BalanceOf(env.Frame.Tx, in.Token, in.Addr)
	if err != nil {
		return nil, err
	}
	if balance.Lt(in.Amount) {
		return nil, xerrors.New(CodeBalanceCheckFailed,
			fmt.Sprintf("%s holds %s of %s, want at least %s", in.Addr.Hex(), balance.Dec(), in.Token.Hex(), in.Amount.Dec()))
	}
	return balance, nil
}
