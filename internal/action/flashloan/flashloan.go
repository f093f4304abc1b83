// Package flashloan implements a flash-loan lender action. It lends from its
// own pool, calls the recipe executor back to run the rest of the recipe and
// verifies the pool was repaid with the fee before returning.
package flashloan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/token"
	"Recipe-Chain/pkg/logger"
)

// Name 是闪电贷动作的名称。
const Name = "FLAction"

const (
	CodeNotRepaid             xerrors.Code = "FL_NOT_REPAID"
	CodeInsufficientLiquidity xerrors.Code = "FL_INSUFFICIENT_LIQUIDITY"
	CodeCallbackMissing       xerrors.Code = "FL_CALLBACK_MISSING"
)

func init() {
	xerrors.Register(CodeNotRepaid, xerrors.Attributes{
		Message:  "flash loan not repaid with fee",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeInsufficientLiquidity, xerrors.Attributes{
		Message:  "flash loan pool cannot cover amount",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeCallbackMissing, xerrors.Attributes{
		Message:  "flash loan started outside a recipe",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
}

var loanArgs = codec.MustArguments("address", "uint256")

// Encode 编码闪电贷输入。
func Encode(tok common.Address, amount *uint256.Int) ([]byte, error) {
	return codec.Pack(loanArgs, tok, amount)
}

// Lender 以 pool 地址持有的余额放贷，费用按基点计算。
type Lender struct {
	pool   common.Address
	feeBps uint64
}

// NewLender 创建闪电贷动作。
func NewLender(pool common.Address, feeBps uint64) *Lender {
	return &Lender{pool: pool, feeBps: feeBps}
}

// Pool 返回资金池地址，配方需要把本金与费用还到这里。
func (l *Lender) Pool() common.Address {
	return l.pool
}

// Fee 计算 amount 对应的费用。
func (l *Lender) Fee(amount *uint256.Int) *uint256.Int {
	fee := new(uint256.Int).Mul(amount, uint256.NewInt(l.feeBps))
	return fee.Div(fee, uint256.NewInt(10_000))
}

// ExecuteAction 借出资产并回调配方执行器，回调返回后校验资金池已收回本金与费用。
func (l *Lender) ExecuteAction(ctx context.Context, env action.Env, callData []byte, subData []common.Hash, paramMapping []uint8, returnValues []common.Hash) (common.Hash, error) {
	values, err := codec.Unpack(loanArgs, callData)
	if err != nil {
		return common.Hash{}, action.InvalidCallData(Name, err)
	}
	tok, err := values.Address(0)
	if err != nil {
		return common.Hash{}, action.InvalidCallData(Name, err)
	}
	amount, err := values.Uint256(1)
	if err != nil {
		return common.Hash{}, action.InvalidCallData(Name, err)
	}
	p := action.NewParams(env, paramMapping, subData, returnValues)
	if tok, err = p.Address(0, tok); err != nil {
		return common.Hash{}, err
	}
	if amount, err = p.Uint(1, amount); err != nil {
		return common.Hash{}, err
	}
	if env.Callback == nil || env.CorrelationID == "" {
		return common.Hash{}, xerrors.New(CodeCallbackMissing, "")
	}

	tx := env.Frame.Tx
	before, err := token.BalanceOf(tx, tok, l.pool)
	if err != nil {
		return common.Hash{}, err
	}
	if before.Lt(amount) {
		return common.Hash{}, xerrors.New(CodeInsufficientLiquidity,
			fmt.Sprintf("pool holds %s, wants %s", before.Dec(), amount.Dec()))
	}
	fee := l.Fee(amount)
	repay, overflow := new(uint256.Int).AddOverflow(amount, fee)
	if overflow {
		return common.Hash{}, xerrors.New(CodeInsufficientLiquidity, "repay amount overflows")
	}
	if err := token.Transfer(tx, tok, l.pool, env.Frame.Proxy, amount); err != nil {
		return common.Hash{}, err
	}
	logger.Named("flashloan").Debug("闪电贷借出",
		slog.String("token", tok.Hex()),
		slog.String("amount", amount.Dec()),
		slog.String("fee", fee.Dec()),
		slog.String("correlation_id", env.CorrelationID),
	)
	if err := env.Callback.ExecuteActionsFromFL(ctx, env.CorrelationID, repay); err != nil {
		return common.Hash{}, err
	}

	after, err := token.BalanceOf(tx, tok, l.pool)
	if err != nil {
		return common.Hash{}, err
	}
	want, _ := new(uint256.Int).AddOverflow(before, fee)
	if after.Lt(want) {
		return common.Hash{}, xerrors.New(CodeNotRepaid,
			fmt.Sprintf("pool holds %s after callback, wants %s", after.Dec(), want.Dec()))
	}
	payload, _ := codec.Pack(loanArgs, tok, repay)
	action.Log(env, Name, payload)
	return codec.UintWord(repay), nil
}

// ExecuteActionDirect 闪电贷必须位于配方首位，不能直接调用。
func (l *Lender) ExecuteActionDirect(context.Context, action.Env, []byte) error {
	return xerrors.New(action.CodeDirectNotSupported, Name+" only runs inside a recipe")
}

// ActionType 实现 action.Action。
func (l *Lender) ActionType() action.Type { return action.TypeFlashLoan }
