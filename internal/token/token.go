// Package token moves fungible balances held by the ledger. Amounts are EVM
// uint256 values; the maximum value acts as the "whole balance" sentinel for
// actions and as an infinite allowance.
package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
)

const (
	CodeInsufficientBalance   xerrors.Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance xerrors.Code = "INSUFFICIENT_ALLOWANCE"
	CodeBalanceOverflow       xerrors.Code = "BALANCE_OVERFLOW"
)

func init() {
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:  "insufficient balance",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeInsufficientAllowance, xerrors.Attributes{
		Message:  "insufficient allowance",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeBalanceOverflow, xerrors.Attributes{
		Message:  "balance overflow",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
}

// MaxUint256 返回 2^256-1。
func MaxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// IsMax 判断数值是否为最大值哨兵。
func IsMax(v *uint256.Int) bool {
	return v != nil && v.Eq(MaxUint256())
}

// BalanceOf 查询余额。
func BalanceOf(tx ledger.Tx, tok, owner common.Address) (*uint256.Int, error) {
	return tx.Balance(tok, owner)
}

// Mint 为地址增发余额，只用于初始化与测试资金。
func Mint(tx ledger.Tx, tok, to common.Address, amount *uint256.Int) error {
	bal, err := tx.Balance(tok, to)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return xerrors.New(CodeBalanceOverflow, "")
	}
	return tx.SetBalance(tok, to, sum)
}

// Transfer 从 from 向 to 转账。
func Transfer(tx ledger.Tx, tok, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal, err := tx.Balance(tok, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return xerrors.New(CodeInsufficientBalance,
			fmt.Sprintf("%s holds %s of %s, needs %s", from.Hex(), fromBal.Dec(), tok.Hex(), amount.Dec()))
	}
	toBal, err := tx.Balance(tok, to)
	if err != nil {
		return err
	}
	newTo, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return xerrors.New(CodeBalanceOverflow, "")
	}
	if err := tx.SetBalance(tok, from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return tx.SetBalance(tok, to, newTo)
}

// Approve 设置 spender 对 owner 资金的额度。
func Approve(tx ledger.Tx, tok, owner, spender common.Address, amount *uint256.Int) error {
	return tx.SetAllowance(tok, owner, spender, amount)
}

// TransferFrom 由 spender 动用 owner 授予的额度转账，最大额度不递减。
func TransferFrom(tx ledger.Tx, tok, spender, from, to common.Address, amount *uint256.Int) error {
	if spender != from {
		allowance, err := tx.Allowance(tok, from, spender)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return xerrors.New(CodeInsufficientAllowance,
				fmt.Sprintf("%s allowed %s to spend %s, needs %s", from.Hex(), spender.Hex(), allowance.Dec(), amount.Dec()))
		}
		if !IsMax(allowance) {
			if err := tx.SetAllowance(tok, from, spender, new(uint256.Int).Sub(allowance, amount)); err != nil {
				return err
			}
		}
	}
	return Transfer(tx, tok, from, to, amount)
}
