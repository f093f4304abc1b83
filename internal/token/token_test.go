package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
)

var (
	dai   = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestTransferFromRespectsAllowance(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	err := store.Update(ctx, func(tx ledger.Tx) error {
		require.NoError(t, Mint(tx, dai, alice, uint256.NewInt(100)))
		require.NoError(t, Approve(tx, dai, alice, bob, uint256.NewInt(30)))

		err := TransferFrom(tx, dai, bob, alice, bob, uint256.NewInt(31))
		require.Equal(t, CodeInsufficientAllowance, xerrors.CodeOf(err))

		require.NoError(t, TransferFrom(tx, dai, bob, alice, bob, uint256.NewInt(30)))
		left, _ := tx.Allowance(dai, alice, bob)
		require.True(t, left.IsZero())

		bal, _ := BalanceOf(tx, dai, bob)
		require.Equal(t, uint64(30), bal.Uint64())
		return nil
	})
	require.NoError(t, err)
}

func TestMaxAllowanceIsNotConsumed(t *testing.T) {
	store := ledger.NewMemoryStore()
	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		require.NoError(t, Mint(tx, dai, alice, uint256.NewInt(10)))
		require.NoError(t, Approve(tx, dai, alice, bob, MaxUint256()))
		require.NoError(t, TransferFrom(tx, dai, bob, alice, bob, uint256.NewInt(10)))
		left, _ := tx.Allowance(dai, alice, bob)
		require.True(t, IsMax(left))
		return nil
	})
	require.NoError(t, err)
}

func TestTransferRejectsOverdraftAndOverflow(t *testing.T) {
	store := ledger.NewMemoryStore()
	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		require.NoError(t, Mint(tx, dai, alice, uint256.NewInt(1)))
		err := Transfer(tx, dai, alice, bob, uint256.NewInt(2))
		require.Equal(t, CodeInsufficientBalance, xerrors.CodeOf(err))
		require.Equal(t, xerrors.CategoryAction, xerrors.CategoryOf(err))

		require.NoError(t, Mint(tx, dai, bob, MaxUint256()))
		err = Transfer(tx, dai, alice, bob, uint256.NewInt(1))
		require.Equal(t, CodeBalanceOverflow, xerrors.CodeOf(err))
		return nil
	})
	require.NoError(t, err)
}
