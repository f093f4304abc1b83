package strategy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

var (
	owner    = common.HexToAddress("0xa0")
	stranger = common.HexToAddress("0xb0")

	trigA = model.NameID("TimestampTrigger")
	trigB = model.NameID("BalanceTrigger")
	pull  = model.NameID("PullToken")
	send  = model.NameID("SendToken")
)

func setup() (*StrategyStorage, *BundleStorage, ledger.Store) {
	strategies := NewStrategyStorage(owner)
	return strategies, NewBundleStorage(owner, strategies), ledger.NewMemoryStore()
}

func TestCreateStrategyPermissions(t *testing.T) {
	strategies, _, store := setup()
	ctx := context.Background()

	err := store.Update(ctx, func(tx ledger.Tx) error {
		_, err := strategies.CreateStrategy(tx, stranger, "dca", []model.ID{trigA}, []model.ID{pull}, [][]uint8{{0}}, true)
		return err
	})
	require.Equal(t, CodeNoAuthToCreateStrategy, xerrors.CodeOf(err))

	err = store.Update(ctx, func(tx ledger.Tx) error {
		return strategies.ChangeEditPermission(tx, stranger, true)
	})
	require.Equal(t, CodeSenderNotOwner, xerrors.CodeOf(err))

	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		if err := strategies.ChangeEditPermission(tx, owner, true); err != nil {
			return err
		}
		id, err := strategies.CreateStrategy(tx, stranger, "dca", []model.ID{trigA}, []model.ID{pull}, [][]uint8{{0}}, true)
		require.Equal(t, uint64(0), id)
		return err
	}))
}

func TestCreateStrategyRejectsMismatchedMapping(t *testing.T) {
	strategies, _, store := setup()
	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := strategies.CreateStrategy(tx, owner, "bad", nil, []model.ID{pull, send}, [][]uint8{{0}}, false)
		return err
	})
	require.Equal(t, CodeInvalidStrategy, xerrors.CodeOf(err))
}

func TestBundleRequiresIdenticalTriggers(t *testing.T) {
	strategies, bundles, store := setup()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		for _, triggers := range [][]model.ID{{trigA, trigB}, {trigA, trigB}, {trigB, trigA}, {trigA}} {
			if _, err := strategies.CreateStrategy(tx, owner, "s", triggers, []model.ID{pull}, [][]uint8{nil}, true); err != nil {
				return err
			}
		}
		return nil
	}))

	cases := []struct {
		name string
		ids  []uint64
		code xerrors.Code
	}{
		{"same order", []uint64{0, 1}, ""},
		{"different order", []uint64{0, 2}, CodeDiffTriggersInBundle},
		{"different length", []uint64{0, 3}, CodeDiffTriggersInBundle},
		{"missing strategy", []uint64{0, 9}, CodeStrategyNotFound},
		{"empty", nil, CodeEmptyBundle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Update(ctx, func(tx ledger.Tx) error {
				_, err := bundles.CreateBundle(tx, owner, tc.ids)
				return err
			})
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			require.Equal(t, tc.code, xerrors.CodeOf(err))
		})
	}

	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		id, err := bundles.GetStrategyID(tx, 0, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(1), id)
		_, err = bundles.GetStrategyID(tx, 0, 2)
		require.Equal(t, CodeBundleIndexOutOfRange, xerrors.CodeOf(err))
		_, err = bundles.GetBundle(tx, 4)
		require.Equal(t, CodeBundleNotFound, xerrors.CodeOf(err))
		count, err := bundles.Count(tx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)
		return nil
	}))
}

func TestPaginated(t *testing.T) {
	strategies, _, store := setup()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		for i := 0; i < 5; i++ {
			if _, err := strategies.CreateStrategy(tx, owner, string(rune('a'+i)), nil, []model.ID{pull}, [][]uint8{nil}, true); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		page, err := strategies.Paginated(tx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, "c", page[0].Name)
		last, err := strategies.Paginated(tx, 2, 2)
		require.NoError(t, err)
		require.Len(t, last, 1)
		beyond, err := strategies.Paginated(tx, 9, 2)
		require.NoError(t, err)
		require.Empty(t, beyond)
		return nil
	}))
}
