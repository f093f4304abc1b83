package recipe

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/action/basic"
	"Recipe-Chain/internal/action/flashloan"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/strategy"
	"Recipe-Chain/internal/subscription"
	"Recipe-Chain/internal/token"
	"Recipe-Chain/internal/trigger"
	"Recipe-Chain/internal/trigger/builtin"
	"Recipe-Chain/internal/wallet"
)

var (
	owner = common.HexToAddress("0xa0")
	eoa   = common.HexToAddress("0xe0")
	dai   = common.HexToAddress("0xda")
	sink  = common.HexToAddress("0x51")
	pool  = common.HexToAddress("0xf1")
	now   = time.Unix(1_700_000_000, 0)
)

type harness struct {
	store      ledger.Store
	exec       *Executor
	strategies *strategy.StrategyStorage
	bundles    *strategy.BundleStorage
	subs       *subscription.Storage
	proxy      common.Address
	lender     *flashloan.Lender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: ledger.NewMemoryStore(ledger.WithClock(func() time.Time { return now }))}
	catalog := registry.NewCatalog()
	reg := registry.New(owner)
	h.lender = flashloan.NewLender(pool, 10)
	impls := map[string]any{
		basic.PullTokenName:          basic.PullToken{},
		basic.SendTokenName:          basic.SendToken{},
		basic.SumInputsName:          basic.SumInputs{},
		basic.TokenBalanceCheckName:  basic.TokenBalanceCheck{},
		flashloan.Name:               h.lender,
		builtin.TimestampTriggerName: builtin.TimestampTrigger{},
		builtin.BalanceTriggerName:   builtin.BalanceTrigger{},
	}
	h.strategies = strategy.NewStrategyStorage(owner)
	h.bundles = strategy.NewBundleStorage(owner, h.strategies)
	h.subs = subscription.NewStorage(h.strategies, h.bundles)
	h.exec = NewExecutor(catalog, h.strategies, h.bundles, h.subs)
	factory := wallet.NewFactory(common.HexToAddress("0xfac"))

	require.NoError(t, h.store.Update(context.Background(), func(tx ledger.Tx) error {
		for name, impl := range impls {
			addr := registry.ImplAddress(name)
			require.NoError(t, catalog.Register(addr, name, impl))
			require.NoError(t, reg.AddNewContract(tx, owner, model.NameID(name), addr, 0))
		}
		proxy, err := factory.Build(tx, eoa)
		require.NoError(t, err)
		h.proxy = proxy.Address
		require.NoError(t, token.Mint(tx, dai, eoa, uint256.NewInt(1_000)))
		require.NoError(t, token.Mint(tx, dai, pool, uint256.NewInt(1_000_000)))
		return token.Approve(tx, dai, eoa, h.proxy, token.MaxUint256())
	}))
	return h
}

func (h *harness) run(fn func(frame wallet.Frame) error) error {
	return h.store.Update(context.Background(), func(tx ledger.Tx) error {
		return fn(wallet.Frame{Tx: tx, Proxy: h.proxy, Owner: eoa})
	})
}

func (h *harness) balance(t *testing.T, who common.Address) uint64 {
	t.Helper()
	var out uint64
	require.NoError(t, h.store.View(context.Background(), func(tx ledger.Tx) error {
		bal, err := token.BalanceOf(tx, dai, who)
		out = bal.Uint64()
		return err
	}))
	return out
}

func ids(names ...string) []model.ID {
	out := make([]model.ID, len(names))
	for i, name := range names {
		out[i] = model.NameID(name)
	}
	return out
}

func mustBytes(t *testing.T) func([]byte, error) hexutil.Bytes {
	return func(data []byte, err error) hexutil.Bytes {
		t.Helper()
		require.NoError(t, err)
		return data
	}
}

func TestPipedRecipe(t *testing.T) {
	h := newHarness(t)
	recipe := model.Recipe{
		Name:      "pull-double-send",
		ActionIDs: ids(basic.PullTokenName, basic.SumInputsName, basic.PullTokenName, basic.SendTokenName),
		CallData: []hexutil.Bytes{
			mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(100))),
			mustBytes(t)(basic.EncodeInputs(uint256.NewInt(0), uint256.NewInt(0))),
			mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(0))),
			mustBytes(t)(basic.EncodeSendToken(dai, sink, uint256.NewInt(0))),
		},
		ParamMapping: [][]uint8{
			nil,
			{1, 1},
			{0, 0, 2},
			{0, 0, 3},
		},
	}
	require.NoError(t, h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, recipe)
	}))
	// 100 + 200 被拉入，随后发送第三个动作拉取的 200。
	require.Equal(t, uint64(700), h.balance(t, eoa))
	require.Equal(t, uint64(200), h.balance(t, sink))
	require.Equal(t, uint64(100), h.balance(t, h.proxy))
}

func TestFailingActionRevertsEarlierSteps(t *testing.T) {
	h := newHarness(t)
	recipe := model.Recipe{
		ActionIDs: ids(basic.PullTokenName, basic.TokenBalanceCheckName),
		CallData: []hexutil.Bytes{
			mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(400))),
			mustBytes(t)(basic.EncodeTokenBalanceCheck(dai, sink, uint256.NewInt(1))),
		},
	}
	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, recipe)
	})
	require.Equal(t, basic.CodeBalanceCheckFailed, xerrors.CodeOf(err))
	require.Equal(t, uint64(1_000), h.balance(t, eoa))
	require.Zero(t, h.balance(t, h.proxy))
}

func TestMalformedAndUnregistered(t *testing.T) {
	h := newHarness(t)
	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, model.Recipe{ActionIDs: ids(basic.PullTokenName)})
	})
	require.Equal(t, CodeRecipeMalformed, xerrors.CodeOf(err))

	err = h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, model.Recipe{
			ActionIDs: ids("NeverDeployed"),
			CallData:  []hexutil.Bytes{nil},
		})
	})
	require.Equal(t, registry.CodeContractNotRegistered, xerrors.CodeOf(err))
}

func flRecipe(t *testing.T, h *harness, repay bool) model.Recipe {
	send := mustBytes(t)(basic.EncodeSendToken(dai, pool, uint256.NewInt(0)))
	mapping := []uint8{0, 0, 1}
	if !repay {
		send = mustBytes(t)(basic.EncodeSendToken(dai, pool, uint256.NewInt(1)))
		mapping = nil
	}
	return model.Recipe{
		Name:      "fl",
		ActionIDs: ids(flashloan.Name, basic.PullTokenName, basic.SendTokenName),
		CallData: []hexutil.Bytes{
			mustBytes(t)(flashloan.Encode(dai, uint256.NewInt(10_000))),
			mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(10))),
			send,
		},
		ParamMapping: [][]uint8{nil, nil, mapping},
	}
}

func TestFlashLoanRecipe(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, flRecipe(t, h, true))
	}))
	// 费用 10 bps，由从 EOA 拉入的 10 支付。
	require.Equal(t, uint64(1_000_010), h.balance(t, pool))
	require.Equal(t, uint64(990), h.balance(t, eoa))
	require.Zero(t, h.balance(t, h.proxy))
	require.Empty(t, h.exec.pending)
}

func TestFlashLoanNotRepaidUnwindsEverything(t *testing.T) {
	h := newHarness(t)
	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, flRecipe(t, h, false))
	})
	require.Equal(t, flashloan.CodeNotRepaid, xerrors.CodeOf(err))
	require.Equal(t, uint64(1_000_000), h.balance(t, pool))
	require.Equal(t, uint64(1_000), h.balance(t, eoa))
	require.Empty(t, h.exec.pending)
}

func TestFlashLoanMustBeFirst(t *testing.T) {
	h := newHarness(t)
	recipe := model.Recipe{
		ActionIDs: ids(basic.SumInputsName, flashloan.Name),
		CallData: []hexutil.Bytes{
			mustBytes(t)(basic.EncodeInputs(uint256.NewInt(1), uint256.NewInt(1))),
			mustBytes(t)(flashloan.Encode(dai, uint256.NewInt(1))),
		},
	}
	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipe(context.Background(), frame, recipe)
	})
	require.Equal(t, CodeFLActionNotFirst, xerrors.CodeOf(err))
}

func TestUnknownContinuation(t *testing.T) {
	h := newHarness(t)
	err := h.exec.ExecuteActionsFromFL(context.Background(), "missing", uint256.NewInt(1))
	require.Equal(t, CodeContinuationNotFound, xerrors.CodeOf(err))
}

func TestDirectAction(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteActionDirect(context.Background(), frame, model.NameID(basic.PullTokenName),
			mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(5))))
	}))
	require.Equal(t, uint64(5), h.balance(t, h.proxy))

	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteActionDirect(context.Background(), frame, model.NameID(flashloan.Name), nil)
	})
	require.Equal(t, action.CodeDirectNotSupported, xerrors.CodeOf(err))
}

func TestStrategyTriggersAndChangeableData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := mustBytes(t)(builtin.EncodeTimestamp(uint64(now.Unix()), 60))
	sub := model.StrategySub{
		TriggerData: []hexutil.Bytes{due},
		SubData:     []common.Hash{codec.UintWord(uint256.NewInt(25))},
	}
	var subID uint64
	require.NoError(t, h.store.Update(ctx, func(tx ledger.Tx) error {
		if _, err := h.strategies.CreateStrategy(tx, owner, "dca", ids(builtin.TimestampTriggerName),
			ids(basic.PullTokenName), [][]uint8{{0, 0, 128}}, true); err != nil {
			return err
		}
		var err error
		subID, err = h.subs.SubscribeToStrategy(tx, h.proxy, sub)
		return err
	}))
	req := StrategyRequest{
		SubID:           subID,
		TriggerCallData: []hexutil.Bytes{nil},
		ActionsCallData: []hexutil.Bytes{mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(0)))},
		Sub:             sub,
	}
	require.NoError(t, h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipeFromStrategy(ctx, frame, req)
	}))
	require.Equal(t, uint64(25), h.balance(t, h.proxy))

	advanced := sub.Clone()
	advanced.TriggerData[0] = mustBytes(t)(builtin.EncodeTimestamp(uint64(now.Unix())+60, 60))
	want, err := codec.HashSub(advanced)
	require.NoError(t, err)
	require.NoError(t, h.store.View(ctx, func(tx ledger.Tx) error {
		stored, err := h.subs.GetSub(tx, subID)
		require.NoError(t, err)
		require.Equal(t, want, stored.StrategySubHash)
		require.True(t, stored.IsEnabled)
		return nil
	}))

	// 时间尚未推进，新的参数不会触发。
	req.Sub = advanced
	err = h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipeFromStrategy(ctx, frame, req)
	})
	require.Equal(t, CodeTriggerNotActive, xerrors.CodeOf(err))
	require.Equal(t, uint64(25), h.balance(t, h.proxy))
}

func TestMalformedTriggerDataIsCoded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := model.StrategySub{TriggerData: []hexutil.Bytes{{0xde, 0xad}}}
	var subID uint64
	require.NoError(t, h.store.Update(ctx, func(tx ledger.Tx) error {
		if _, err := h.strategies.CreateStrategy(tx, owner, "broken", ids(builtin.TimestampTriggerName),
			ids(basic.PullTokenName), [][]uint8{nil}, true); err != nil {
			return err
		}
		var err error
		subID, err = h.subs.SubscribeToStrategy(tx, h.proxy, sub)
		return err
	}))
	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipeFromStrategy(ctx, frame, StrategyRequest{
			SubID:           subID,
			TriggerCallData: []hexutil.Bytes{nil},
			ActionsCallData: []hexutil.Bytes{mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(1)))},
			Sub:             sub,
		})
	})
	require.Equal(t, trigger.CodeSubDataInvalid, xerrors.CodeOf(err))
	require.Equal(t, xerrors.DispositionAlert, xerrors.DispositionOf(err))
}

func TestOneShotStrategyDeactivatesAndUnknownTrigger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := model.StrategySub{}
	require.NoError(t, h.store.Update(ctx, func(tx ledger.Tx) error {
		if _, err := h.strategies.CreateStrategy(tx, owner, "once", nil, ids(basic.PullTokenName), [][]uint8{nil}, false); err != nil {
			return err
		}
		if _, err := h.strategies.CreateStrategy(tx, owner, "ghost", ids("GhostTrigger"), ids(basic.PullTokenName), [][]uint8{nil}, true); err != nil {
			return err
		}
		if _, err := h.subs.SubscribeToStrategy(tx, h.proxy, sub); err != nil {
			return err
		}
		_, err := h.subs.SubscribeToStrategy(tx, h.proxy, model.StrategySub{StrategyOrBundleID: 1, TriggerData: []hexutil.Bytes{nil}})
		return err
	}))
	pullOne := []hexutil.Bytes{mustBytes(t)(basic.EncodePullToken(dai, eoa, uint256.NewInt(1)))}
	require.NoError(t, h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipeFromStrategy(ctx, frame, StrategyRequest{SubID: 0, ActionsCallData: pullOne, Sub: sub})
	}))
	require.NoError(t, h.store.View(ctx, func(tx ledger.Tx) error {
		stored, err := h.subs.GetSub(tx, 0)
		require.NoError(t, err)
		require.False(t, stored.IsEnabled)
		return nil
	}))

	err := h.run(func(frame wallet.Frame) error {
		return h.exec.ExecuteRecipeFromStrategy(ctx, frame, StrategyRequest{
			SubID:           1,
			ActionsCallData: pullOne,
			Sub:             model.StrategySub{StrategyOrBundleID: 1, TriggerData: []hexutil.Bytes{nil}},
		})
	})
	require.Equal(t, CodeTriggerNotActive, xerrors.CodeOf(err))
}
