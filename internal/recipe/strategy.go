package recipe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/trigger"
	"Recipe-Chain/internal/wallet"
)

// StrategyRequest 是 bot 执行一次订阅时提供的完整数据。
type StrategyRequest struct {
	SubID uint64
	// StrategyIndex 指定 bundle 中使用的备选策略，非 bundle 订阅忽略。
	StrategyIndex   int
	TriggerCallData []hexutil.Bytes
	ActionsCallData []hexutil.Bytes
	Sub             model.StrategySub
}

// ExecuteRecipeFromStrategy 校验触发器后把策略组装成配方执行。
// 调用方必须已经验证订阅哈希与启用状态。
func (e *Executor) ExecuteRecipeFromStrategy(ctx context.Context, frame wallet.Frame, req StrategyRequest) error {
	tx := frame.Tx
	strategyID := req.Sub.StrategyOrBundleID
	if req.Sub.IsBundle {
		var err error
		if strategyID, err = e.bundles.GetStrategyID(tx, req.Sub.StrategyOrBundleID, req.StrategyIndex); err != nil {
			return err
		}
	}
	strat, err := e.strategies.GetStrategy(tx, strategyID)
	if err != nil {
		return err
	}

	sub := req.Sub.Clone()
	changed, err := e.checkTriggers(ctx, frame, strat, req.TriggerCallData, sub)
	if err != nil {
		return err
	}
	if changed {
		if err := e.subs.UpdateSubData(tx, frame.Proxy, req.SubID, sub); err != nil {
			return err
		}
	}
	if !strat.Continuous {
		if err := e.subs.DeactivateSub(tx, frame.Proxy, req.SubID); err != nil {
			return err
		}
	}

	e.log.Debug("triggers_satisfied",
		slog.Uint64("sub_id", req.SubID),
		slog.Uint64("strategy_id", strategyID),
		slog.String("tx_id", tx.ID()),
	)
	return e.ExecuteRecipe(ctx, frame, model.Recipe{
		Name:         strat.Name,
		CallData:     req.ActionsCallData,
		SubData:      req.Sub.SubData,
		ActionIDs:    strat.ActionIDs,
		ParamMapping: strat.ParamMapping,
	})
}

// checkTriggers 按声明顺序逐个判断，全部满足才返回。可变触发器的新参数写回 sub。
func (e *Executor) checkTriggers(ctx context.Context, frame wallet.Frame, strat model.Strategy, callData []hexutil.Bytes, sub model.StrategySub) (bool, error) {
	if len(sub.TriggerData) < len(strat.TriggerIDs) {
		return false, xerrors.New(CodeRecipeMalformed,
			fmt.Sprintf("%d triggers, %d trigger sub data", len(strat.TriggerIDs), len(sub.TriggerData)))
	}
	changed := false
	for i, id := range strat.TriggerIDs {
		impl, addr, err := registry.Resolve[trigger.Trigger](frame.Tx, e.catalog, id)
		if err != nil {
			e.observeTrigger(id.String(), false, err)
			return false, notActive(i, id, err)
		}
		name := id.String()
		if binding, ok := e.catalog.Lookup(addr); ok {
			name = binding.Name
		}
		ok, err := impl.IsTriggered(ctx, frame.Tx, rawCallData(callData, i), sub.TriggerData[i])
		e.observeTrigger(name, ok, err)
		if err != nil {
			return false, fmt.Errorf("trigger %d (%s): %w", i, name, err)
		}
		if !ok {
			return false, notActive(i, id, nil)
		}
		next, isChangeable, err := trigger.ChangedSubData(impl, sub.TriggerData[i])
		if err != nil {
			return false, fmt.Errorf("trigger %d (%s): %w", i, name, err)
		}
		if isChangeable {
			sub.TriggerData[i] = next
			changed = true
		}
	}
	return changed, nil
}

func notActive(index int, id model.ID, cause error) error {
	msg := fmt.Sprintf("trigger %d (%s) not active", index, id)
	opt := xerrors.WithMetadata("index", fmt.Sprint(index))
	if cause != nil {
		return xerrors.Wrap(CodeTriggerNotActive, cause, msg, opt)
	}
	return xerrors.New(CodeTriggerNotActive, msg, opt)
}

func (e *Executor) observeTrigger(name string, triggered bool, err error) {
	if e.observer != nil {
		e.observer.ObserveTrigger(name, triggered, err)
	}
}
