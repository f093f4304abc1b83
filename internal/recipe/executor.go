package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/action"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/strategy"
	"Recipe-Chain/internal/subscription"
	"Recipe-Chain/internal/wallet"
	"Recipe-Chain/pkg/logger"
)

// Observer 接收动作与触发器的执行结果，用于指标统计。
type Observer interface {
	ObserveAction(name string, typ action.Type, err error)
	ObserveTrigger(name string, triggered bool, err error)
}

// Option 定义 Executor 的可选配置。
type Option func(*Executor)

// WithObserver 设置执行观察者。
func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// Executor 是配方执行器。
type Executor struct {
	catalog    *registry.Catalog
	strategies *strategy.StrategyStorage
	bundles    *strategy.BundleStorage
	subs       *subscription.Storage
	observer   Observer
	log        *slog.Logger

	mu      sync.Mutex
	pending map[string]*continuation
}

// continuation 保存闪电贷回调时需要继续执行的配方状态。
type continuation struct {
	frame        wallet.Frame
	recipe       model.Recipe
	returnValues []common.Hash
	resumed      bool
}

// NewExecutor 创建配方执行器。
func NewExecutor(catalog *registry.Catalog, strategies *strategy.StrategyStorage, bundles *strategy.BundleStorage, subs *subscription.Storage, opts ...Option) *Executor {
	e := &Executor{
		catalog:    catalog,
		strategies: strategies,
		bundles:    bundles,
		subs:       subs,
		log:        logger.Named("recipe"),
		pending:    make(map[string]*continuation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ExecuteRecipe 在代理上下文中按顺序执行配方。
func (e *Executor) ExecuteRecipe(ctx context.Context, frame wallet.Frame, recipe model.Recipe) error {
	if err := validate(recipe); err != nil {
		return err
	}
	first, err := e.resolveAction(frame, recipe.ActionIDs[0])
	if err != nil {
		return err
	}
	returnValues := make([]common.Hash, len(recipe.ActionIDs))
	if first.impl.ActionType() == action.TypeFlashLoan {
		err = e.executeWithFL(ctx, frame, recipe, first, returnValues)
	} else {
		err = e.runActions(ctx, frame, recipe, 0, returnValues)
	}
	if err != nil {
		return err
	}
	frame.Tx.Emit(model.Event{Contract: "RecipeExecutor", Name: "RecipeEvent", Fields: map[string]any{
		"proxy": frame.Proxy.Hex(),
		"name":  recipe.Name,
	}})
	return nil
}

// ExecuteActionsFromFL 由闪电贷出借方回调，继续执行首个动作之后的部分。
// 每个续体只能恢复一次，returnValues[0] 为需要偿还的金额。
func (e *Executor) ExecuteActionsFromFL(ctx context.Context, correlationID string, repayAmount *uint256.Int) error {
	cont := e.take(correlationID)
	if cont == nil {
		return xerrors.New(CodeContinuationNotFound, fmt.Sprintf("continuation %q not pending", correlationID))
	}
	cont.resumed = true
	cont.returnValues[0] = codec.UintWord(repayAmount)
	return e.runActions(ctx, cont.frame, cont.recipe, 1, cont.returnValues)
}

// ExecuteActionDirect 以直接调用模式执行单个动作。
func (e *Executor) ExecuteActionDirect(ctx context.Context, frame wallet.Frame, id model.ID, callData []byte) error {
	resolved, err := e.resolveAction(frame, id)
	if err != nil {
		return err
	}
	err = resolved.impl.ExecuteActionDirect(ctx, action.Env{Frame: frame}, callData)
	e.observeAction(resolved, err)
	if err != nil {
		return fmt.Errorf("direct %s: %w", resolved.name, err)
	}
	return nil
}

func (e *Executor) executeWithFL(ctx context.Context, frame wallet.Frame, recipe model.Recipe, fl resolvedAction, returnValues []common.Hash) error {
	id := uuid.NewString()
	cont := &continuation{frame: frame, recipe: recipe, returnValues: returnValues}
	e.mu.Lock()
	e.pending[id] = cont
	e.mu.Unlock()
	defer e.take(id)

	e.log.Debug("闪电贷配方开始",
		slog.String("recipe", recipe.Name),
		slog.String("correlation_id", id),
		slog.String("tx_id", frame.Tx.ID()),
	)
	env := action.Env{Frame: frame, CorrelationID: id, Callback: e}
	_, err := fl.impl.ExecuteAction(ctx, env, recipe.CallData[0], recipe.SubData, mappingAt(recipe, 0), returnValues)
	e.observeAction(fl, err)
	if err != nil {
		return fmt.Errorf("action 0 (%s): %w", fl.name, err)
	}
	if !cont.resumed {
		return xerrors.New(CodeContinuationNotResumed, fmt.Sprintf("%s did not call back", fl.name))
	}
	return nil
}

func (e *Executor) runActions(ctx context.Context, frame wallet.Frame, recipe model.Recipe, start int, returnValues []common.Hash) error {
	env := action.Env{Frame: frame}
	for i := start; i < len(recipe.ActionIDs); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resolved, err := e.resolveAction(frame, recipe.ActionIDs[i])
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if resolved.impl.ActionType() == action.TypeFlashLoan {
			return xerrors.New(CodeFLActionNotFirst,
				fmt.Sprintf("%s at index %d", resolved.name, i),
				xerrors.WithMetadata("index", fmt.Sprint(i)))
		}
		ret, err := resolved.impl.ExecuteAction(ctx, env, recipe.CallData[i], recipe.SubData, mappingAt(recipe, i), returnValues)
		e.observeAction(resolved, err)
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i, resolved.name, err)
		}
		returnValues[i] = ret
	}
	return nil
}

type resolvedAction struct {
	impl action.Action
	name string
}

func (e *Executor) resolveAction(frame wallet.Frame, id model.ID) (resolvedAction, error) {
	impl, addr, err := registry.Resolve[action.Action](frame.Tx, e.catalog, id)
	if err != nil {
		return resolvedAction{}, err
	}
	name := id.String()
	if binding, ok := e.catalog.Lookup(addr); ok {
		name = binding.Name
	}
	return resolvedAction{impl: impl, name: name}, nil
}

func (e *Executor) take(id string) *continuation {
	e.mu.Lock()
	defer e.mu.Unlock()
	cont, ok := e.pending[id]
	if !ok {
		return nil
	}
	delete(e.pending, id)
	return cont
}

func (e *Executor) observeAction(resolved resolvedAction, err error) {
	if e.observer != nil {
		e.observer.ObserveAction(resolved.name, resolved.impl.ActionType(), err)
	}
}

func validate(recipe model.Recipe) error {
	n := len(recipe.ActionIDs)
	if n == 0 {
		return xerrors.New(CodeRecipeMalformed, "recipe has no actions")
	}
	if len(recipe.CallData) != n {
		return xerrors.New(CodeRecipeMalformed, fmt.Sprintf("%d actions, %d call data", n, len(recipe.CallData)))
	}
	if len(recipe.ParamMapping) != 0 && len(recipe.ParamMapping) != n {
		return xerrors.New(CodeRecipeMalformed, fmt.Sprintf("%d actions, %d param mappings", n, len(recipe.ParamMapping)))
	}
	return nil
}

func mappingAt(recipe model.Recipe, i int) []uint8 {
	if i < len(recipe.ParamMapping) {
		return recipe.ParamMapping[i]
	}
	return nil
}

func rawCallData(data []hexutil.Bytes, i int) []byte {
	if i < len(data) {
		return data[i]
	}
	return nil
}
