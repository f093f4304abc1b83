// Package executor implements the bot entry point. A call moves through
// caller authorization, subscription hash verification, enablement and
// trigger checks before the strategy's recipe runs through the subscriber's
// proxy. Any failure aborts the whole ledger transaction.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/recipe"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/subscription"
	"Recipe-Chain/internal/wallet"
	"Recipe-Chain/pkg/logger"
)

const (
	CodeBotNotApproved      xerrors.Code = "BOT_NOT_APPROVED"
	CodeSubDataHashMismatch xerrors.Code = "SUB_DATA_HASH_MISMATCH"
	CodeSubNotEnabled       xerrors.Code = "SUB_NOT_ENABLED"
)

func init() {
	xerrors.Register(CodeBotNotApproved, xerrors.Attributes{
		Message:  "bot not approved",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
		Category: xerrors.CategoryAuthorization,
	})
	xerrors.Register(CodeSubDataHashMismatch, xerrors.Attributes{
		Message:  "sub data hash mismatch",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeSubNotEnabled, xerrors.Attributes{
		Message:  "sub not enabled",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryPrecondition,
	})
}

// RecipeRunner 是注册表中 RecipeExecutor 地址上的实现。
type RecipeRunner interface {
	ExecuteRecipeFromStrategy(ctx context.Context, frame wallet.Frame, req recipe.StrategyRequest) error
}

// StrategyExecutor 是 bot 调用的入口，自身不保存跨调用状态。
type StrategyExecutor struct {
	address   common.Address
	bots      *auth.BotAuth
	subs      *subscription.Storage
	proxyAuth *auth.ProxyAuth
	catalog   *registry.Catalog
	log       *slog.Logger
}

// New 创建位于 address 的策略执行器，address 需要登记为 StrategyExecutorID。
func New(address common.Address, bots *auth.BotAuth, subs *subscription.Storage, proxyAuth *auth.ProxyAuth, catalog *registry.Catalog) *StrategyExecutor {
	return &StrategyExecutor{
		address:   address,
		bots:      bots,
		subs:      subs,
		proxyAuth: proxyAuth,
		catalog:   catalog,
		log:       logger.Named("executor"),
	}
}

// Address 返回执行器地址。
func (s *StrategyExecutor) Address() common.Address {
	return s.address
}

// ExecuteStrategy 执行订阅 subID。sub 是 bot 还原出的完整订阅参数，
// 其哈希必须与账本记录一致。
func (s *StrategyExecutor) ExecuteStrategy(ctx context.Context, tx ledger.Tx, sender common.Address, subID uint64, strategyIndex int, triggerCallData, actionsCallData []hexutil.Bytes, sub model.StrategySub) error {
	approved, err := s.bots.IsApproved(tx, sender)
	if err != nil {
		return err
	}
	if !approved {
		return xerrors.New(CodeBotNotApproved, fmt.Sprintf("%s is not an approved bot", sender.Hex()))
	}
	s.trace("caller_authorized", tx, subID, sender)

	stored, err := s.subs.GetSub(tx, subID)
	if err != nil {
		return err
	}
	hash, err := codec.HashSub(sub)
	if err != nil {
		return err
	}
	if hash != stored.StrategySubHash {
		return xerrors.New(CodeSubDataHashMismatch,
			fmt.Sprintf("sub %d stored %s, supplied %s", subID, stored.StrategySubHash.Hex(), hash.Hex()),
			xerrors.WithMetadata("sub_id", fmt.Sprint(subID)))
	}
	s.trace("hash_verified", tx, subID, sender)

	if !stored.IsEnabled {
		return xerrors.New(CodeSubNotEnabled, fmt.Sprintf("sub %d disabled", subID),
			xerrors.WithMetadata("sub_id", fmt.Sprint(subID)))
	}

	runner, recipeAddr, err := registry.Resolve[RecipeRunner](tx, s.catalog, registry.RecipeExecutorID)
	if err != nil {
		return err
	}
	req := recipe.StrategyRequest{
		SubID:           subID,
		StrategyIndex:   strategyIndex,
		TriggerCallData: triggerCallData,
		ActionsCallData: actionsCallData,
		Sub:             sub,
	}
	s.trace("recipe_running", tx, subID, sender)
	err = s.proxyAuth.CallExecute(ctx, tx, s.address, stored.WalletAddr, recipeAddr, func(ctx context.Context, frame wallet.Frame) error {
		return runner.ExecuteRecipeFromStrategy(ctx, frame, req)
	})
	if err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: "StrategyExecutor", Name: "StrategyExecuted", Fields: map[string]any{
		"sub_id":         subID,
		"strategy_index": strategyIndex,
		"bot":            sender.Hex(),
		"proxy":          stored.WalletAddr.Hex(),
	}})
	s.trace("settled", tx, subID, sender)
	return nil
}

func (s *StrategyExecutor) trace(state string, tx ledger.Tx, subID uint64, bot common.Address) {
	s.log.Debug(state,
		slog.Uint64("sub_id", subID),
		slog.String("bot", bot.Hex()),
		slog.String("tx_id", tx.ID()),
	)
}
