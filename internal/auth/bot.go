package auth

import (
	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

const (
	CodeSenderNotOwner         xerrors.Code = "BOT_AUTH_SENDER_NOT_OWNER"
	CodeSenderNotExecutor      xerrors.Code = "SENDER_NOT_EXECUTOR"
	CodeProxyPermissionMissing xerrors.Code = "PROXY_PERMISSION_MISSING"
)

func init() {
	xerrors.Register(CodeSenderNotOwner, xerrors.Attributes{
		Message:  "sender is not the bot allowlist owner",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAuthorization,
	})
	xerrors.Register(CodeSenderNotExecutor, xerrors.Attributes{
		Message:  "sender is not the registered strategy executor",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
		Category: xerrors.CategoryAuthorization,
	})
	xerrors.Register(CodeProxyPermissionMissing, xerrors.Attributes{
		Message:  "proxy has not granted execution permission",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAuthorization,
	})
}

// BotAuth 维护允许调用策略执行器的 bot 地址列表。
type BotAuth struct {
	owner common.Address
}

// NewBotAuth 创建由 owner 管理的白名单。
func NewBotAuth(owner common.Address) *BotAuth {
	return &BotAuth{owner: owner}
}

// AddCaller 加入 bot。
func (b *BotAuth) AddCaller(tx ledger.Tx, sender, bot common.Address) error {
	return b.set(tx, sender, bot, true, "AddCaller")
}

// RemoveCaller 移除 bot。
func (b *BotAuth) RemoveCaller(tx ledger.Tx, sender, bot common.Address) error {
	return b.set(tx, sender, bot, false, "RemoveCaller")
}

// IsApproved 判断地址是否在白名单中。
func (b *BotAuth) IsApproved(tx ledger.Tx, bot common.Address) (bool, error) {
	return tx.BotApproved(bot)
}

func (b *BotAuth) set(tx ledger.Tx, sender, bot common.Address, approved bool, op string) error {
	if sender != b.owner {
		return xerrors.New(CodeSenderNotOwner, "", xerrors.WithMetadata("sender", sender.Hex()))
	}
	if err := tx.SetBotApproved(bot, approved); err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: "BotAuth", Name: op, Fields: map[string]any{"bot": bot.Hex()}})
	return nil
}
