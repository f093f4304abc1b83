package auth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/internal/wallet"
)

// ProxyAuth 是用户授予的代理执行入口，只有注册表中当前的策略执行器可以使用。
type ProxyAuth struct {
	address common.Address
	wallets *wallet.Factory
}

// NewProxyAuth 创建位于 address 的 ProxyAuth。
func NewProxyAuth(address common.Address, wallets *wallet.Factory) *ProxyAuth {
	return &ProxyAuth{address: address, wallets: wallets}
}

// Address 返回用户需要授权给的地址。
func (p *ProxyAuth) Address() common.Address {
	return p.address
}

// CallExecute 代表策略执行器在代理上下文中运行 call。
func (p *ProxyAuth) CallExecute(ctx context.Context, tx ledger.Tx, sender, proxy, target common.Address, call wallet.Call) error {
	entry, err := tx.Entry(registry.StrategyExecutorID)
	if err != nil {
		return err
	}
	if !entry.Exists || sender != entry.ContractAddr {
		return xerrors.New(CodeSenderNotExecutor, fmt.Sprintf("%s is not the strategy executor", sender.Hex()))
	}
	granted, err := p.wallets.Get(tx, proxy)
	if err != nil {
		return err
	}
	if !granted.Permitted(p.address) {
		return xerrors.New(CodeProxyPermissionMissing,
			fmt.Sprintf("proxy %s has not granted %s", proxy.Hex(), p.address.Hex()),
			xerrors.WithMetadata("proxy", proxy.Hex()))
	}
	return p.wallets.Execute(ctx, tx, p.address, proxy, target, call)
}
