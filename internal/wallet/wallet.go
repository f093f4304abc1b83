// Package wallet implements user-owned proxy accounts. Code executed through
// a proxy receives a Frame and acts with the proxy's identity and assets.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/pkg/logger"
)

const (
	CodeProxyNotFound            xerrors.Code = "PROXY_NOT_FOUND"
	CodeSenderNotProxyAuthorized xerrors.Code = "SENDER_NOT_PROXY_AUTHORIZED"
)

func init() {
	xerrors.Register(CodeProxyNotFound, xerrors.Attributes{
		Message:  "proxy not found",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeSenderNotProxyAuthorized, xerrors.Attributes{
		Message:  "sender may not execute through proxy",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAuthorization,
	})
}

// Frame 是通过代理执行时的上下文。
type Frame struct {
	Tx    ledger.Tx
	Proxy common.Address
	Owner common.Address
}

// Call 是在代理上下文中执行的代码。
type Call func(ctx context.Context, frame Frame) error

// Factory 创建并管理代理账户。
type Factory struct {
	address common.Address
}

// NewFactory 创建部署地址为 address 的工厂。
func NewFactory(address common.Address) *Factory {
	return &Factory{address: address}
}

// Address 返回工厂地址。
func (f *Factory) Address() common.Address {
	return f.address
}

// Build 为 owner 创建新的代理，地址由工厂地址与 nonce 派生。
func (f *Factory) Build(tx ledger.Tx, owner common.Address) (model.Proxy, error) {
	nonce, err := tx.NextNonce(f.address)
	if err != nil {
		return model.Proxy{}, err
	}
	proxy := model.Proxy{Address: crypto.CreateAddress(f.address, nonce), Owner: owner}
	if err := tx.PutProxy(proxy); err != nil {
		return model.Proxy{}, err
	}
	tx.Emit(model.Event{Contract: "ProxyFactory", Name: "Created", Fields: map[string]any{
		"proxy": proxy.Address.Hex(),
		"owner": owner.Hex(),
	}})
	return proxy, nil
}

// Get 查询代理。
func (f *Factory) Get(tx ledger.Tx, addr common.Address) (model.Proxy, error) {
	proxy, err := tx.Proxy(addr)
	if err != nil {
		if xerrors.CodeOf(err) == ledger.CodeNotFound {
			return model.Proxy{}, xerrors.New(CodeProxyNotFound, fmt.Sprintf("proxy %s not found", addr.Hex()))
		}
		return model.Proxy{}, err
	}
	return proxy, nil
}

// Grant 授予 grantee 通过代理执行的权限，只有代理所有者可以授权。
func (f *Factory) Grant(tx ledger.Tx, sender, proxyAddr, grantee common.Address) error {
	proxy, err := f.ownedBy(tx, sender, proxyAddr)
	if err != nil {
		return err
	}
	if proxy.Permitted(grantee) {
		return nil
	}
	proxy.Permissions = append(proxy.Permissions, grantee)
	if err := tx.PutProxy(proxy); err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: "Proxy", Name: "PermissionGranted", Fields: map[string]any{
		"proxy":   proxyAddr.Hex(),
		"grantee": grantee.Hex(),
	}})
	return nil
}

// Revoke 撤销 grantee 的权限。
func (f *Factory) Revoke(tx ledger.Tx, sender, proxyAddr, grantee common.Address) error {
	proxy, err := f.ownedBy(tx, sender, proxyAddr)
	if err != nil {
		return err
	}
	kept := proxy.Permissions[:0]
	for _, granted := range proxy.Permissions {
		if granted != grantee {
			kept = append(kept, granted)
		}
	}
	proxy.Permissions = kept
	if err := tx.PutProxy(proxy); err != nil {
		return err
	}
	tx.Emit(model.Event{Contract: "Proxy", Name: "PermissionRevoked", Fields: map[string]any{
		"proxy":   proxyAddr.Hex(),
		"grantee": grantee.Hex(),
	}})
	return nil
}

// Execute 以代理身份运行 call。sender 必须是所有者或被授权地址。
func (f *Factory) Execute(ctx context.Context, tx ledger.Tx, sender, proxyAddr, target common.Address, call Call) error {
	proxy, err := f.Get(tx, proxyAddr)
	if err != nil {
		return err
	}
	if sender != proxy.Owner && !proxy.Permitted(sender) {
		return xerrors.New(CodeSenderNotProxyAuthorized,
			fmt.Sprintf("%s may not execute through %s", sender.Hex(), proxyAddr.Hex()),
			xerrors.WithMetadata("proxy", proxyAddr.Hex()))
	}
	logger.Named("wallet").Debug("代理执行",
		slog.String("proxy", proxyAddr.Hex()),
		slog.String("sender", sender.Hex()),
		slog.String("target", target.Hex()),
		slog.String("tx_id", tx.ID()),
	)
	return call(ctx, Frame{Tx: tx, Proxy: proxy.Address, Owner: proxy.Owner})
}

func (f *Factory) ownedBy(tx ledger.Tx, sender, proxyAddr common.Address) (model.Proxy, error) {
	proxy, err := f.Get(tx, proxyAddr)
	if err != nil {
		return model.Proxy{}, err
	}
	if sender != proxy.Owner && sender != proxy.Address {
		return model.Proxy{}, xerrors.New(CodeSenderNotProxyAuthorized,
			fmt.Sprintf("%s does not own %s", sender.Hex(), proxyAddr.Hex()))
	}
	return proxy, nil
}
