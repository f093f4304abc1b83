package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"Recipe-Chain/internal/config"
	"Recipe-Chain/internal/web3"
	"Recipe-Chain/internal/web3/ethereum"
)

// Dialer 根据链定义创建客户端，测试中可替换。
type Dialer func(ctx context.Context, name string, chain web3.ChainDefinition) (web3.Client, error)

// DialEVM 使用 ethclient 连接 EVM 链。
func DialEVM(ctx context.Context, name string, chain web3.ChainDefinition) (web3.Client, error) {
	return ethereum.NewClient(ctx, ethereum.Config{Name: name, RPCURL: chain.RPCURL})
}

// Registry 按名称管理链客户端。
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
}

// NewRegistry 加载链定义并建立客户端。
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	return NewRegistryWithDialer(ctx, cfg, DialEVM)
}

// NewRegistryWithDialer 与 NewRegistry 相同，但使用指定的 Dialer。
func NewRegistryWithDialer(ctx context.Context, cfg config.Web3Config, dial Dialer) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	if len(defs.Chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		fallback := web3.ChainDefinition{Type: web3.ChainTypeEVM, RPCURL: cfg.RPCURL}
		if err := fallback.Validate("default"); err != nil {
			return nil, err
		}
		defs.Chains["default"] = fallback
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}
	if len(defs.Chains) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	r := &Registry{clients: make(map[string]web3.Client, len(defs.Chains))}
	for _, name := range defs.Names() {
		chain := defs.Chains[name]
		client, err := dial(ctx, name, chain)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		r.clients[name] = client
		if err := chain.Verify(ctx, client); err != nil {
			r.Close()
			return nil, err
		}
	}

	r.defaultChain = cfg.DefaultChain
	if r.defaultChain == "" {
		r.defaultChain = r.Chains()[0]
	}
	if _, ok := r.clients[r.defaultChain]; !ok {
		r.Close()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", r.defaultChain)
	}
	return r, nil
}

// DefaultClient 返回默认链的客户端。
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client 按名称查找客户端。
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Chains 返回排序后的链名称。
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 关闭全部客户端。
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
