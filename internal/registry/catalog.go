package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

// ImplAddress 为进程内实现派生确定性的地址。
func ImplAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("recipe-chain/impl/" + name)))
}

// Binding 描述目录中的一个实现。
type Binding struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Impl    any            `json:"-"`
}

// Catalog 保存地址到实现的映射，相当于链上地址处部署的代码。
type Catalog struct {
	mu       sync.RWMutex
	bindings map[common.Address]Binding
}

// NewCatalog 创建空目录。
func NewCatalog() *Catalog {
	return &Catalog{bindings: make(map[common.Address]Binding)}
}

// Register 在 addr 处绑定实现，同一地址不能重复绑定。
func (c *Catalog) Register(addr common.Address, name string, impl any) error {
	if impl == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "implementation is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.bindings[addr]; ok {
		return xerrors.New(CodeImplementationAddressInUse,
			fmt.Sprintf("%s already bound to %s", addr.Hex(), existing.Name))
	}
	c.bindings[addr] = Binding{Address: addr, Name: name, Impl: impl}
	return nil
}

// Lookup 查询地址上的实现。
func (c *Catalog) Lookup(addr common.Address) (Binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	binding, ok := c.bindings[addr]
	return binding, ok
}

// Bindings 按名称排序返回全部绑定。
func (c *Catalog) Bindings() []Binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve 先通过注册表把 id 解析为地址，再从目录取出类型为 T 的实现。
func Resolve[T any](tx ledger.Tx, catalog *Catalog, id model.ID) (T, common.Address, error) {
	var zero T
	entry, err := tx.Entry(id)
	if err != nil {
		return zero, common.Address{}, err
	}
	if !entry.Exists {
		return zero, common.Address{}, xerrors.New(CodeContractNotRegistered,
			fmt.Sprintf("id %s not registered", id), xerrors.WithMetadata("id", id.String()))
	}
	binding, ok := catalog.Lookup(entry.ContractAddr)
	if !ok {
		return zero, entry.ContractAddr, xerrors.New(CodeImplementationNotFound,
			fmt.Sprintf("id %s points to %s with no implementation", id, entry.ContractAddr.Hex()))
	}
	impl, ok := binding.Impl.(T)
	if !ok {
		return zero, entry.ContractAddr, xerrors.New(CodeImplementationNotFound,
			fmt.Sprintf("id %s points to %s (%T) of the wrong kind", id, binding.Name, binding.Impl))
	}
	return impl, entry.ContractAddr, nil
}
