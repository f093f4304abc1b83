package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
)

const (
	CodeNotFound xerrors.Code = "LEDGER_NOT_FOUND"
	CodeReadOnly xerrors.Code = "LEDGER_READ_ONLY"
	CodeClosed   xerrors.Code = "LEDGER_CLOSED"
)

var (
	// ErrNotFound 表示按 ID 查询的记录不存在。
	ErrNotFound = xerrors.New(CodeNotFound, "ledger record not found")
	// ErrReadOnly 表示在只读事务中尝试写入。
	ErrReadOnly = xerrors.New(CodeReadOnly, "write in read-only transaction")
	// ErrClosed 表示账本已关闭。
	ErrClosed = xerrors.New(CodeClosed, "ledger closed")
)

func init() {
	xerrors.Register(CodeNotFound, xerrors.Attributes{
		Message:  "ledger record not found",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeReadOnly, xerrors.Attributes{
		Message:  "write in read-only transaction",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
		Category: xerrors.CategoryInfrastructure,
	})
	xerrors.Register(CodeClosed, xerrors.Attributes{
		Message:   "ledger closed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Category:  xerrors.CategoryInfrastructure,
	})
}

// Publisher 接收已提交事务产生的事件。
type Publisher interface {
	Publish(ctx context.Context, events []model.Event) error
}

// Store 是账本的事务入口。
type Store interface {
	// Update 在单个原子事务中执行 fn，fn 返回错误时全部写入回滚。
	// fn 内部不得再次调用同一个 Store 的 Update。
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View 在只读快照上执行 fn。
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx 暴露单个事务内可见的全部账本状态。
type Tx interface {
	ID() string
	// Now 返回事务开始时刻，整个事务内保持不变。
	Now() time.Time
	ReadOnly() bool

	Balance(token, owner common.Address) (*uint256.Int, error)
	SetBalance(token, owner common.Address, amount *uint256.Int) error
	Allowance(token, owner, spender common.Address) (*uint256.Int, error)
	SetAllowance(token, owner, spender common.Address, amount *uint256.Int) error

	// Entry 返回注册表记录，不存在时 Exists 为 false。
	Entry(id model.ID) (model.Entry, error)
	PutEntry(id model.ID, entry model.Entry) error

	BotApproved(bot common.Address) (bool, error)
	SetBotApproved(bot common.Address, approved bool) error

	Flag(key string) (bool, error)
	SetFlag(key string, value bool) error

	AppendStrategy(strategy model.Strategy) (uint64, error)
	Strategy(id uint64) (model.Strategy, error)
	StrategyCount() (uint64, error)

	AppendBundle(bundle model.Bundle) (uint64, error)
	Bundle(id uint64) (model.Bundle, error)
	BundleCount() (uint64, error)

	AppendSub(sub model.StoredSub) (uint64, error)
	Sub(id uint64) (model.StoredSub, error)
	PutSub(id uint64, sub model.StoredSub) error
	SubCount() (uint64, error)

	Proxy(addr common.Address) (model.Proxy, error)
	PutProxy(proxy model.Proxy) error
	// NextNonce 返回部署者当前的 nonce 并自增。
	NextNonce(deployer common.Address) (uint64, error)

	// Emit 缓存事件，提交后统一发布。
	Emit(event model.Event)
}

// Page 计算分页区间 [page*perPage, page*perPage+perPage) 与总数的交集。
func Page(total, page, perPage uint64) (start, end uint64) {
	if perPage == 0 {
		return 0, 0
	}
	start = page * perPage
	if start/perPage != page || start >= total {
		return total, total
	}
	end = start + perPage
	if end > total || end < start {
		end = total
	}
	return start, end
}

// CloneStrategy 深拷贝策略，账本内外不共享切片。
func CloneStrategy(s model.Strategy) model.Strategy {
	out := s
	out.TriggerIDs = append([]model.ID(nil), s.TriggerIDs...)
	out.ActionIDs = append([]model.ID(nil), s.ActionIDs...)
	out.ParamMapping = make([][]uint8, len(s.ParamMapping))
	for i, mapping := range s.ParamMapping {
		out.ParamMapping[i] = append([]uint8(nil), mapping...)
	}
	return out
}

// CloneBundle 深拷贝 bundle。
func CloneBundle(b model.Bundle) model.Bundle {
	out := b
	out.StrategyIDs = append([]uint64(nil), b.StrategyIDs...)
	return out
}

// CloneProxy 深拷贝代理账户。
func CloneProxy(p model.Proxy) model.Proxy {
	out := p
	out.Permissions = append([]common.Address(nil), p.Permissions...)
	return out
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
