package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/model"
	"Recipe-Chain/pkg/logger"
)

type balanceKey struct {
	token common.Address
	owner common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type state struct {
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	entries    map[model.ID]model.Entry
	bots       map[common.Address]bool
	flags      map[string]bool
	strategies []model.Strategy
	bundles    []model.Bundle
	subs       []model.StoredSub
	proxies    map[common.Address]model.Proxy
	nonces     map[common.Address]uint64
}

func newState() *state {
	return &state{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		entries:    make(map[model.ID]model.Entry),
		bots:       make(map[common.Address]bool),
		flags:      make(map[string]bool),
		proxies:    make(map[common.Address]model.Proxy),
		nonces:     make(map[common.Address]uint64),
	}
}

// clone 复制顶层容器。存入的值在写入时已经拷贝，之后不再原地修改，
// 因此浅拷贝即可隔离事务。
func (s *state) clone() *state {
	out := &state{
		balances:   make(map[balanceKey]*uint256.Int, len(s.balances)),
		allowances: make(map[allowanceKey]*uint256.Int, len(s.allowances)),
		entries:    make(map[model.ID]model.Entry, len(s.entries)),
		bots:       make(map[common.Address]bool, len(s.bots)),
		flags:      make(map[string]bool, len(s.flags)),
		strategies: append([]model.Strategy(nil), s.strategies...),
		bundles:    append([]model.Bundle(nil), s.bundles...),
		subs:       append([]model.StoredSub(nil), s.subs...),
		proxies:    make(map[common.Address]model.Proxy, len(s.proxies)),
		nonces:     make(map[common.Address]uint64, len(s.nonces)),
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.allowances {
		out.allowances[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.bots {
		out.bots[k] = v
	}
	for k, v := range s.flags {
		out.flags[k] = v
	}
	for k, v := range s.proxies {
		out.proxies[k] = v
	}
	for k, v := range s.nonces {
		out.nonces[k] = v
	}
	return out
}

// MemoryStore 是进程内账本实现，每个写事务在状态副本上执行，成功后整体替换。
type MemoryStore struct {
	mu        sync.RWMutex
	current   *state
	clock     func() time.Time
	publisher Publisher
	closed    bool
}

// MemoryOption 定义 MemoryStore 的可选配置。
type MemoryOption func(*MemoryStore)

// WithClock 指定事务时间来源。
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher 指定提交后接收事件的发布器。
func WithPublisher(publisher Publisher) MemoryOption {
	return func(s *MemoryStore) {
		s.publisher = publisher
	}
}

// NewMemoryStore 创建空账本。
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{current: newState(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Update 实现 Store。
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events, err := s.apply(fn)
	if err != nil {
		return err
	}
	PublishCommitted(ctx, s.publisher, events)
	return nil
}

func (s *MemoryStore) apply(fn func(tx Tx) error) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	tx := &memoryTx{id: uuid.NewString(), now: s.clock(), st: s.current.clone()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	s.current = tx.st
	return tx.events, nil
}

// View 实现 Store。
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memoryTx{id: uuid.NewString(), now: s.clock(), st: s.current, readOnly: true})
}

// Close 关闭账本。
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// PublishCommitted 在事务提交后发布事件，发布失败只记录日志，不影响已提交的状态。
func PublishCommitted(ctx context.Context, publisher Publisher, events []model.Event) {
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), events); err != nil {
		logger.Named("ledger").Error("发布已提交事件失败",
			slog.Any("error", err),
			slog.Int("events", len(events)),
		)
	}
}

type memoryTx struct {
	id       string
	now      time.Time
	st       *state
	readOnly bool
	events   []model.Event
}

func (t *memoryTx) ID() string { return t.id }

func (t *memoryTx) Now() time.Time { return t.now }

func (t *memoryTx) ReadOnly() bool { return t.readOnly }

func (t *memoryTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memoryTx) Balance(token, owner common.Address) (*uint256.Int, error) {
	return zeroIfNil(t.st.balances[balanceKey{token, owner}]), nil
}

func (t *memoryTx) SetBalance(token, owner common.Address, amount *uint256.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.balances[balanceKey{token, owner}] = zeroIfNil(amount)
	return nil
}

func (t *memoryTx) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	return zeroIfNil(t.st.allowances[allowanceKey{token, owner, spender}]), nil
}

func (t *memoryTx) SetAllowance(token, owner, spender common.Address, amount *uint256.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.allowances[allowanceKey{token, owner, spender}] = zeroIfNil(amount)
	return nil
}

func (t *memoryTx) Entry(id model.ID) (model.Entry, error) {
	return t.st.entries[id], nil
}

func (t *memoryTx) PutEntry(id model.ID, entry model.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.entries[id] = entry
	return nil
}

func (t *memoryTx) BotApproved(bot common.Address) (bool, error) {
	return t.st.bots[bot], nil
}

func (t *memoryTx) SetBotApproved(bot common.Address, approved bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	if approved {
		t.st.bots[bot] = true
	} else {
		delete(t.st.bots, bot)
	}
	return nil
}

func (t *memoryTx) Flag(key string) (bool, error) {
	return t.st.flags[key], nil
}

func (t *memoryTx) SetFlag(key string, value bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.flags[key] = value
	return nil
}

func (t *memoryTx) AppendStrategy(strategy model.Strategy) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.st.strategies = append(t.st.strategies, CloneStrategy(strategy))
	return uint64(len(t.st.strategies) - 1), nil
}

func (t *memoryTx) Strategy(id uint64) (model.Strategy, error) {
	if id >= uint64(len(t.st.strategies)) {
		return model.Strategy{}, ErrNotFound
	}
	return CloneStrategy(t.st.strategies[id]), nil
}

func (t *memoryTx) StrategyCount() (uint64, error) {
	return uint64(len(t.st.strategies)), nil
}

func (t *memoryTx) AppendBundle(bundle model.Bundle) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.st.bundles = append(t.st.bundles, CloneBundle(bundle))
	return uint64(len(t.st.bundles) - 1), nil
}

func (t *memoryTx) Bundle(id uint64) (model.Bundle, error) {
	if id >= uint64(len(t.st.bundles)) {
		return model.Bundle{}, ErrNotFound
	}
	return CloneBundle(t.st.bundles[id]), nil
}

func (t *memoryTx) BundleCount() (uint64, error) {
	return uint64(len(t.st.bundles)), nil
}

func (t *memoryTx) AppendSub(sub model.StoredSub) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.st.subs = append(t.st.subs, sub)
	return uint64(len(t.st.subs) - 1), nil
}

func (t *memoryTx) Sub(id uint64) (model.StoredSub, error) {
	if id >= uint64(len(t.st.subs)) {
		return model.StoredSub{}, ErrNotFound
	}
	return t.st.subs[id], nil
}

func (t *memoryTx) PutSub(id uint64, sub model.StoredSub) error {
	if err := t.writable(); err != nil {
		return err
	}
	if id >= uint64(len(t.st.subs)) {
		return ErrNotFound
	}
	t.st.subs[id] = sub
	return nil
}

func (t *memoryTx) SubCount() (uint64, error) {
	return uint64(len(t.st.subs)), nil
}

func (t *memoryTx) Proxy(addr common.Address) (model.Proxy, error) {
	proxy, ok := t.st.proxies[addr]
	if !ok {
		return model.Proxy{}, ErrNotFound
	}
	return CloneProxy(proxy), nil
}

func (t *memoryTx) PutProxy(proxy model.Proxy) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.proxies[proxy.Address] = CloneProxy(proxy)
	return nil
}

func (t *memoryTx) NextNonce(deployer common.Address) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	nonce := t.st.nonces[deployer]
	t.st.nonces[deployer] = nonce + 1
	return nonce, nil
}

func (t *memoryTx) Emit(event model.Event) {
	if t.readOnly {
		return
	}
	event.TxID = t.id
	t.events = append(t.events, event)
}
