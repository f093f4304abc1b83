package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/model"
)

// Store 是基于 MySQL 的账本实现。
type Store struct {
	db        *sql.DB
	clock     func() time.Time
	publisher ledger.Publisher
}

// Option 定义 Store 的可选配置。
type Option func(*Store)

// WithClock 指定事务时间来源。
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher 指定提交后接收事件的发布器。
func WithPublisher(publisher ledger.Publisher) Option {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// NewStore 使用已有连接池创建账本，不执行迁移。
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open 建立连接、执行迁移并返回账本。
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "open mysql ledger")
	}
	return NewStore(db, opts...), nil
}

// Update 实现 ledger.Store。
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if s == nil || s.db == nil {
		return ledger.ErrClosed
	}
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storageError(err, "begin transaction")
	}
	tx := &mysqlTx{ctx: ctx, tx: sqlTx, id: uuid.NewString(), now: s.clock()}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storageError(err, "commit transaction")
	}
	ledger.PublishCommitted(ctx, s.publisher, tx.events)
	return nil
}

// View 实现 ledger.Store，事务结束后始终回滚。
func (s *Store) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if s == nil || s.db == nil {
		return ledger.ErrClosed
	}
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storageError(err, "begin read-only transaction")
	}
	defer sqlTx.Rollback()
	return fn(&mysqlTx{ctx: ctx, tx: sqlTx, id: uuid.NewString(), now: s.clock(), readOnly: true})
}

// Close 关闭连接池。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB 返回底层连接池，供同库的作业存储复用。
func (s *Store) DB() *sql.DB {
	return s.db
}

func storageError(err error, op string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, op)
}

type mysqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	id       string
	now      time.Time
	readOnly bool
	events   []model.Event
}

func (t *mysqlTx) ID() string { return t.id }

func (t *mysqlTx) Now() time.Time { return t.now }

func (t *mysqlTx) ReadOnly() bool { return t.readOnly }

func (t *mysqlTx) writable() error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	return nil
}

func (t *mysqlTx) exec(op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return nil, storageError(err, op)
	}
	return res, nil
}

// queryRow 执行单行查询，无记录时返回 ok=false。
func (t *mysqlTx) queryRow(op, query string, args []any, dest ...any) (bool, error) {
	err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err, op)
	}
	return true, nil
}

func (t *mysqlTx) amount(op, query string, args ...any) (*uint256.Int, error) {
	var raw string
	ok, err := t.queryRow(op, query, args, &raw)
	if err != nil || !ok {
		return uint256.NewInt(0), err
	}
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, storageError(err, op)
	}
	return value, nil
}

func (t *mysqlTx) Balance(token, owner common.Address) (*uint256.Int, error) {
	return t.amount("read balance",
		`SELECT amount FROM ledger_balances WHERE token = ? AND owner = ?`,
		token.Hex(), owner.Hex())
}

func (t *mysqlTx) SetBalance(token, owner common.Address, amount *uint256.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.exec("write balance",
		`INSERT INTO ledger_balances (token, owner, amount) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE amount = VALUES(amount)`,
		token.Hex(), owner.Hex(), decimal(amount))
	return err
}

func (t *mysqlTx) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	return t.amount("read allowance",
		`SELECT amount FROM ledger_allowances WHERE token = ? AND owner = ? AND spender = ?`,
		token.Hex(), owner.Hex(), spender.Hex())
}

func (t *mysqlTx) SetAllowance(token, owner, spender common.Address, amount *uint256.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.exec("write allowance",
		`INSERT INTO ledger_allowances (token, owner, spender, amount) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE amount = VALUES(amount)`,
		token.Hex(), owner.Hex(), spender.Hex(), decimal(amount))
	return err
}

func (t *mysqlTx) Entry(id model.ID) (model.Entry, error) {
	var entry model.Entry
	var payload string
	ok, err := t.queryRow("read registry entry",
		`SELECT payload FROM registry_entries WHERE id = ?`, []any{id.String()}, &payload)
	if err != nil || !ok {
		return entry, err
	}
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return model.Entry{}, storageError(err, "decode registry entry")
	}
	return entry, nil
}

func (t *mysqlTx) PutEntry(id model.ID, entry model.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return storageError(err, "encode registry entry")
	}
	_, err = t.exec("write registry entry",
		`INSERT INTO registry_entries (id, payload) VALUES (?, ?)
ON DUPLICATE KEY UPDATE payload = VALUES(payload)`,
		id.String(), string(payload))
	return err
}

func (t *mysqlTx) BotApproved(bot common.Address) (bool, error) {
	var stored string
	return t.queryRow("read bot approval",
		`SELECT bot FROM bot_approvals WHERE bot = ?`, []any{bot.Hex()}, &stored)
}

func (t *mysqlTx) SetBotApproved(bot common.Address, approved bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !approved {
		_, err := t.exec("remove bot approval", `DELETE FROM bot_approvals WHERE bot = ?`, bot.Hex())
		return err
	}
	_, err := t.exec("add bot approval",
		`INSERT IGNORE INTO bot_approvals (bot) VALUES (?)`, bot.Hex())
	return err
}

func (t *mysqlTx) Flag(key string) (bool, error) {
	var value bool
	_, err := t.queryRow("read flag", `SELECT value FROM ledger_flags WHERE name = ?`, []any{key}, &value)
	return value, err
}

func (t *mysqlTx) SetFlag(key string, value bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.exec("write flag",
		`INSERT INTO ledger_flags (name, value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		key, value)
	return err
}

// count 返回表的行数，追加型表的下一个 ID 即为当前行数。
func (t *mysqlTx) count(table string) (uint64, error) {
	var n uint64
	_, err := t.queryRow("count "+table, fmt.Sprintf("SELECT COUNT(*) FROM %s", table), nil, &n)
	return n, err
}

func (t *mysqlTx) appendPayload(table string, value any) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	id, err := t.count(table)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return 0, storageError(err, "encode "+table)
	}
	if _, err := t.exec("append "+table,
		fmt.Sprintf("INSERT INTO %s (id, payload) VALUES (?, ?)", table),
		id, string(payload)); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *mysqlTx) loadPayload(table string, id uint64, dest any) error {
	var payload string
	ok, err := t.queryRow("read "+table,
		fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", table), []any{id}, &payload)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrNotFound
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return storageError(err, "decode "+table)
	}
	return nil
}

func (t *mysqlTx) AppendStrategy(strategy model.Strategy) (uint64, error) {
	return t.appendPayload("strategies", strategy)
}

func (t *mysqlTx) Strategy(id uint64) (model.Strategy, error) {
	var strategy model.Strategy
	if err := t.loadPayload("strategies", id, &strategy); err != nil {
		return model.Strategy{}, err
	}
	return strategy, nil
}

func (t *mysqlTx) StrategyCount() (uint64, error) {
	return t.count("strategies")
}

func (t *mysqlTx) AppendBundle(bundle model.Bundle) (uint64, error) {
	return t.appendPayload("bundles", bundle)
}

func (t *mysqlTx) Bundle(id uint64) (model.Bundle, error) {
	var bundle model.Bundle
	if err := t.loadPayload("bundles", id, &bundle); err != nil {
		return model.Bundle{}, err
	}
	return bundle, nil
}

func (t *mysqlTx) BundleCount() (uint64, error) {
	return t.count("bundles")
}

func (t *mysqlTx) AppendSub(sub model.StoredSub) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	id, err := t.count("subs")
	if err != nil {
		return 0, err
	}
	if _, err := t.exec("append sub",
		`INSERT INTO subs (id, wallet_addr, is_enabled, sub_hash) VALUES (?, ?, ?, ?)`,
		id, sub.WalletAddr.Hex(), sub.IsEnabled, sub.StrategySubHash.Hex()); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *mysqlTx) Sub(id uint64) (model.StoredSub, error) {
	var wallet, hash string
	var enabled bool
	ok, err := t.queryRow("read sub",
		`SELECT wallet_addr, is_enabled, sub_hash FROM subs WHERE id = ?`, []any{id},
		&wallet, &enabled, &hash)
	if err != nil {
		return model.StoredSub{}, err
	}
	if !ok {
		return model.StoredSub{}, ledger.ErrNotFound
	}
	return model.StoredSub{
		WalletAddr:      common.HexToAddress(wallet),
		IsEnabled:       enabled,
		StrategySubHash: common.HexToHash(hash),
	}, nil
}

func (t *mysqlTx) PutSub(id uint64, sub model.StoredSub) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.Sub(id); err != nil {
		return err
	}
	_, err := t.exec("write sub",
		`UPDATE subs SET wallet_addr = ?, is_enabled = ?, sub_hash = ? WHERE id = ?`,
		sub.WalletAddr.Hex(), sub.IsEnabled, sub.StrategySubHash.Hex(), id)
	return err
}

func (t *mysqlTx) SubCount() (uint64, error) {
	return t.count("subs")
}

func (t *mysqlTx) Proxy(addr common.Address) (model.Proxy, error) {
	var owner, permissions string
	ok, err := t.queryRow("read proxy",
		`SELECT owner, permissions FROM proxies WHERE address = ?`, []any{addr.Hex()},
		&owner, &permissions)
	if err != nil {
		return model.Proxy{}, err
	}
	if !ok {
		return model.Proxy{}, ledger.ErrNotFound
	}
	proxy := model.Proxy{Address: addr, Owner: common.HexToAddress(owner)}
	if err := json.Unmarshal([]byte(permissions), &proxy.Permissions); err != nil {
		return model.Proxy{}, storageError(err, "decode proxy permissions")
	}
	return proxy, nil
}

func (t *mysqlTx) PutProxy(proxy model.Proxy) error {
	if err := t.writable(); err != nil {
		return err
	}
	permissions := proxy.Permissions
	if permissions == nil {
		permissions = []common.Address{}
	}
	encoded, err := json.Marshal(permissions)
	if err != nil {
		return storageError(err, "encode proxy permissions")
	}
	_, err = t.exec("write proxy",
		`INSERT INTO proxies (address, owner, permissions) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE owner = VALUES(owner), permissions = VALUES(permissions)`,
		proxy.Address.Hex(), proxy.Owner.Hex(), string(encoded))
	return err
}

func (t *mysqlTx) NextNonce(deployer common.Address) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var nonce uint64
	if _, err := t.queryRow("read nonce",
		`SELECT nonce FROM proxy_nonces WHERE deployer = ? FOR UPDATE`, []any{deployer.Hex()}, &nonce); err != nil {
		return 0, err
	}
	if _, err := t.exec("write nonce",
		`INSERT INTO proxy_nonces (deployer, nonce) VALUES (?, ?)
ON DUPLICATE KEY UPDATE nonce = VALUES(nonce)`,
		deployer.Hex(), nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (t *mysqlTx) Emit(event model.Event) {
	if t.readOnly {
		return
	}
	event.TxID = t.id
	t.events = append(t.events, event)
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
