package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/subscription"
	"Recipe-Chain/pkg/logger"
)

// IndexedSub 是 bot 从事件中还原的订阅参数。
type IndexedSub struct {
	SubID   uint64            `json:"sub_id"`
	Proxy   common.Address    `json:"proxy"`
	Hash    common.Hash       `json:"hash"`
	Enabled bool              `json:"enabled"`
	Sub     model.StrategySub `json:"sub"`
}

// Index 保存订阅的原始参数，执行时需要原样提交给执行器。
type Index interface {
	Put(ctx context.Context, sub IndexedSub) error
	// Get 在订阅未被索引时返回 ErrSubNotIndexed。
	Get(ctx context.Context, subID uint64) (IndexedSub, error)
	// Enabled 按 SubID 升序返回全部启用的订阅。
	Enabled(ctx context.Context) ([]IndexedSub, error)
}

// MemoryIndex 是进程内索引。
type MemoryIndex struct {
	mu   sync.RWMutex
	subs map[uint64]IndexedSub
}

// NewMemoryIndex 创建空索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{subs: make(map[uint64]IndexedSub)}
}

// Put 实现 Index。
func (m *MemoryIndex) Put(_ context.Context, sub IndexedSub) error {
	sub.Sub = sub.Sub.Clone()
	m.mu.Lock()
	m.subs[sub.SubID] = sub
	m.mu.Unlock()
	return nil
}

// Get 实现 Index。
func (m *MemoryIndex) Get(_ context.Context, subID uint64) (IndexedSub, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[subID]
	if !ok {
		return IndexedSub{}, ErrSubNotIndexed
	}
	sub.Sub = sub.Sub.Clone()
	return sub, nil
}

// Enabled 实现 Index。
func (m *MemoryIndex) Enabled(_ context.Context) ([]IndexedSub, error) {
	m.mu.RLock()
	out := make([]IndexedSub, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.Enabled {
			sub.Sub = sub.Sub.Clone()
			out = append(out, sub)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubID < out[j].SubID })
	return out, nil
}

// Indexer 把 SubStorage 的事件写入索引，实现 ledger.Publisher。
type Indexer struct {
	index Index
	log   *slog.Logger
}

// NewIndexer 创建事件索引器。
func NewIndexer(index Index) *Indexer {
	return &Indexer{index: index, log: logger.Named("bot.index")}
}

// Publish 处理一批已提交事件，忽略非订阅事件。
func (i *Indexer) Publish(ctx context.Context, events []model.Event) error {
	for _, event := range events {
		if event.Contract != "SubStorage" {
			continue
		}
		if err := i.apply(ctx, event); err != nil {
			i.log.Error("索引订阅事件失败",
				slog.Any("error", err),
				slog.String("event", event.Name),
				slog.String("tx_id", event.TxID),
			)
			return err
		}
	}
	return nil
}

func (i *Indexer) apply(ctx context.Context, event model.Event) error {
	entry, err := DecodeSubEvent(event)
	if err != nil {
		return err
	}
	switch event.Name {
	case subscription.EventSubscribe, subscription.EventActivateSub:
		entry.Enabled = true
	case subscription.EventDeactivateSub:
		entry.Enabled = false
	case subscription.EventUpdateData:
		entry.Enabled = true
		if existing, err := i.index.Get(ctx, entry.SubID); err == nil {
			entry.Enabled = existing.Enabled
		}
	default:
		return nil
	}
	return i.index.Put(ctx, entry)
}

// DecodeSubEvent 从订阅事件字段中取出订阅参数。字段既可以是进程内的原始值，
// 也可以是经过 JSON 传输后的通用结构。
func DecodeSubEvent(event model.Event) (IndexedSub, error) {
	var entry IndexedSub
	subID, err := uintField(event.Fields["sub_id"])
	if err != nil {
		return entry, malformed(event, "sub_id", err)
	}
	proxy, ok := event.Fields["proxy"].(string)
	if !ok || !common.IsHexAddress(proxy) {
		return entry, malformed(event, "proxy", fmt.Errorf("not an address: %v", event.Fields["proxy"]))
	}
	hash, ok := event.Fields["sub_hash"].(string)
	if !ok {
		return entry, malformed(event, "sub_hash", fmt.Errorf("not a hash: %v", event.Fields["sub_hash"]))
	}
	sub, err := subField(event.Fields["sub"])
	if err != nil {
		return entry, malformed(event, "sub", err)
	}
	entry.SubID = subID
	entry.Proxy = common.HexToAddress(proxy)
	entry.Hash = common.HexToHash(hash)
	entry.Sub = sub
	return entry, nil
}

func malformed(event model.Event, field string, cause error) error {
	return xerrors.Wrap(CodeIndexMalformed, cause, fmt.Sprintf("%s.%s field %s", event.Contract, event.Name, field),
		xerrors.WithMetadata("tx_id", event.TxID))
}

func uintField(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative id %d", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, fmt.Errorf("invalid id %v", n)
		}
		return uint64(n), nil
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}

func subField(v any) (model.StrategySub, error) {
	switch s := v.(type) {
	case model.StrategySub:
		return s.Clone(), nil
	case *model.StrategySub:
		if s == nil {
			return model.StrategySub{}, fmt.Errorf("nil sub")
		}
		return s.Clone(), nil
	case nil:
		return model.StrategySub{}, fmt.Errorf("missing sub")
	default:
		raw, err := json.Marshal(s)
		if err != nil {
			return model.StrategySub{}, err
		}
		var sub model.StrategySub
		if err := json.Unmarshal(raw, &sub); err != nil {
			return model.StrategySub{}, err
		}
		return sub, nil
	}
}
