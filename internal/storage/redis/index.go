package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"Recipe-Chain/internal/bot"
	xerrors "Recipe-Chain/internal/errors"
)

const defaultIndexKey = "recipechain:subs"

// Config 描述订阅索引使用的 Redis 连接。
type Config struct {
	Address  string
	Password string
	DB       int
	Key      string
}

// Index 以 Redis 哈希实现 bot.Index，字段为订阅 ID，值为 JSON。
type Index struct {
	client *goredis.Client
	key    string
}

var _ bot.Index = (*Index)(nil)

// NewIndex 建立连接并校验连通性。
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "ping redis")
	}
	return NewIndexWithClient(client, cfg.Key), nil
}

// NewIndexWithClient 复用已有客户端。
func NewIndexWithClient(client *goredis.Client, key string) *Index {
	if strings.TrimSpace(key) == "" {
		key = defaultIndexKey
	}
	return &Index{client: client, key: key}
}

// Key 返回哈希键名。
func (i *Index) Key() string {
	return i.key
}

// Put 实现 bot.Index。
func (i *Index) Put(ctx context.Context, sub bot.IndexedSub) error {
	field, payload, err := encodeSub(sub)
	if err != nil {
		return err
	}
	if err := i.client.HSet(ctx, i.key, field, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write sub index")
	}
	return nil
}

// Get 实现 bot.Index。
func (i *Index) Get(ctx context.Context, subID uint64) (bot.IndexedSub, error) {
	raw, err := i.client.HGet(ctx, i.key, strconv.FormatUint(subID, 10)).Result()
	if errors.Is(err, goredis.Nil) {
		return bot.IndexedSub{}, bot.ErrSubNotIndexed
	}
	if err != nil {
		return bot.IndexedSub{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read sub index")
	}
	return decodeSub(raw)
}

// Enabled 实现 bot.Index，全量读取哈希后在本地过滤。
func (i *Index) Enabled(ctx context.Context) ([]bot.IndexedSub, error) {
	all, err := i.client.HGetAll(ctx, i.key).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan sub index")
	}
	return enabledSubs(all)
}

// Close 关闭客户端。
func (i *Index) Close() error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Close()
}

func encodeSub(sub bot.IndexedSub) (string, string, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode indexed sub")
	}
	return strconv.FormatUint(sub.SubID, 10), string(payload), nil
}

func decodeSub(raw string) (bot.IndexedSub, error) {
	var sub bot.IndexedSub
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return bot.IndexedSub{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode indexed sub")
	}
	return sub, nil
}

func enabledSubs(all map[string]string) ([]bot.IndexedSub, error) {
	out := make([]bot.IndexedSub, 0, len(all))
	for field, raw := range all {
		sub, err := decodeSub(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		if sub.Enabled {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SubID < out[b].SubID })
	return out, nil
}
