package web3

import (
	"context"
	"fmt"
	"math/big"
)

// ChainSnapshot 汇总链的基础状态，供健康检查展示。
type ChainSnapshot struct {
	Chain       string `json:"chain"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	GasPrice    string `json:"gas_price"`
}

// Client 是触发器和 bot 使用的链访问接口。
type Client interface {
	Name() string
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	LatestBlock(ctx context.Context) (uint64, error)
	Close()
}

// Snapshot 依次查询链 ID、最新区块与建议 gas 价格。
func Snapshot(ctx context.Context, client Client) (ChainSnapshot, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	block, err := client.LatestBlock(ctx)
	if err != nil {
		return ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return ChainSnapshot{}, fmt.Errorf("获取 gas 价格失败: %w", err)
	}
	return ChainSnapshot{
		Chain:       client.Name(),
		ChainID:     "0x" + id.Text(16),
		BlockNumber: block,
		GasPrice:    price.String(),
	}, nil
}
