package builtin

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"Recipe-Chain/internal/codec"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/trigger"
)

// GasPriceTriggerName 是 gas 价格触发器的名称。
const GasPriceTriggerName = "GasPriceTrigger"

var gasPriceArgs = codec.MustArguments("uint256")

// GasPriceSource 提供当前建议的 gas 价格。
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// StaticGasPrice 返回固定的 gas 价格，用于没有节点连接的部署。
type StaticGasPrice struct {
	Price *big.Int
}

// SuggestGasPrice 实现 GasPriceSource。
func (s StaticGasPrice) SuggestGasPrice(context.Context) (*big.Int, error) {
	if s.Price == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(s.Price), nil
}

// EncodeGasPrice 编码 gas 价格上限。
func EncodeGasPrice(maxGasPrice *uint256.Int) ([]byte, error) {
	return codec.Pack(gasPriceArgs, maxGasPrice)
}

// GasPriceTrigger 在 gas 价格不高于上限时触发。
type GasPriceTrigger struct {
	source GasPriceSource
}

// NewGasPriceTrigger 创建 gas 价格触发器。
func NewGasPriceTrigger(source GasPriceSource) *GasPriceTrigger {
	return &GasPriceTrigger{source: source}
}

// IsTriggered 实现 trigger.Trigger。
func (g *GasPriceTrigger) IsTriggered(ctx context.Context, _ ledger.Tx, _, subData []byte) (bool, error) {
	values, err := codec.Unpack(gasPriceArgs, subData)
	if err != nil {
		return false, trigger.InvalidSubData(GasPriceTriggerName, err)
	}
	limit, err := values.Uint256(0)
	if err != nil {
		return false, trigger.InvalidSubData(GasPriceTriggerName, err)
	}
	price, err := g.source.SuggestGasPrice(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", GasPriceTriggerName, err)
	}
	current, overflow := uint256.FromBig(price)
	if overflow {
		return false, nil
	}
	return !current.Gt(limit), nil
}
