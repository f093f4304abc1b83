package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"Recipe-Chain/internal/model"
)

var strategySubArgs = mustTupleArguments([]abi.ArgumentMarshaling{
	{Name: "strategyOrBundleId", Type: "uint64"},
	{Name: "isBundle", Type: "bool"},
	{Name: "triggerData", Type: "bytes[]"},
	{Name: "subData", Type: "bytes32[]"},
})

// strategySubTuple 与 ABI 元组字段一一对应。
type strategySubTuple struct {
	StrategyOrBundleId uint64
	IsBundle           bool
	TriggerData        [][]byte
	SubData            [][32]byte
}

// EncodeSub 返回订阅参数元组的 ABI 编码。
func EncodeSub(sub model.StrategySub) ([]byte, error) {
	tuple := strategySubTuple{
		StrategyOrBundleId: sub.StrategyOrBundleID,
		IsBundle:           sub.IsBundle,
		TriggerData:        make([][]byte, len(sub.TriggerData)),
		SubData:            make([][32]byte, len(sub.SubData)),
	}
	for i, data := range sub.TriggerData {
		tuple.TriggerData[i] = []byte(data)
	}
	for i, word := range sub.SubData {
		tuple.SubData[i] = word
	}
	encoded, err := strategySubArgs.Pack(tuple)
	if err != nil {
		return nil, fmt.Errorf("encode strategy sub: %w", err)
	}
	return encoded, nil
}

// HashSub 计算订阅参数的 keccak256 完整性摘要。
func HashSub(sub model.StrategySub) (common.Hash, error) {
	encoded, err := EncodeSub(sub)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

func mustTupleArguments(components []abi.ArgumentMarshaling) abi.Arguments {
	tupleType, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(fmt.Sprintf("codec: build tuple type: %v", err))
	}
	return abi.Arguments{{Type: tupleType}}
}
