package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MustArguments 按 Solidity 类型名构造参数列表，类型非法时 panic。
func MustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("codec: invalid abi type %q: %v", name, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Pack 编码参数。uint256 可以直接传入 *uint256.Int。
func Pack(args abi.Arguments, values ...any) ([]byte, error) {
	converted := make([]any, len(values))
	for i, value := range values {
		if u, ok := value.(*uint256.Int); ok {
			converted[i] = u.ToBig()
			continue
		}
		converted[i] = value
	}
	data, err := args.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("abi pack: %w", err)
	}
	return data, nil
}

// Values 是解码后的参数列表。
type Values []any

// Unpack 解码参数。
func Unpack(args abi.Arguments, data []byte) (Values, error) {
	values, err := args.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("abi unpack: %w", err)
	}
	if len(values) != len(args) {
		return nil, fmt.Errorf("abi unpack: want %d values, got %d", len(args), len(values))
	}
	return Values(values), nil
}

// Address 读取第 i 个 address 参数。
func (v Values) Address(i int) (common.Address, error) {
	if i < 0 || i >= len(v) {
		return common.Address{}, fmt.Errorf("argument %d out of range", i)
	}
	addr, ok := v[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("argument %d: want address, got %T", i, v[i])
	}
	return addr, nil
}

// Uint256 读取第 i 个 uint256 参数。
func (v Values) Uint256(i int) (*uint256.Int, error) {
	if i < 0 || i >= len(v) {
		return nil, fmt.Errorf("argument %d out of range", i)
	}
	raw, ok := v[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("argument %d: want uint256, got %T", i, v[i])
	}
	value, overflow := uint256.FromBig(raw)
	if overflow || raw.Sign() < 0 {
		return nil, fmt.Errorf("argument %d: value does not fit uint256", i)
	}
	return value, nil
}

// Uint8 读取第 i 个 uint8 参数。
func (v Values) Uint8(i int) (uint8, error) {
	if i < 0 || i >= len(v) {
		return 0, fmt.Errorf("argument %d out of range", i)
	}
	value, ok := v[i].(uint8)
	if !ok {
		return 0, fmt.Errorf("argument %d: want uint8, got %T", i, v[i])
	}
	return value, nil
}
