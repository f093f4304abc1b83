package codec

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AddressWord 将地址右对齐放入 32 字节字。
func AddressWord(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// WordAddress 取字的低 20 字节作为地址。
func WordAddress(word common.Hash) common.Address {
	return common.BytesToAddress(word[:])
}

// UintWord 将数值编码为大端 32 字节字。
func UintWord(v *uint256.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return common.Hash(v.Bytes32())
}

// WordUint 将 32 字节字解释为无符号整数。
func WordUint(word common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(word[:])
}
