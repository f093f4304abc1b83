package action

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/wallet"
)

func TestParamsResolveEveryMappingKind(t *testing.T) {
	proxy := common.HexToAddress("0x1111")
	owner := common.HexToAddress("0x2222")
	env := Env{Frame: wallet.Frame{Proxy: proxy, Owner: owner}}
	returns := []common.Hash{codec.UintWord(uint256.NewInt(7)), codec.UintWord(uint256.NewInt(9))}
	sub := []common.Hash{codec.AddressWord(common.HexToAddress("0x3333"))}

	p := NewParams(env, []uint8{0, 2, 128, 254, 255}, sub, returns)

	v, err := p.Uint(0, uint256.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, uint64(5), v.Uint64())

	v, err = p.Uint(1, uint256.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, uint64(9), v.Uint64())

	addr, err := p.Address(2, common.Address{})
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x3333"), addr)

	addr, err = p.Address(3, common.Address{})
	require.NoError(t, err)
	require.Equal(t, proxy, addr)

	addr, err = p.Address(4, common.Address{})
	require.NoError(t, err)
	require.Equal(t, owner, addr)

	// 超出映射长度的参数按字面值处理。
	v, err = p.Uint(7, uint256.NewInt(11))
	require.NoError(t, err)
	require.Equal(t, uint64(11), v.Uint64())
}

func TestParamsOutOfRange(t *testing.T) {
	p := NewParams(Env{}, []uint8{3, 130}, nil, []common.Hash{{}})
	_, err := p.Uint(0, nil)
	require.Equal(t, CodeParamMappingOutOfRange, xerrors.CodeOf(err))
	_, err = p.Address(1, common.Address{})
	require.Equal(t, CodeParamMappingOutOfRange, xerrors.CodeOf(err))
	require.Equal(t, xerrors.CategoryAction, xerrors.CategoryOf(err))
}
