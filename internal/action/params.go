package action

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/codec"
	xerrors "Recipe-Chain/internal/errors"
)

// 参数映射取值。
const (
	MappingLiteral      uint8 = 0
	MappingReturnFirst  uint8 = 1
	MappingReturnLast   uint8 = 127
	MappingSubFirst     uint8 = 128
	MappingSubLast      uint8 = 253
	MappingProxyAddress uint8 = 254
	MappingOwnerAddress uint8 = 255
)

const (
	CodeParamMappingOutOfRange xerrors.Code = "PARAM_MAPPING_OUT_OF_RANGE"
	CodeInvalidCallData        xerrors.Code = "INVALID_CALL_DATA"
	CodeDirectNotSupported     xerrors.Code = "DIRECT_CALL_NOT_SUPPORTED"
)

func init() {
	xerrors.Register(CodeParamMappingOutOfRange, xerrors.Attributes{
		Message:  "param mapping references a missing value",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeInvalidCallData, xerrors.Attributes{
		Message:  "action call data cannot be decoded",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeDirectNotSupported, xerrors.Attributes{
		Message:  "action cannot be called directly",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryAction,
	})
}

// Params 按参数映射把字面值替换为管道值、订阅数据或代理地址。
// 第 i 个映射对应动作输入的第 i 个参数，缺失的映射视为字面值。
type Params struct {
	env          Env
	mapping      []uint8
	subData      []common.Hash
	returnValues []common.Hash
}

// NewParams 创建参数解析器。
func NewParams(env Env, mapping []uint8, subData, returnValues []common.Hash) *Params {
	return &Params{env: env, mapping: mapping, subData: subData, returnValues: returnValues}
}

// Resolve 返回第 i 个参数最终的 32 字节值。
func (p *Params) Resolve(i int, literal common.Hash) (common.Hash, error) {
	if p == nil || i < 0 || i >= len(p.mapping) {
		return literal, nil
	}
	m := p.mapping[i]
	switch {
	case m == MappingLiteral:
		return literal, nil
	case m == MappingProxyAddress:
		return codec.AddressWord(p.env.Frame.Proxy), nil
	case m == MappingOwnerAddress:
		return codec.AddressWord(p.env.Frame.Owner), nil
	case m < MappingSubFirst:
		idx := int(m - MappingReturnFirst)
		if idx >= len(p.returnValues) {
			return common.Hash{}, outOfRange(i, m, "return value", idx, len(p.returnValues))
		}
		return p.returnValues[idx], nil
	default:
		idx := int(m - MappingSubFirst)
		if idx >= len(p.subData) {
			return common.Hash{}, outOfRange(i, m, "sub data", idx, len(p.subData))
		}
		return p.subData[idx], nil
	}
}

// Uint 解析数值参数。
func (p *Params) Uint(i int, literal *uint256.Int) (*uint256.Int, error) {
	word, err := p.Resolve(i, codec.UintWord(literal))
	if err != nil {
		return nil, err
	}
	return codec.WordUint(word), nil
}

// Address 解析地址参数。
func (p *Params) Address(i int, literal common.Address) (common.Address, error) {
	word, err := p.Resolve(i, codec.AddressWord(literal))
	if err != nil {
		return common.Address{}, err
	}
	return codec.WordAddress(word), nil
}

func outOfRange(param int, m uint8, kind string, idx, size int) error {
	return xerrors.New(CodeParamMappingOutOfRange,
		fmt.Sprintf("param %d mapping %d wants %s %d of %d", param, m, kind, idx, size),
		xerrors.WithMetadata("param", fmt.Sprint(param)))
}

// InvalidCallData 包装解码失败。
func InvalidCallData(name string, err error) error {
	return xerrors.Wrap(CodeInvalidCallData, err, name+": cannot decode call data")
}
