package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ID 是注册表中的 4 字节标识。
type ID [4]byte

// NameID 取名称 keccak256 摘要的前 4 个字节作为标识。
func NameID(name string) ID {
	var id ID
	copy(id[:], crypto.Keccak256([]byte(name))[:4])
	return id
}

// ParseID 解析 0x 前缀的十六进制标识。
func ParseID(raw string) (ID, error) {
	var id ID
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("invalid id %q: want 4 bytes, got %d", raw, len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

// String 返回 0x 前缀的十六进制形式。
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText 实现 encoding.TextMarshaler。
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Strategy 是创建后不可变的自动化模板。
type Strategy struct {
	Name         string         `json:"name"`
	Creator      common.Address `json:"creator"`
	TriggerIDs   []ID           `json:"trigger_ids"`
	ActionIDs    []ID           `json:"action_ids"`
	ParamMapping [][]uint8      `json:"param_mapping"`
	Continuous   bool           `json:"continuous"`
}

// Bundle 是一组共享触发器列表、互为备选的策略。
type Bundle struct {
	Creator     common.Address `json:"creator"`
	StrategyIDs []uint64       `json:"strategy_ids"`
}

// StrategySub 是订阅的完整参数，账本上只保存它的哈希。
type StrategySub struct {
	StrategyOrBundleID uint64          `json:"strategy_or_bundle_id"`
	IsBundle           bool            `json:"is_bundle"`
	TriggerData        []hexutil.Bytes `json:"trigger_data"`
	SubData            []common.Hash   `json:"sub_data"`
}

// Clone 深拷贝订阅参数。
func (s StrategySub) Clone() StrategySub {
	out := StrategySub{
		StrategyOrBundleID: s.StrategyOrBundleID,
		IsBundle:           s.IsBundle,
		TriggerData:        make([]hexutil.Bytes, len(s.TriggerData)),
		SubData:            append([]common.Hash(nil), s.SubData...),
	}
	for i, data := range s.TriggerData {
		out.TriggerData[i] = append([]byte(nil), data...)
	}
	return out
}

// StoredSub 是账本中保存的订阅记录。
type StoredSub struct {
	WalletAddr      common.Address `json:"wallet_addr"`
	IsEnabled       bool           `json:"is_enabled"`
	StrategySubHash common.Hash    `json:"strategy_sub_hash"`
}

// Entry 是时间锁注册表中的一条记录。
type Entry struct {
	ContractAddr        common.Address `json:"contract_addr"`
	WaitPeriod          uint64         `json:"wait_period"`
	ChangeStartTime     int64          `json:"change_start_time"`
	InContractChange    bool           `json:"in_contract_change"`
	InWaitPeriodChange  bool           `json:"in_wait_period_change"`
	PendingContractAddr common.Address `json:"pending_contract_addr"`
	PendingWaitPeriod   uint64         `json:"pending_wait_period"`
	PreviousAddr        common.Address `json:"previous_addr"`
	Exists              bool           `json:"exists"`
}

// Proxy 描述用户拥有的代理账户。
type Proxy struct {
	Address     common.Address   `json:"address"`
	Owner       common.Address   `json:"owner"`
	Permissions []common.Address `json:"permissions,omitempty"`
}

// Permitted 判断地址是否被授予代理执行权限。
func (p Proxy) Permitted(addr common.Address) bool {
	for _, granted := range p.Permissions {
		if granted == addr {
			return true
		}
	}
	return false
}

// Recipe 是一次性执行的有序动作列表，不会被持久化。
type Recipe struct {
	Name         string          `json:"name"`
	CallData     []hexutil.Bytes `json:"call_data"`
	SubData      []common.Hash   `json:"sub_data"`
	ActionIDs    []ID            `json:"action_ids"`
	ParamMapping [][]uint8       `json:"param_mapping"`
}

// Event 是账本提交后对外发布的结构化日志。
type Event struct {
	TxID     string         `json:"tx_id"`
	Contract string         `json:"contract"`
	Name     string         `json:"name"`
	Fields   map[string]any `json:"fields,omitempty"`
}
