package builtin

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"Recipe-Chain/internal/codec"
	"Recipe-Chain/internal/ledger"
	"Recipe-Chain/internal/trigger"
)

// TimestampTriggerName 是时间触发器的名称。
const TimestampTriggerName = "TimestampTrigger"

var timestampArgs = codec.MustArguments("uint256", "uint256")

// EncodeTimestamp 编码时间触发器的订阅参数。
func EncodeTimestamp(timestamp, interval uint64) ([]byte, error) {
	return codec.Pack(timestampArgs, uint256.NewInt(timestamp), uint256.NewInt(interval))
}

// DecodeTimestamp 解码时间触发器的订阅参数。
func DecodeTimestamp(subData []byte) (timestamp, interval uint64, err error) {
	values, err := codec.Unpack(timestampArgs, subData)
	if err != nil {
		return 0, 0, trigger.InvalidSubData(TimestampTriggerName, err)
	}
	ts, err := values.Uint256(0)
	if err != nil {
		return 0, 0, trigger.InvalidSubData(TimestampTriggerName, err)
	}
	iv, err := values.Uint256(1)
	if err != nil {
		return 0, 0, trigger.InvalidSubData(TimestampTriggerName, err)
	}
	if !ts.IsUint64() || !iv.IsUint64() {
		return 0, 0, trigger.InvalidSubData(TimestampTriggerName, errors.New("value exceeds uint64"))
	}
	return ts.Uint64(), iv.Uint64(), nil
}

// TimestampTrigger 在事务时间到达 timestamp 后触发，执行后 timestamp 前移 interval。
type TimestampTrigger struct{}

// IsTriggered 实现 trigger.Trigger。
func (TimestampTrigger) IsTriggered(_ context.Context, tx ledger.Tx, _, subData []byte) (bool, error) {
	timestamp, _, err := DecodeTimestamp(subData)
	if err != nil {
		return false, err
	}
	now := tx.Now().Unix()
	return now >= 0 && uint64(now) >= timestamp, nil
}

// IsChangeable 实现 trigger.Changeable。
func (TimestampTrigger) IsChangeable() bool { return true }

// ChangedSubData 实现 trigger.Changeable。
func (TimestampTrigger) ChangedSubData(subData []byte) ([]byte, error) {
	timestamp, interval, err := DecodeTimestamp(subData)
	if err != nil {
		return nil, err
	}
	next := timestamp + interval
	if next < timestamp {
		return nil, trigger.InvalidSubData(TimestampTriggerName, errors.New("next timestamp overflows"))
	}
	return EncodeTimestamp(next, interval)
}
