package model

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestNameIDIsKeccakPrefix(t *testing.T) {
	// keccak256("transfer(address,uint256)") starts with a9059cbb.
	id := NameID("transfer(address,uint256)")
	if id.String() != "0xa9059cbb" {
		t.Fatalf("unexpected id %s", id)
	}
	if NameID("PullToken") == NameID("SendToken") {
		t.Fatalf("distinct names should not collide")
	}
}

func TestIDTextEncoding(t *testing.T) {
	id := NameID("StrategyExecutorID")
	raw, err := json.Marshal(map[string]ID{"id": id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]ID
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["id"] != id {
		t.Fatalf("id changed through json: %s != %s", decoded["id"], id)
	}
	if _, err := ParseID("0x1234"); err == nil {
		t.Fatalf("short ids must be rejected")
	}
}

func TestStrategySubCloneIsDeep(t *testing.T) {
	sub := StrategySub{TriggerData: []hexutil.Bytes{{1, 2}}, SubData: []common.Hash{{9}}}
	clone := sub.Clone()
	clone.TriggerData[0][0] = 7
	clone.SubData[0][0] = 8
	if sub.TriggerData[0][0] != 1 || sub.SubData[0][0] != 9 {
		t.Fatalf("clone shares memory with original")
	}
}
