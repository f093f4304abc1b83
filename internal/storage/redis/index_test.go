package redis

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	goredis "github.com/redis/go-redis/v9"

	"Recipe-Chain/internal/bot"
	"Recipe-Chain/internal/model"
)

func TestEncodeDecodeKeepsSubParameters(t *testing.T) {
	sub := bot.IndexedSub{
		SubID:   12,
		Proxy:   common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Hash:    common.HexToHash("0xabcd"),
		Enabled: true,
		Sub: model.StrategySub{
			StrategyOrBundleID: 3,
			IsBundle:           true,
			TriggerData:        []hexutil.Bytes{{0x01, 0x02}},
			SubData:            []common.Hash{common.HexToHash("0x05")},
		},
	}
	field, payload, err := encodeSub(sub)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if field != "12" {
		t.Fatalf("unexpected field %q", field)
	}
	decoded, err := decodeSub(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Hash != sub.Hash || decoded.Proxy != sub.Proxy || !decoded.Sub.IsBundle {
		t.Fatalf("round trip lost fields: %+v", decoded)
	}
	if len(decoded.Sub.TriggerData) != 1 || decoded.Sub.TriggerData[0][1] != 0x02 {
		t.Fatalf("trigger data lost: %+v", decoded.Sub.TriggerData)
	}
}

func TestEnabledSubsFiltersAndSorts(t *testing.T) {
	all := map[string]string{}
	for _, sub := range []bot.IndexedSub{
		{SubID: 9, Enabled: true},
		{SubID: 2, Enabled: false},
		{SubID: 4, Enabled: true},
	} {
		field, payload, err := encodeSub(sub)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		all[field] = payload
	}
	subs, err := enabledSubs(all)
	if err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if len(subs) != 2 || subs[0].SubID != 4 || subs[1].SubID != 9 {
		t.Fatalf("unexpected enabled set: %+v", subs)
	}

	all["7"] = "{"
	if _, err := enabledSubs(all); err == nil {
		t.Fatalf("expected corrupt payload to fail")
	}
}

func TestDefaultKey(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if key := NewIndexWithClient(client, "").Key(); key != defaultIndexKey {
		t.Fatalf("unexpected key %q", key)
	}
}
