package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"Recipe-Chain/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events []model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestUpdateRollsBackOnError(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewMemoryStore(WithPublisher(pub))
	ctx := context.Background()

	err := store.Update(ctx, func(tx Tx) error {
		return tx.SetBalance(tokenA, alice, uint256.NewInt(100))
	})
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	boom := errors.New("action reverted")
	err = store.Update(ctx, func(tx Tx) error {
		if err := tx.SetBalance(tokenA, alice, uint256.NewInt(1)); err != nil {
			return err
		}
		if _, err := tx.AppendStrategy(model.Strategy{Name: "lost"}); err != nil {
			return err
		}
		tx.Emit(model.Event{Name: "Lost"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected reverted error, got %v", err)
	}

	err = store.View(ctx, func(tx Tx) error {
		bal, _ := tx.Balance(tokenA, alice)
		if bal.Uint64() != 100 {
			t.Fatalf("balance leaked from reverted tx: %s", bal)
		}
		count, _ := tx.StrategyCount()
		if count != 0 {
			t.Fatalf("strategy leaked from reverted tx")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("events from reverted tx were published: %+v", pub.events)
	}
}

func TestCommittedEventsCarryTxID(t *testing.T) {
	pub := &recordingPublisher{}
	fixed := time.Unix(1700000000, 0)
	store := NewMemoryStore(WithPublisher(pub), WithClock(func() time.Time { return fixed }))

	var txID string
	err := store.Update(context.Background(), func(tx Tx) error {
		txID = tx.ID()
		if !tx.Now().Equal(fixed) {
			t.Fatalf("unexpected tx time %v", tx.Now())
		}
		tx.Emit(model.Event{Contract: "SubStorage", Name: "Subscribe"})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].TxID != txID {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	store := NewMemoryStore()
	err := store.View(context.Background(), func(tx Tx) error {
		return tx.SetFlag("x", true)
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestAppendOnlyRecordsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	mapping := [][]uint8{{0, 1}}
	err := store.Update(ctx, func(tx Tx) error {
		id, err := tx.AppendStrategy(model.Strategy{Name: "s", ParamMapping: mapping})
		if id != 0 {
			t.Fatalf("first id should be 0, got %d", id)
		}
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	mapping[0][1] = 9

	_ = store.View(ctx, func(tx Tx) error {
		s, err := tx.Strategy(0)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if s.ParamMapping[0][1] != 1 {
			t.Fatalf("stored strategy aliased caller slice")
		}
		if _, err := tx.Strategy(1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
}

func TestPutSubDoesNotLeakIntoPriorSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Update(ctx, func(tx Tx) error {
		_, err := tx.AppendSub(model.StoredSub{WalletAddr: alice, IsEnabled: true})
		return err
	})
	_ = store.Update(ctx, func(tx Tx) error {
		if err := tx.PutSub(0, model.StoredSub{WalletAddr: alice, IsEnabled: false}); err != nil {
			return err
		}
		return errors.New("revert")
	})
	_ = store.View(ctx, func(tx Tx) error {
		sub, _ := tx.Sub(0)
		if !sub.IsEnabled {
			t.Fatalf("reverted PutSub leaked")
		}
		return nil
	})
}

func TestPage(t *testing.T) {
	cases := []struct {
		total, page, per uint64
		start, end       uint64
	}{
		{10, 0, 3, 0, 3},
		{10, 3, 3, 9, 10},
		{10, 4, 3, 10, 10},
		{0, 0, 5, 0, 0},
		{10, 0, 0, 0, 0},
	}
	for _, c := range cases {
		start, end := Page(c.total, c.page, c.per)
		if start != c.start || end != c.end {
			t.Fatalf("Page(%d,%d,%d) = [%d,%d), want [%d,%d)", c.total, c.page, c.per, start, end, c.start, c.end)
		}
	}
}
