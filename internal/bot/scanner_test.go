package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"Recipe-Chain/internal/model"
)

func TestScannerPlansEnabledSubsOnce(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	require.NoError(t, index.Put(ctx, IndexedSub{SubID: 1, Enabled: true, Sub: model.StrategySub{StrategyOrBundleID: 0}}))
	require.NoError(t, index.Put(ctx, IndexedSub{SubID: 2, Enabled: true, Sub: model.StrategySub{StrategyOrBundleID: 5}}))
	require.NoError(t, index.Put(ctx, IndexedSub{SubID: 3, Enabled: false, Sub: model.StrategySub{StrategyOrBundleID: 0}}))

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	planner := NewStaticPlanner([]Plan{{
		StrategyOrBundleID: 0,
		TriggerCallData:    []hexutil.Bytes{{}},
		ActionsCallData:    []hexutil.Bytes{{0x01}},
	}})
	scanner, err := NewScanner("*/30 * * * * *", index, planner, service)
	require.NoError(t, err)

	n, err := scanner.ScanOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n, "only sub 1 is enabled and planned")

	// 上一轮作业仍在排队，本轮不重复提交。
	n, err = scanner.ScanOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	jobID := <-queue.ch
	require.NoError(t, store.MarkSkipped(ctx, jobID, "TRIGGER_NOT_ACTIVE", "not yet"))
	n, err = scanner.ScanOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n, "finished jobs free the subscription for the next round")

	job, err := store.Get(ctx, <-queue.ch)
	require.NoError(t, err)
	require.Equal(t, uint64(1), job.SubID)
	require.Equal(t, []hexutil.Bytes{{0x01}}, job.ActionsCallData)
}

func TestConcurrentScansSubmitOneJobPerSub(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	require.NoError(t, index.Put(ctx, IndexedSub{SubID: 7, Enabled: true, Sub: model.StrategySub{StrategyOrBundleID: 0}}))

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, 3)
	planner := NewStaticPlanner([]Plan{{StrategyOrBundleID: 0, ActionsCallData: []hexutil.Bytes{{0x01}}}})
	scanner, err := NewScanner("@every 1s", index, planner, service)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := scanner.ScanOnce(ctx)
			if err != nil {
				t.Errorf("scan: %v", err)
			}
			total.Add(int64(n))
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), total.Load())
	require.Len(t, queue.ch, 1)
}

func TestScannerRejectsBadSchedule(t *testing.T) {
	_, err := NewScanner("every now and then", NewMemoryIndex(), NewStaticPlanner(nil), nil)
	require.Error(t, err)
}
