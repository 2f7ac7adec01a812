package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine/market"
	"quote-engine/order"
	"quote-engine/strategy"
)

func sampleState(trader byte) order.StrategyState {
	return order.StrategyState{
		Trader: market.Address{trader},
		Market: market.Address{0xAA},
		Bid:    order.OrderDescriptor{PriceInTicks: 99_900, SequenceNumber: ^uint64(12), InitialSizeInBaseLots: 50},
		Ask:    order.OrderDescriptor{PriceInTicks: math.MaxUint64 - 1, SequenceNumber: 13, InitialSizeInBaseLots: 40},

		LastUpdateHeight:      1 << 40,
		LastUpdateUnix:        1_700_000_000,
		QuoteEdgeInBps:        10,
		QuoteSizeInQuoteAtoms: 1_000_000,
		PostOnly:              true,
		Behavior:              strategy.Dime,
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(nil),
		"sqlite": sq,
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := sampleState(1)

			_, err := st.Load(ctx, s.Key())
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, st.Save(ctx, s), ErrNotFound)

			require.NoError(t, st.Create(ctx, s))
			assert.ErrorIs(t, st.Create(ctx, s), ErrExists)

			got, err := st.Load(ctx, s.Key())
			require.NoError(t, err)
			assert.Equal(t, s, got)

			s.Bid = order.OrderDescriptor{}
			s.LastUpdateHeight++
			s.Behavior = strategy.Ignore
			s.PostOnly = false
			require.NoError(t, st.Save(ctx, s))
			got, err = st.Load(ctx, s.Key())
			require.NoError(t, err)
			assert.Equal(t, s, got)

			require.NoError(t, st.Create(ctx, sampleState(2)))
			keys, err := st.Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, 2)
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	st, err := NewSQLite(path, nil)
	require.NoError(t, err)
	s := sampleState(3)
	require.NoError(t, st.Create(ctx, s))
	require.NoError(t, st.Close())

	st, err = NewSQLite(path, nil)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Load(ctx, s.Key())
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSQLiteRejectsCorruptBehavior(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	s := sampleState(4)
	require.NoError(t, st.Create(ctx, s))
	// 257 截成 uint8 恰好是 Join，必须整体拒绝
	for _, v := range []int64{257, -1, 4} {
		_, err = st.db.ExecContext(ctx, "UPDATE strategy_state SET behavior = ?", v)
		require.NoError(t, err)
		_, err = st.Load(ctx, s.Key())
		assert.ErrorIs(t, err, strategy.ErrInvalidBehavior, "behavior %d", v)
	}
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	events := 0
	var mu sync.Mutex
	st := NewMemory(func(string, map[string]interface{}) {
		mu.Lock()
		events++
		mu.Unlock()
	})
	for i := byte(0); i < 5; i++ {
		require.NoError(t, st.Create(ctx, sampleState(i)))
	}

	var wg sync.WaitGroup
	for i := byte(0); i < 5; i++ {
		wg.Add(1)
		go func(trader byte) {
			defer wg.Done()
			s := sampleState(trader)
			for j := 0; j < 100; j++ {
				s.LastUpdateHeight = uint64(j)
				_ = st.Save(ctx, s)
				_, _ = st.Load(ctx, s.Key())
			}
		}(i)
	}
	wg.Wait()

	got, err := st.Load(ctx, sampleState(4).Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got.LastUpdateHeight)
	assert.Equal(t, 5+500, events)
}
