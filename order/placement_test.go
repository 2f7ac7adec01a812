package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine/market"
	"quote-engine/strategy"
)

func bothSides() Plan {
	return Plan{
		Bid: SideDecision{Side: market.Bid, Outcome: Gone, Place: true, PriceInTicks: 99_900, SizeInBaseLots: 10},
		Ask: SideDecision{Side: market.Ask, Outcome: Gone, Place: true, PriceInTicks: 100_100, SizeInBaseLots: 9},
	}
}

func TestClientOrderIDUsesFirst16Bytes(t *testing.T) {
	var trader market.Address
	for i := range trader {
		trader[i] = byte(i)
	}
	cid := ClientOrderIDFor(trader)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f", cid.String())
}

func TestBuildSubmissionBatchForPostOnlyOrNonJoin(t *testing.T) {
	testCases := []struct {
		name     string
		behavior strategy.PriceImprovementBehavior
		postOnly bool
		batch    bool
	}{
		{name: "Join 非 post-only 走独立限价单", behavior: strategy.Join, postOnly: false, batch: false},
		{name: "Join post-only", behavior: strategy.Join, postOnly: true, batch: true},
		{name: "Ubermensch", behavior: strategy.Ubermensch, batch: true},
		{name: "Dime", behavior: strategy.Dime, batch: true},
		{name: "Ignore", behavior: strategy.Ignore, batch: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			state := newState(t, tc.behavior, tc.postOnly)
			sub, ok := BuildSubmission(state, bothSides())
			require.True(t, ok)
			assert.Equal(t, 2, sub.Len())
			if !tc.batch {
				assert.Nil(t, sub.Batch)
				require.Len(t, sub.Orders, 2)
				assert.Equal(t, market.Bid, sub.Orders[0].Side)
				assert.Equal(t, market.Ask, sub.Orders[1].Side)
				return
			}
			require.NotNil(t, sub.Batch)
			assert.False(t, sub.Batch.RejectPostOnly)
			assert.Equal(t, ClientOrderIDFor(maker), sub.Batch.ClientOrderID)
			require.Len(t, sub.Batch.Bids, 1)
			require.Len(t, sub.Batch.Asks, 1)
			assert.Equal(t, uint64(9), sub.Batch.Asks[0].SizeInBaseLots)
		})
	}
}

func TestBuildSubmissionNothingToPlace(t *testing.T) {
	plan := bothSides()
	plan.Bid.Place = false
	plan.Ask.Place = false
	_, ok := BuildSubmission(newState(t, strategy.Join, true), plan)
	assert.False(t, ok)

	plan.Ask.Place = true
	sub, ok := BuildSubmission(newState(t, strategy.Join, true), plan)
	require.True(t, ok)
	assert.Empty(t, sub.Batch.Bids)
	assert.Len(t, sub.Batch.Asks, 1)
}
