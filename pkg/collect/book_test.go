package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookLastWriteWins(t *testing.T) {
	b := NewBook("tBTCUSD", 25)

	b.Update(Bid, 100, 1)
	b.Update(Bid, 100, 3)
	b.Update(Bid, 100, 2.5)

	bids := b.Bids()
	require.Len(t, bids, 1)
	assert.Equal(t, 2.5, bids[0].Size)
}

func TestBookZeroSizeRemoves(t *testing.T) {
	b := NewBook("tBTCUSD", 25)

	b.Update(Ask, 101, 1)
	b.Update(Ask, 102, 2)
	b.Update(Ask, 101, 0)

	asks := b.Asks()
	require.Len(t, asks, 1)
	assert.Equal(t, 102.0, asks[0].Price)

	// Removing an absent level is a no-op.
	b.Update(Ask, 999, 0)
	assert.Len(t, b.Asks(), 1)
}

func TestBookSortedBestFirst(t *testing.T) {
	b := NewBook("tBTCUSD", 25)

	b.Update(Bid, 99, 1)
	b.Update(Bid, 101, 1)
	b.Update(Bid, 100, 1)
	b.Update(Ask, 104, 1)
	b.Update(Ask, 102, 1)
	b.Update(Ask, 103, 1)

	bids := b.Bids()
	assert.Equal(t, []float64{101, 100, 99}, []float64{bids[0].Price, bids[1].Price, bids[2].Price})

	asks := b.Asks()
	assert.Equal(t, []float64{102, 103, 104}, []float64{asks[0].Price, asks[1].Price, asks[2].Price})
}

func TestBookDepthTrim(t *testing.T) {
	b := NewBook("tBTCUSD", 3)

	for _, price := range []float64{95, 96, 97, 98, 99} {
		b.Update(Bid, price, 1)
	}

	bids := b.Bids()
	require.Len(t, bids, 3)
	// The best three survive.
	assert.Equal(t, 99.0, bids[0].Price)
	assert.Equal(t, 97.0, bids[2].Price)
}

func TestBookSnapshot(t *testing.T) {
	b := NewBook("tETHUSD", 10)
	b.Update(Bid, 10, 5)
	b.Update(Ask, 11, 4)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := b.Snapshot(now)

	assert.Equal(t, "tETHUSD", snap.Symbol)
	assert.Equal(t, now, snap.At)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)

	// Snapshot is detached from later updates.
	b.Update(Bid, 10, 0)
	assert.Len(t, snap.Bids, 1)
}
