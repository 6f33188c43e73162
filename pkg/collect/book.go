package collect

import (
	"sort"
	"time"
)

// Side labels one half of an order book.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Level is one price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Book maintains the top-K levels per side for one symbol. Updates are
// last-write-wins by price; size 0 removes the level. Owned by a single
// invocation.
type Book struct {
	Symbol string

	depth int
	bids  []Level
	asks  []Level
}

// NewBook creates a book bounded to depth levels per side.
func NewBook(symbol string, depth int) *Book {
	if depth <= 0 {
		depth = 25
	}
	return &Book{Symbol: symbol, depth: depth}
}

// Update applies one level change.
func (b *Book) Update(side Side, price, size float64) {
	levels := &b.bids
	if side == Ask {
		levels = &b.asks
	}

	idx := -1
	for i, l := range *levels {
		if l.Price == price {
			idx = i
			break
		}
	}

	if size == 0 {
		if idx >= 0 {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
		return
	}
	if idx >= 0 {
		(*levels)[idx].Size = size
		return
	}

	*levels = append(*levels, Level{Price: price, Size: size})
	if side == Bid {
		sort.Slice(b.bids, func(i, j int) bool { return b.bids[i].Price > b.bids[j].Price })
	} else {
		sort.Slice(b.asks, func(i, j int) bool { return b.asks[i].Price < b.asks[j].Price })
	}
	// Trim the worst level once past depth.
	if len(*levels) > b.depth {
		*levels = (*levels)[:b.depth]
	}
}

// Bids returns the bid side, best (highest) first.
func (b *Book) Bids() []Level {
	return append([]Level(nil), b.bids...)
}

// Asks returns the ask side, best (lowest) first.
func (b *Book) Asks() []Level {
	return append([]Level(nil), b.asks...)
}

// BookSnapshot is the persisted and published top-of-book view.
type BookSnapshot struct {
	Symbol string    `json:"symbol"`
	Bids   []Level   `json:"bids"`
	Asks   []Level   `json:"asks"`
	At     time.Time `json:"at"`
}

// Snapshot captures the current book state.
func (b *Book) Snapshot(at time.Time) BookSnapshot {
	return BookSnapshot{
		Symbol: b.Symbol,
		Bids:   b.Bids(),
		Asks:   b.Asks(),
		At:     at,
	}
}
