package orderbook

import "github.com/shopspring/decimal"

type LevelView struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	Orders int
}

// Snapshot is an aggregated, depth-limited copy of the book. It shares no
// memory with the live book.
type Snapshot struct {
	InstrumentID int64
	Bids         []LevelView
	Asks         []LevelView
}

// Snapshot aggregates up to depth levels per side, best price first.
func (b *OrderBook) Snapshot(depth int) Snapshot {
	s := Snapshot{InstrumentID: b.InstrumentID}
	if depth <= 0 {
		return s
	}
	s.Bids = collect(b.BidsWalk, depth)
	s.Asks = collect(b.AsksWalk, depth)
	return s
}

func collect(walk func(func(*PriceLevel) bool), depth int) []LevelView {
	out := make([]LevelView, 0, depth)
	walk(func(lvl *PriceLevel) bool {
		out = append(out, LevelView{
			Price:  lvl.Price,
			Volume: lvl.TotalQty,
			Orders: lvl.OrderCount,
		})
		return len(out) < depth
	})
	return out
}
