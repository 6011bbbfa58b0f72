package orderbook

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// OrderBook is single-writer and deterministic.
//
// Both sides are kept best-price-first: bids descending, asks ascending,
// so Min() on either tree is the top of book.
type OrderBook struct {
	InstrumentID int64

	bids *btree.BTreeG[*PriceLevel]
	asks *btree.BTreeG[*PriceLevel]

	orders int
}

func New(instrumentID int64) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		InstrumentID: instrumentID,
		bids: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}, opts),
		asks: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price)
		}, opts),
	}
}

// Process matches o against the opposite side with price-time priority and
// rests whatever is left at o's own price. o is owned by the book afterwards:
// once fully filled it is recycled, so callers must not keep it.
func (b *OrderBook) Process(o *Order) MatchResult {
	var res MatchResult

	opposite := b.side(o.Side.Opposite())
	for o.Quantity.IsPositive() {
		best, ok := opposite.Min()
		if !ok || !crosses(o, best.Price) {
			break
		}

		maker := best.Head()
		qty := decimal.Min(o.Quantity, maker.Quantity)

		res.Trades = append(res.Trades, Trade{
			InstrumentID: b.InstrumentID,
			MakerUserID:  maker.UserID,
			MakerOrderID: maker.ClientOrderID,
			TakerUserID:  o.UserID,
			TakerOrderID: o.ClientOrderID,
			TakerSide:    o.Side,
			Price:        best.Price,
			Quantity:     qty,
		})

		o.Quantity = o.Quantity.Sub(qty)
		if best.fillHead(qty).Quantity.Sign() == 0 {
			b.orders--
			release(maker)
		}
		if best.Empty() {
			opposite.Delete(best)
		}
	}

	if o.Quantity.IsPositive() {
		b.rest(o)
		res.Residual = o
	} else {
		release(o)
	}
	return res
}

func crosses(o *Order, restingPrice decimal.Decimal) bool {
	if o.Side == Buy {
		return restingPrice.LessThanOrEqual(o.Price)
	}
	return restingPrice.GreaterThanOrEqual(o.Price)
}

func (b *OrderBook) rest(o *Order) {
	tree := b.side(o.Side)
	lvl, ok := tree.Get(&PriceLevel{Price: o.Price})
	if !ok {
		lvl = newPriceLevel(o.Price)
		tree.Set(lvl)
	}
	lvl.Enqueue(o)
	b.orders++
}

func (b *OrderBook) side(s Side) *btree.BTreeG[*PriceLevel] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// ---- read helpers ----

func (b *OrderBook) BestBid() (*PriceLevel, bool) {
	return b.bids.Min()
}

func (b *OrderBook) BestAsk() (*PriceLevel, bool) {
	return b.asks.Min()
}

// OrderCount is the number of resting orders on both sides.
func (b *OrderBook) OrderCount() int {
	return b.orders
}

// BidsWalk visits bid levels best to worst until fn returns false.
func (b *OrderBook) BidsWalk(fn func(*PriceLevel) bool) {
	b.bids.Scan(fn)
}

// AsksWalk visits ask levels best to worst until fn returns false.
func (b *OrderBook) AsksWalk(fn func(*PriceLevel) bool) {
	b.asks.Scan(fn)
}
