package orderbook

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Pool is a typed object pool.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// orders is shared by every book. Orders return here once they leave a
// book fully filled; nothing outside the book may hold them by then.
var orders = NewPool(func() *Order { return &Order{} })

// NewOrder takes an order from the pool. Hand it to Process, which owns it
// from then on.
func NewOrder(clientOrderID string, userID, instrumentID int64, side Side, price, qty decimal.Decimal) *Order {
	o := orders.Get()
	o.ClientOrderID = clientOrderID
	o.UserID = userID
	o.InstrumentID = instrumentID
	o.Side = side
	o.Price = price
	o.Quantity = qty
	return o
}

func release(o *Order) {
	*o = Order{}
	orders.Put(o)
}
