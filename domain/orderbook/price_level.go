package orderbook

import "github.com/shopspring/decimal"

// PriceLevel is a FIFO queue at a single price.
type PriceLevel struct {
	Price decimal.Decimal

	head *Order
	tail *Order

	TotalQty   decimal.Decimal
	OrderCount int
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, TotalQty: decimal.Zero}
}

func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty = p.TotalQty.Add(o.Quantity)
	p.OrderCount++
}

func (p *PriceLevel) PopHead() *Order {
	o := p.head
	if o == nil {
		return nil
	}

	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}

	o.next = nil
	o.prev = nil

	p.TotalQty = p.TotalQty.Sub(o.Quantity)
	p.OrderCount--

	return o
}

// fillHead reduces the head order by qty and dequeues it once nothing is left.
// qty must not exceed the head's remaining quantity.
func (p *PriceLevel) fillHead(qty decimal.Decimal) *Order {
	o := p.head
	o.Quantity = o.Quantity.Sub(qty)
	p.TotalQty = p.TotalQty.Sub(qty)
	if o.Quantity.Sign() == 0 {
		p.PopHead()
	}
	return o
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Read-only helper
func (p *PriceLevel) Head() *Order {
	return p.head
}
