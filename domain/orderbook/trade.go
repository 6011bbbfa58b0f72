package orderbook

import "github.com/shopspring/decimal"

// Trade is one maker/taker execution. It is the effect applied to balances
// and is never journaled itself.
type Trade struct {
	InstrumentID int64

	MakerUserID  int64
	MakerOrderID string
	TakerUserID  int64
	TakerOrderID string
	TakerSide    Side

	// Price is always the maker's resting price.
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// QuoteAmount is quantity × price.
func (t Trade) QuoteAmount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

type MatchResult struct {
	Trades []Trade
	// Residual is the part of the incoming order left resting in the book,
	// nil when the order filled completely.
	Residual *Order
}

// Filled sums the executed quantity across all trades.
func (r MatchResult) Filled() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.Trades {
		total = total.Add(t.Quantity)
	}
	return total
}
