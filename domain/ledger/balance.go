package ledger

import "github.com/shopspring/decimal"

// Balance is one user's holding of one asset. Both fields stay ≥ 0.
type Balance struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

func (b Balance) Equal(o Balance) bool {
	return b.Available.Equal(o.Available) && b.Locked.Equal(o.Locked)
}

func zero() *Balance {
	return &Balance{Available: decimal.Zero, Locked: decimal.Zero}
}
