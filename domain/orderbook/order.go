package orderbook

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Side values double as the journal's side byte.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side a resting counterparty sits on.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

var ErrInvalidSide = errors.New("invalid side")

// ParseSide accepts BUY/SELL in any case, plus BID/ASK.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "BID":
		return Buy, nil
	case "SELL", "ASK":
		return Sell, nil
	default:
		return 0, errors.Wrapf(ErrInvalidSide, "%q", v)
	}
}

// Order is a limit order. Only Quantity changes after creation, and only
// while matching.
type Order struct {
	ClientOrderID string
	UserID        int64
	InstrumentID  int64
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal

	next *Order
	prev *Order
}

// Read-only traversal helper
func (o *Order) Next() *Order {
	return o.next
}
