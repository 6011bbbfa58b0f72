// Package event defines the journaled domain events. The set is closed:
// OrderPlaced and Deposit are the only variants the journal and the replay
// path understand.
package event

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"matchcore/domain/orderbook"
)

// Type is the discriminant byte written in front of every journal payload.
type Type uint8

const (
	TypeOrderNew        Type = 1
	TypeOrderCancel     Type = 2 // reserved, no variant
	TypeBalanceDeposit  Type = 3
	TypeBalanceWithdraw Type = 4 // reserved, no variant
)

func (t Type) String() string {
	switch t {
	case TypeOrderNew:
		return "ORDER_NEW"
	case TypeOrderCancel:
		return "ORDER_CANCEL"
	case TypeBalanceDeposit:
		return "BALANCE_DEPOSIT"
	case TypeBalanceWithdraw:
		return "BALANCE_WITHDRAW"
	default:
		return "UNKNOWN"
	}
}

type Event interface {
	EventType() Type
	sealed()
}

// OrderPlaced is an accepted limit order exactly as it was submitted.
type OrderPlaced struct {
	UserID        int64
	ClientOrderID string
	Side          orderbook.Side
	InstrumentID  int64
	Amount        decimal.Decimal
	Price         decimal.Decimal
}

func (OrderPlaced) EventType() Type { return TypeOrderNew }
func (OrderPlaced) sealed()         {}

// Text bounds keep every valid event well inside one journal record.
const (
	MaxClientOrderIDLength = 64
	MaxDecimalTextLength   = 64
)

var ErrInvalidOrder = errors.New("invalid order")

func (o OrderPlaced) Validate() error {
	switch {
	case strings.TrimSpace(o.ClientOrderID) == "":
		return errors.Wrap(ErrInvalidOrder, "client order id is required")
	case len(o.ClientOrderID) > MaxClientOrderIDLength:
		return errors.Wrapf(ErrInvalidOrder, "client order id longer than %d bytes", MaxClientOrderIDLength)
	case !o.Side.Valid():
		return errors.Wrapf(ErrInvalidOrder, "side %d", o.Side)
	case !o.Amount.IsPositive():
		return errors.Wrapf(ErrInvalidOrder, "amount %s must be positive", o.Amount)
	case !o.Price.IsPositive():
		return errors.Wrapf(ErrInvalidOrder, "price %s must be positive", o.Price)
	case tooLong(o.Amount), tooLong(o.Price):
		return errors.Wrapf(ErrInvalidOrder, "decimal text longer than %d characters", MaxDecimalTextLength)
	}
	return nil
}

type Deposit struct {
	UserID  int64
	AssetID int64
	Amount  decimal.Decimal
}

func (Deposit) EventType() Type { return TypeBalanceDeposit }
func (Deposit) sealed()         {}

var ErrInvalidDeposit = errors.New("invalid deposit")

func (d Deposit) Validate() error {
	if !d.Amount.IsPositive() {
		return errors.Wrapf(ErrInvalidDeposit, "amount %s must be positive", d.Amount)
	}
	if tooLong(d.Amount) {
		return errors.Wrapf(ErrInvalidDeposit, "amount text longer than %d characters", MaxDecimalTextLength)
	}
	return nil
}

func tooLong(v decimal.Decimal) bool {
	return len(v.String()) > MaxDecimalTextLength
}
