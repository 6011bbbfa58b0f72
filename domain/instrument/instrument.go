package instrument

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusHalted      Status = "HALTED"
	StatusMaintenance Status = "MAINTENANCE"
	StatusDelisted    Status = "DELISTED"
)

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusActive, StatusHalted, StatusMaintenance, StatusDelisted:
		return s, nil
	default:
		return "", errors.Newf("unknown instrument status %q", v)
	}
}

const maxPrecision = 18

// Instrument is immutable after load.
type Instrument struct {
	ID             int64
	Symbol         string
	Name           string
	BaseAssetID    int64
	QuoteAssetID   int64
	PricePrecision int32
	MinAmount      decimal.Decimal
	TickSize       decimal.Decimal
	Status         Status
}

func (i Instrument) IsActive() bool {
	return i.Status == StatusActive
}

// Check validates static metadata. Symbols are normalised to upper case by
// the directory, not here.
func (i Instrument) Check() error {
	switch {
	case i.ID <= 0:
		return errors.Newf("instrument id must be positive, got %d", i.ID)
	case strings.TrimSpace(i.Symbol) == "":
		return errors.Newf("instrument %d: symbol is empty", i.ID)
	case i.PricePrecision < 0 || i.PricePrecision > maxPrecision:
		return errors.Newf("instrument %s: precision %d outside [0,%d]", i.Symbol, i.PricePrecision, maxPrecision)
	case !i.MinAmount.IsPositive():
		return errors.Newf("instrument %s: min amount must be positive", i.Symbol)
	case !i.TickSize.IsPositive():
		return errors.Newf("instrument %s: tick size must be positive", i.Symbol)
	case i.BaseAssetID == i.QuoteAssetID:
		return errors.Newf("instrument %s: base and quote asset are both %d", i.Symbol, i.BaseAssetID)
	}
	if _, err := ParseStatus(string(i.Status)); err != nil {
		return errors.Wrapf(err, "instrument %s", i.Symbol)
	}
	return nil
}

var (
	ErrAmountBelowMinimum = errors.New("amount below instrument minimum")
	ErrPriceOffTick       = errors.New("price is not a multiple of tick size")
	ErrPricePrecision     = errors.New("price exceeds instrument precision")
	ErrNonPositive        = errors.New("amount and price must be positive")
)

// ValidateOrder applies the per-instrument trading rules a gateway enforces
// before an order reaches the engine.
func (i Instrument) ValidateOrder(amount, price decimal.Decimal) error {
	if !amount.IsPositive() || !price.IsPositive() {
		return ErrNonPositive
	}
	if amount.LessThan(i.MinAmount) {
		return errors.Wrapf(ErrAmountBelowMinimum, "%s < %s", amount, i.MinAmount)
	}
	if !price.Equal(price.Truncate(i.PricePrecision)) {
		return errors.Wrapf(ErrPricePrecision, "%s has more than %d decimals", price, i.PricePrecision)
	}
	if !price.Mod(i.TickSize).IsZero() {
		return errors.Wrapf(ErrPriceOffTick, "%s, tick %s", price, i.TickSize)
	}
	return nil
}
