package ledger

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"matchcore/domain/instrument"
	"matchcore/domain/orderbook"
)

var ErrNegativeAmount = errors.New("amount must not be negative")

/*
Manager owns every balance in the exchange.

It is not safe for concurrent use: the matching engine is its only caller
and drives it from one goroutine. Balances are created lazily; an absent
entry reads as zero.

Consuming or unlocking more than is locked is an invariant violation and
comes back as an assertion failure (errors.HasAssertionFailure).
*/
type Manager struct {
	balances map[int64]map[int64]*Balance
}

func NewManager() *Manager {
	return &Manager{balances: make(map[int64]map[int64]*Balance)}
}

func (m *Manager) get(user, asset int64) *Balance {
	assets, ok := m.balances[user]
	if !ok {
		assets = make(map[int64]*Balance)
		m.balances[user] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = zero()
		assets[asset] = b
	}
	return b
}

// Balance returns a copy; zero for unknown user/asset pairs.
func (m *Manager) Balance(user, asset int64) Balance {
	if b, ok := m.balances[user][asset]; ok {
		return *b
	}
	return *zero()
}

func (m *Manager) Deposit(user, asset int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrapf(ErrNegativeAmount, "deposit %s", amount)
	}
	b := m.get(user, asset)
	b.Available = b.Available.Add(amount)
	return nil
}

// TryLockFunds moves amount from available to locked when available covers
// it. Nothing changes on false.
func (m *Manager) TryLockFunds(user, asset int64, amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	b := m.get(user, asset)
	if b.Available.LessThan(amount) {
		return false
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return true
}

// Unlock returns locked funds to available.
func (m *Manager) Unlock(user, asset int64, amount decimal.Decimal) error {
	b := m.get(user, asset)
	if err := checkLocked(b, user, asset, amount); err != nil {
		return err
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return nil
}

func checkLocked(b *Balance, user, asset int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrapf(ErrNegativeAmount, "locked amount %s", amount)
	}
	if b.Locked.LessThan(amount) {
		return errors.AssertionFailedf(
			"user %d asset %d: need %s locked, have %s", user, asset, amount, b.Locked)
	}
	return nil
}

// SettleTrade consumes each side's locked funds and credits the counter
// asset. Both sides are checked before either is touched, so a failed
// settlement leaves balances as they were.
func (m *Manager) SettleTrade(t orderbook.Trade, inst instrument.Instrument) error {
	base := t.Quantity
	quote := t.QuoteAmount()

	buyer, seller := t.TakerUserID, t.MakerUserID
	if t.TakerSide == orderbook.Sell {
		buyer, seller = t.MakerUserID, t.TakerUserID
	}

	buyerQuote := m.get(buyer, inst.QuoteAssetID)
	sellerBase := m.get(seller, inst.BaseAssetID)
	if err := checkLocked(buyerQuote, buyer, inst.QuoteAssetID, quote); err != nil {
		return errors.Wrapf(err, "settle %s/%s", t.MakerOrderID, t.TakerOrderID)
	}
	if err := checkLocked(sellerBase, seller, inst.BaseAssetID, base); err != nil {
		return errors.Wrapf(err, "settle %s/%s", t.MakerOrderID, t.TakerOrderID)
	}

	buyerQuote.Locked = buyerQuote.Locked.Sub(quote)
	sellerBase.Locked = sellerBase.Locked.Sub(base)

	buyerBase := m.get(buyer, inst.BaseAssetID)
	buyerBase.Available = buyerBase.Available.Add(base)
	sellerQuote := m.get(seller, inst.QuoteAssetID)
	sellerQuote.Available = sellerQuote.Available.Add(quote)
	return nil
}

// Totals sums available+locked per asset across all users.
func (m *Manager) Totals() map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, assets := range m.balances {
		for asset, b := range assets {
			cur, ok := out[asset]
			if !ok {
				cur = decimal.Zero
			}
			out[asset] = cur.Add(b.Total())
		}
	}
	return out
}

// Snapshot copies all non-zero balances, keyed user → asset.
func (m *Manager) Snapshot() map[int64]map[int64]Balance {
	out := make(map[int64]map[int64]Balance, len(m.balances))
	for user, assets := range m.balances {
		for asset, b := range assets {
			if b.Available.IsZero() && b.Locked.IsZero() {
				continue
			}
			if out[user] == nil {
				out[user] = make(map[int64]Balance)
			}
			out[user][asset] = *b
		}
	}
	return out
}
