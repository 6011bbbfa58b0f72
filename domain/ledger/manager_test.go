package ledger

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/domain/instrument"
	"matchcore/domain/orderbook"
)

const (
	base  int64 = 10
	quote int64 = 20
)

var btc = instrument.Instrument{ID: 1, Symbol: "BTC-USDT", BaseAssetID: base, QuoteAssetID: quote}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func assertBalance(t *testing.T, m *Manager, user, asset int64, avail, locked string) {
	t.Helper()
	b := m.Balance(user, asset)
	assert.True(t, b.Available.Equal(d(avail)), "user %d asset %d available: %s want %s", user, asset, b.Available, avail)
	assert.True(t, b.Locked.Equal(d(locked)), "user %d asset %d locked: %s want %s", user, asset, b.Locked, locked)
}

func TestDeposit(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Deposit(1, quote, d("100")))
	require.NoError(t, m.Deposit(1, quote, d("0")))
	assertBalance(t, m, 1, quote, "100", "0")

	err := m.Deposit(1, quote, d("-1"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
	assertBalance(t, m, 1, quote, "100", "0")
}

func TestTryLockFunds(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Deposit(1, quote, d("50")))

	assert.False(t, m.TryLockFunds(1, quote, d("50.01")))
	assertBalance(t, m, 1, quote, "50", "0")

	assert.True(t, m.TryLockFunds(1, quote, d("50")))
	assertBalance(t, m, 1, quote, "0", "50")

	assert.False(t, m.TryLockFunds(2, quote, d("1")), "unknown user has nothing")
	assert.False(t, m.TryLockFunds(1, quote, d("-1")))
}

func TestUnlock(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Deposit(1, quote, d("10")))
	require.True(t, m.TryLockFunds(1, quote, d("10")))

	require.NoError(t, m.Unlock(1, quote, d("4")))
	assertBalance(t, m, 1, quote, "4", "6")

	err := m.Unlock(1, quote, d("7"))
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
	assertBalance(t, m, 1, quote, "4", "6")
}

func TestSettleTrade_BuyTaker(t *testing.T) {
	m := NewManager()
	// maker 2 rests a sell of 1 base, taker 1 buys at 50
	require.NoError(t, m.Deposit(2, base, d("2")))
	require.True(t, m.TryLockFunds(2, base, d("1")))
	require.NoError(t, m.Deposit(1, quote, d("100")))
	require.True(t, m.TryLockFunds(1, quote, d("50")))

	err := m.SettleTrade(orderbook.Trade{
		InstrumentID: 1, MakerUserID: 2, TakerUserID: 1, TakerSide: orderbook.Buy,
		Price: d("50"), Quantity: d("1"),
	}, btc)
	require.NoError(t, err)

	assertBalance(t, m, 1, base, "1", "0")
	assertBalance(t, m, 1, quote, "50", "0")
	assertBalance(t, m, 2, base, "1", "0")
	assertBalance(t, m, 2, quote, "50", "0")
}

func TestSettleTrade_SellTaker(t *testing.T) {
	m := NewManager()
	// maker 1 rests a buy of 2 @ 10, taker 2 sells 0.5
	require.NoError(t, m.Deposit(1, quote, d("20")))
	require.True(t, m.TryLockFunds(1, quote, d("20")))
	require.NoError(t, m.Deposit(2, base, d("0.5")))
	require.True(t, m.TryLockFunds(2, base, d("0.5")))

	err := m.SettleTrade(orderbook.Trade{
		MakerUserID: 1, TakerUserID: 2, TakerSide: orderbook.Sell,
		Price: d("10"), Quantity: d("0.5"),
	}, btc)
	require.NoError(t, err)

	assertBalance(t, m, 1, quote, "0", "15")
	assertBalance(t, m, 1, base, "0.5", "0")
	assertBalance(t, m, 2, base, "0", "0")
	assertBalance(t, m, 2, quote, "5", "0")
}

func TestSettleTrade_InsufficientLockIsAtomic(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Deposit(1, quote, d("100")))
	require.True(t, m.TryLockFunds(1, quote, d("100")))
	// seller never locked base

	err := m.SettleTrade(orderbook.Trade{
		MakerUserID: 2, TakerUserID: 1, TakerSide: orderbook.Buy,
		Price: d("50"), Quantity: d("1"),
	}, btc)
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))

	assertBalance(t, m, 1, quote, "0", "100")
	assertBalance(t, m, 1, base, "0", "0")
	assertBalance(t, m, 2, quote, "0", "0")
}

func TestTotalsConservedAcrossSettlement(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Deposit(1, quote, d("1000")))
	require.NoError(t, m.Deposit(2, base, d("3")))
	require.True(t, m.TryLockFunds(1, quote, d("300")))
	require.True(t, m.TryLockFunds(2, base, d("3")))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.SettleTrade(orderbook.Trade{
			MakerUserID: 2, TakerUserID: 1, TakerSide: orderbook.Buy,
			Price: d("99.5"), Quantity: d("1"),
		}, btc))
	}

	totals := m.Totals()
	assert.True(t, totals[quote].Equal(d("1000")))
	assert.True(t, totals[base].Equal(d("3")))

	snap := m.Snapshot()
	assert.True(t, snap[1][base].Available.Equal(d("3")))
	assert.True(t, snap[1][quote].Locked.Equal(d("1.5")))
}
