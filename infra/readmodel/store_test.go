package readmodel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/domain/event"
	"matchcore/domain/instrument"
	"matchcore/domain/orderbook"
	"matchcore/infra/journal"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "rm", "read.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveBatch_IgnoresRowsAlreadySynced(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	batch := []journal.Record{
		{Offset: 0, Event: event.Deposit{UserID: 7, AssetID: 2, Amount: decimal.RequireFromString("100.5")}},
		{Offset: 30, Event: event.OrderPlaced{
			UserID: 7, ClientOrderID: "c-1", Side: orderbook.Buy, InstrumentID: 1,
			Amount: decimal.RequireFromString("0.25"), Price: decimal.RequireFromString("40000.01"),
		}},
	}
	require.NoError(t, s.SaveBatch(ctx, batch))
	require.NoError(t, s.SaveBatch(ctx, batch))

	orders, deposits, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, int64(1), deposits)

	got, err := s.OrdersByUser(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c-1", got[0].ClientOrderID)
	assert.Equal(t, "BUY", got[0].Side)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("40000.01")))
	assert.Equal(t, int64(30), got[0].JournalOffset)

	deps, err := s.DepositsByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.True(t, deps[0].Amount.Equal(decimal.RequireFromString("100.5")))
}

func TestSaveBatch_Empty(t *testing.T) {
	s := openStore(t)
	assert.NoError(t, s.SaveBatch(context.Background(), nil))
}

func TestInstruments_SeedAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	btc := instrument.Instrument{
		ID: 1, Symbol: "BTC-USDT", Name: "Bitcoin", BaseAssetID: 1, QuoteAssetID: 2, PricePrecision: 2,
		MinAmount: decimal.RequireFromString("0.0001"), TickSize: decimal.RequireFromString("0.01"),
		Status: instrument.StatusActive,
	}
	require.NoError(t, s.SeedInstruments(ctx, []instrument.Instrument{btc}))

	btc.Status = instrument.StatusHalted
	require.NoError(t, s.SeedInstruments(ctx, []instrument.Instrument{btc}))

	list, err := s.Instruments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, instrument.StatusHalted, list[0].Status)
	assert.True(t, list[0].TickSize.Equal(btc.TickSize))

	_, err = instrument.NewDirectory(list)
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"}, nil)
	assert.Error(t, err)
}
