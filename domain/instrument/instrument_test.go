package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
instruments:
  - id: 1
    symbol: btc-usdt
    base_asset_id: 1
    quote_asset_id: 2
    price_precision: 2
    min_amount: "0.001"
    tick_size: "0.5"
  - id: 2
    symbol: ETH-USDT
    base_asset_id: 3
    quote_asset_id: 2
    price_precision: 2
    min_amount: "0.01"
    tick_size: "0.01"
    status: halted
`

func load(t *testing.T) *Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	dir, err := NewDirectory(list)
	require.NoError(t, err)
	return dir
}

func TestDirectory_Lookups(t *testing.T) {
	dir := load(t)

	btc, ok := dir.GetBySymbol("Btc-Usdt")
	require.True(t, ok)
	assert.Equal(t, int64(1), btc.ID)
	assert.Equal(t, "BTC-USDT", btc.Symbol)

	_, ok = dir.GetByID(99)
	assert.False(t, ok)

	assert.True(t, dir.IsActive(1))
	assert.False(t, dir.IsActive(2))
	assert.False(t, dir.IsActive(99))

	base, ok := dir.BaseAssetID(2)
	require.True(t, ok)
	assert.Equal(t, int64(3), base)
	quote, _ := dir.QuoteAssetID(2)
	assert.Equal(t, int64(2), quote)

	assert.Len(t, dir.All(), 2)
	require.Len(t, dir.Active(), 1)
	assert.Equal(t, "BTC-USDT", dir.Active()[0].Symbol)
}

func TestDirectory_RejectsDuplicates(t *testing.T) {
	inst := Instrument{
		ID: 1, Symbol: "A-B", BaseAssetID: 1, QuoteAssetID: 2,
		MinAmount: decimal.NewFromInt(1), TickSize: decimal.NewFromInt(1), Status: StatusActive,
	}
	other := inst
	other.ID = 2
	other.Symbol = "a-b"

	_, err := NewDirectory([]Instrument{inst, other})
	assert.Error(t, err)
}

func TestValidateOrder(t *testing.T) {
	dir := load(t)
	btc, _ := dir.GetByID(1)
	d := decimal.RequireFromString

	assert.NoError(t, btc.ValidateOrder(d("0.001"), d("100.5")))
	assert.ErrorIs(t, btc.ValidateOrder(d("0.0001"), d("100")), ErrAmountBelowMinimum)
	assert.ErrorIs(t, btc.ValidateOrder(d("1"), d("100.25")), ErrPriceOffTick)
	assert.ErrorIs(t, btc.ValidateOrder(d("1"), d("100.505")), ErrPricePrecision)
	assert.ErrorIs(t, btc.ValidateOrder(d("0"), d("100")), ErrNonPositive)
}

func TestParse_BadDecimal(t *testing.T) {
	_, err := Parse([]byte("instruments:\n  - id: 1\n    symbol: X\n    min_amount: abc\n    tick_size: \"1\"\n"))
	assert.Error(t, err)
}
