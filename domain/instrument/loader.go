package instrument

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	ID             int64  `yaml:"id"`
	Symbol         string `yaml:"symbol"`
	Name           string `yaml:"name"`
	BaseAssetID    int64  `yaml:"base_asset_id"`
	QuoteAssetID   int64  `yaml:"quote_asset_id"`
	PricePrecision int32  `yaml:"price_precision"`
	MinAmount      string `yaml:"min_amount"`
	TickSize       string `yaml:"tick_size"`
	Status         string `yaml:"status"`
}

type fileDoc struct {
	Instruments []fileEntry `yaml:"instruments"`
}

// LoadFile reads an instrument seed file:
//
//	instruments:
//	  - id: 1
//	    symbol: BTC-USDT
//	    base_asset_id: 1
//	    quote_asset_id: 2
//	    price_precision: 2
//	    min_amount: "0.0001"
//	    tick_size: "0.01"
//	    status: ACTIVE
func LoadFile(path string) ([]Instrument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read instruments %s", path)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]Instrument, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode instruments")
	}

	out := make([]Instrument, 0, len(doc.Instruments))
	for _, e := range doc.Instruments {
		minAmount, err := decimal.NewFromString(e.MinAmount)
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %s: min_amount", e.Symbol)
		}
		tick, err := decimal.NewFromString(e.TickSize)
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %s: tick_size", e.Symbol)
		}
		status := StatusActive
		if e.Status != "" {
			if status, err = ParseStatus(e.Status); err != nil {
				return nil, err
			}
		}
		name := e.Name
		if name == "" {
			name = e.Symbol
		}
		out = append(out, Instrument{
			ID:             e.ID,
			Symbol:         e.Symbol,
			Name:           name,
			BaseAssetID:    e.BaseAssetID,
			QuoteAssetID:   e.QuoteAssetID,
			PricePrecision: e.PricePrecision,
			MinAmount:      minAmount,
			TickSize:       tick,
			Status:         status,
		})
	}
	return out, nil
}
