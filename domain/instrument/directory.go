package instrument

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Directory is a read-only instrument cache. It is built once and never
// mutated, so lookups are safe from any goroutine.
type Directory struct {
	byID     map[int64]Instrument
	bySymbol map[string]Instrument
	ordered  []Instrument
}

func NewDirectory(list []Instrument) (*Directory, error) {
	d := &Directory{
		byID:     make(map[int64]Instrument, len(list)),
		bySymbol: make(map[string]Instrument, len(list)),
		ordered:  make([]Instrument, 0, len(list)),
	}
	for _, inst := range list {
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		if err := inst.Check(); err != nil {
			return nil, err
		}
		if _, dup := d.byID[inst.ID]; dup {
			return nil, errors.Newf("duplicate instrument id %d", inst.ID)
		}
		if _, dup := d.bySymbol[inst.Symbol]; dup {
			return nil, errors.Newf("duplicate instrument symbol %s", inst.Symbol)
		}
		d.byID[inst.ID] = inst
		d.bySymbol[inst.Symbol] = inst
		d.ordered = append(d.ordered, inst)
	}
	sort.Slice(d.ordered, func(i, j int) bool { return d.ordered[i].ID < d.ordered[j].ID })
	return d, nil
}

func (d *Directory) GetByID(id int64) (Instrument, bool) {
	inst, ok := d.byID[id]
	return inst, ok
}

// GetBySymbol is case-insensitive.
func (d *Directory) GetBySymbol(symbol string) (Instrument, bool) {
	inst, ok := d.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return inst, ok
}

func (d *Directory) IsActive(id int64) bool {
	inst, ok := d.byID[id]
	return ok && inst.IsActive()
}

func (d *Directory) BaseAssetID(id int64) (int64, bool) {
	inst, ok := d.byID[id]
	return inst.BaseAssetID, ok
}

func (d *Directory) QuoteAssetID(id int64) (int64, bool) {
	inst, ok := d.byID[id]
	return inst.QuoteAssetID, ok
}

// All returns every instrument ordered by id.
func (d *Directory) All() []Instrument {
	out := make([]Instrument, len(d.ordered))
	copy(out, d.ordered)
	return out
}

func (d *Directory) Active() []Instrument {
	out := make([]Instrument, 0, len(d.ordered))
	for _, inst := range d.ordered {
		if inst.IsActive() {
			out = append(out, inst)
		}
	}
	return out
}

func (d *Directory) Len() int {
	return len(d.ordered)
}
