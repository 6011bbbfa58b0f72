package execution

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"matchcore/domain/orderbook"
)

type Kind string

const (
	KindAccepted  Kind = "ACCEPTED"
	KindRejected  Kind = "REJECTED"
	KindDeposited Kind = "DEPOSITED"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonDuplicate         Reason = "duplicate_client_order_id"
	ReasonUnknownInstrument Reason = "unknown_instrument"
	ReasonInactive          Reason = "instrument_inactive"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonRecordTooLarge    Reason = "record_too_large"
)

type Fill struct {
	MakerUserID  int64           `json:"maker_user_id"`
	MakerOrderID string          `json:"maker_order_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// Report tells the submitter what happened to one live command. Reports
// are produced after the outcome is final (journaled, or rejected without a
// journal entry) and never during replay.
type Report struct {
	Seq           uint64           `json:"seq"`
	Kind          Kind             `json:"kind"`
	Reason        Reason           `json:"reason,omitempty"`
	UserID        int64            `json:"user_id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	InstrumentID  int64            `json:"instrument_id,omitempty"`
	AssetID       int64            `json:"asset_id,omitempty"`
	Side          string           `json:"side,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Fills         []Fill           `json:"fills,omitempty"`
	Remaining     *decimal.Decimal `json:"remaining,omitempty"`
	JournalOffset int64            `json:"journal_offset"`
	Timestamp     int64            `json:"ts"`
}

func FillsFrom(trades []orderbook.Trade) []Fill {
	if len(trades) == 0 {
		return nil
	}
	out := make([]Fill, len(trades))
	for i, t := range trades {
		out[i] = Fill{
			MakerUserID:  t.MakerUserID,
			MakerOrderID: t.MakerOrderID,
			Price:        t.Price,
			Quantity:     t.Quantity,
		}
	}
	return out
}

func (r Report) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func Unmarshal(b []byte) (Report, error) {
	var r Report
	err := json.Unmarshal(b, &r)
	return r, err
}
