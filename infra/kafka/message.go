package kafka

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"matchcore/domain/event"
	"matchcore/domain/orderbook"
)

var ErrBadCommand = errors.New("malformed command message")

const (
	typeOrder   = "order"
	typeDeposit = "deposit"
)

// command is the JSON body of one intake message. Decimals travel as
// strings.
type command struct {
	Type          string           `json:"type"`
	UserID        int64            `json:"user_id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Side          string           `json:"side,omitempty"`
	InstrumentID  int64            `json:"instrument_id,omitempty"`
	AssetID       int64            `json:"asset_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         *decimal.Decimal `json:"price,omitempty"`
}

func EncodeOrder(o event.OrderPlaced) ([]byte, error) {
	price := o.Price
	return json.Marshal(command{
		Type:          typeOrder,
		UserID:        o.UserID,
		ClientOrderID: o.ClientOrderID,
		Side:          o.Side.String(),
		InstrumentID:  o.InstrumentID,
		Amount:        o.Amount,
		Price:         &price,
	})
}

func EncodeDeposit(d event.Deposit) ([]byte, error) {
	return json.Marshal(command{
		Type:    typeDeposit,
		UserID:  d.UserID,
		AssetID: d.AssetID,
		Amount:  d.Amount,
	})
}

// Decode turns a message body back into an event. Field validation is left
// to the engine's submit path.
func Decode(b []byte) (event.Event, error) {
	var c command
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode command"), ErrBadCommand)
	}

	switch c.Type {
	case typeOrder:
		side, err := orderbook.ParseSide(c.Side)
		if err != nil {
			return nil, errors.Mark(err, ErrBadCommand)
		}
		if c.Price == nil {
			return nil, errors.Wrap(ErrBadCommand, "order without price")
		}
		return event.OrderPlaced{
			UserID:        c.UserID,
			ClientOrderID: c.ClientOrderID,
			Side:          side,
			InstrumentID:  c.InstrumentID,
			Amount:        c.Amount,
			Price:         *c.Price,
		}, nil
	case typeDeposit:
		return event.Deposit{
			UserID:  c.UserID,
			AssetID: c.AssetID,
			Amount:  c.Amount,
		}, nil
	default:
		return nil, errors.Wrapf(ErrBadCommand, "type %q", c.Type)
	}
}

func userKey(user int64) []byte {
	return []byte(strconv.FormatInt(user, 10))
}
