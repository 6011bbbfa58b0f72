package journal

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"matchcore/domain/event"
	"matchcore/domain/orderbook"
)

/*
Record framing (big-endian):

	[length:4][type:1][payload:length-1]

length counts everything after itself. Payloads:

	ORDER_NEW        userId:8 clientOrderId:str side:1 instrumentId:8 amount:str price:str
	BALANCE_DEPOSIT  userId:8 assetId:8 amount:str

str is [len:4][utf-8 bytes]. Decimals travel as their canonical text so
they round-trip exactly.
*/

const (
	headerSize = 4

	// MaxRecordSize bounds the length field; anything larger on disk is
	// corruption, anything larger on append is refused.
	MaxRecordSize = 64 << 10

	writeBufferSize = 4096
)

var (
	ErrUnknownEventType = errors.New("unknown journal event type")
	ErrCorruptRecord    = errors.New("corrupt journal record")
	ErrRecordTooLarge   = errors.New("journal record too large")
)

var order = binary.BigEndian

// AppendRecord appends the framed encoding of ev to dst.
func AppendRecord(dst []byte, ev event.Event) ([]byte, error) {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = append(dst, byte(ev.EventType()))

	switch e := ev.(type) {
	case event.OrderPlaced:
		dst = order.AppendUint64(dst, uint64(e.UserID))
		dst = appendString(dst, e.ClientOrderID)
		dst = append(dst, byte(e.Side))
		dst = order.AppendUint64(dst, uint64(e.InstrumentID))
		dst = appendString(dst, e.Amount.String())
		dst = appendString(dst, e.Price.String())
	case event.Deposit:
		dst = order.AppendUint64(dst, uint64(e.UserID))
		dst = order.AppendUint64(dst, uint64(e.AssetID))
		dst = appendString(dst, e.Amount.String())
	default:
		return dst[:start], errors.Wrapf(ErrUnknownEventType, "%T", ev)
	}

	n := len(dst) - start - headerSize
	if n > MaxRecordSize {
		return dst[:start], errors.Wrapf(ErrRecordTooLarge, "%d bytes", n)
	}
	order.PutUint32(dst[start:], uint32(n))
	return dst, nil
}

// RecordSize returns the length field ev's record would carry.
func RecordSize(ev event.Event) (int, error) {
	switch e := ev.(type) {
	case event.OrderPlaced:
		return 1 + 8 + strSize(e.ClientOrderID) + 1 + 8 + strSize(e.Amount.String()) + strSize(e.Price.String()), nil
	case event.Deposit:
		return 1 + 8 + 8 + strSize(e.Amount.String()), nil
	default:
		return 0, errors.Wrapf(ErrUnknownEventType, "%T", ev)
	}
}

// CheckSize fails with ErrRecordTooLarge when Append would refuse ev.
func CheckSize(ev event.Event) error {
	n, err := RecordSize(ev)
	if err != nil {
		return err
	}
	if n > MaxRecordSize {
		return errors.Wrapf(ErrRecordTooLarge, "%d bytes", n)
	}
	return nil
}

func strSize(s string) int { return 4 + len(s) }

func appendString(dst []byte, s string) []byte {
	dst = order.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// Decode parses the body of one record: the type byte plus payload, without
// the length prefix.
func Decode(body []byte) (event.Event, error) {
	if len(body) == 0 {
		return nil, errors.Wrap(ErrCorruptRecord, "empty record")
	}
	r := &payloadReader{buf: body[1:]}

	var ev event.Event
	switch t := event.Type(body[0]); t {
	case event.TypeOrderNew:
		o := event.OrderPlaced{}
		o.UserID = r.readInt64()
		o.ClientOrderID = r.readString()
		o.Side = orderbook.Side(r.readByte())
		o.InstrumentID = r.readInt64()
		o.Amount = r.readDecimal()
		o.Price = r.readDecimal()
		if r.err == nil && !o.Side.Valid() {
			r.err = errors.Wrapf(ErrCorruptRecord, "side byte %d", o.Side)
		}
		ev = o
	case event.TypeBalanceDeposit:
		dep := event.Deposit{}
		dep.UserID = r.readInt64()
		dep.AssetID = r.readInt64()
		dep.Amount = r.readDecimal()
		ev = dep
	default:
		return nil, errors.Wrapf(ErrUnknownEventType, "tag %d (%s)", body[0], t)
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, errors.Wrapf(ErrCorruptRecord, "%d trailing bytes", len(r.buf))
	}
	return ev, nil
}

// payloadReader keeps the first error and turns every later read into a
// no-op, so decoders can read field by field and check once.
type payloadReader struct {
	buf []byte
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = errors.Wrapf(ErrCorruptRecord, "need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *payloadReader) readByte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *payloadReader) readInt64() int64 {
	if b := r.take(8); b != nil {
		return int64(order.Uint64(b))
	}
	return 0
}

func (r *payloadReader) readString() string {
	b := r.take(4)
	if r.err != nil {
		return ""
	}
	n := order.Uint32(b)
	if n > math.MaxInt32 {
		r.err = errors.Wrapf(ErrCorruptRecord, "string length %d", n)
		return ""
	}
	s := r.take(int(n))
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(s) {
		r.err = errors.Wrap(ErrCorruptRecord, "string is not utf-8")
		return ""
	}
	return string(s)
}

func (r *payloadReader) readDecimal() decimal.Decimal {
	s := r.readString()
	if r.err != nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		r.err = errors.Wrapf(ErrCorruptRecord, "decimal %q: %v", s, err)
		return decimal.Zero
	}
	return v
}
