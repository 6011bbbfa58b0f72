package kafka

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchcore/domain/event"
	"matchcore/domain/instrument"
	"matchcore/domain/orderbook"
)

func TestDecode_Order(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"order","user_id":9,"client_order_id":"c-9","side":"sell",
		"instrument_id":1,"amount":"0.5","price":"41000.25"}`))
	require.NoError(t, err)

	o, ok := ev.(event.OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, orderbook.Sell, o.Side)
	assert.Equal(t, "c-9", o.ClientOrderID)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("41000.25")))
}

func TestDecode_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{`,
		"unknown type":  `{"type":"withdraw","user_id":1,"amount":"1"}`,
		"bad side":      `{"type":"order","side":"HOLD","amount":"1","price":"1"}`,
		"missing price": `{"type":"order","side":"BUY","amount":"1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.ErrorIs(t, err, ErrBadCommand)
		})
	}
}

func TestEncodeDecode_Deposit(t *testing.T) {
	body, err := EncodeDeposit(event.Deposit{UserID: 3, AssetID: 2, Amount: decimal.RequireFromString("12.5")})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"amount":"12.5"`)

	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.(event.Deposit).AssetID)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestCommandProducer_KeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := &CommandProducer{writer: w}

	err := p.SubmitOrder(context.Background(), event.OrderPlaced{
		UserID: 42, ClientOrderID: "x", Side: orderbook.Buy, InstrumentID: 1,
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	err = p.SubmitDeposit(context.Background(), event.Deposit{UserID: 1, AssetID: 1, Amount: decimal.Zero})
	assert.ErrorIs(t, err, event.ErrInvalidDeposit)
	assert.Len(t, w.msgs, 1)
}

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeEngine struct {
	orders   []event.OrderPlaced
	deposits []event.Deposit
	refuse   error
}

func (e *fakeEngine) SubmitOrder(_ context.Context, o event.OrderPlaced) error {
	if e.refuse != nil {
		return e.refuse
	}
	if err := o.Validate(); err != nil {
		return err
	}
	e.orders = append(e.orders, o)
	return nil
}

func (e *fakeEngine) SubmitDeposit(_ context.Context, d event.Deposit) error {
	if e.refuse != nil {
		return e.refuse
	}
	e.deposits = append(e.deposits, d)
	return nil
}

func mustOrder(t *testing.T, id string) []byte {
	t.Helper()
	return mustOrderAt(t, id, 1, "1", "10")
}

func mustOrderAt(t *testing.T, id string, instrumentID int64, amount, price string) []byte {
	t.Helper()
	b, err := EncodeOrder(event.OrderPlaced{
		UserID: 1, ClientOrderID: id, Side: orderbook.Buy, InstrumentID: instrumentID,
		Amount: decimal.RequireFromString(amount), Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return b
}

func testInstruments(t *testing.T) *instrument.Directory {
	t.Helper()
	dir, err := instrument.NewDirectory([]instrument.Instrument{{
		ID: 1, Symbol: "BTC-USDT", BaseAssetID: 1, QuoteAssetID: 2, PricePrecision: 2,
		MinAmount: decimal.RequireFromString("0.01"), TickSize: decimal.RequireFromString("0.5"),
		Status: instrument.StatusActive,
	}})
	require.NoError(t, err)
	return dir
}

func TestConsumer_SubmitsAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: mustOrder(t, "a")},
		{Offset: 2, Value: []byte("garbage")},
		{Offset: 3, Value: mustOrder(t, "")},
		{Offset: 4, Value: []byte(`{"type":"deposit","user_id":1,"asset_id":2,"amount":"5"}`)},
	}}
	eng := &fakeEngine{}
	c := &Consumer{reader: r, engine: eng, instruments: testInstruments(t), log: zap.NewNop()}

	err := c.Run(context.Background())
	require.Error(t, err, "fake reader ends with a fetch error")
	assert.Len(t, eng.orders, 1)
	assert.Len(t, eng.deposits, 1)
	assert.Equal(t, []int64{1, 2, 3, 4}, r.committed)
}

func TestConsumer_StopsWithoutCommitWhenEngineRefuses(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 7, Value: mustOrder(t, "a")}}}
	eng := &fakeEngine{refuse: errors.New("engine halted")}
	c := &Consumer{reader: r, engine: eng, instruments: testInstruments(t), log: zap.NewNop()}

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine halted")
	assert.Empty(t, r.committed)
}

func TestConsumer_AppliesInstrumentRules(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: mustOrderAt(t, "ok", 1, "1", "100.5")},
		{Offset: 2, Value: mustOrderAt(t, "off-tick", 1, "1", "100.25")},
		{Offset: 3, Value: mustOrderAt(t, "tiny", 1, "0.001", "100")},
		{Offset: 4, Value: mustOrderAt(t, "elsewhere", 9, "0.001", "100.25")},
	}}
	eng := &fakeEngine{}
	c := &Consumer{reader: r, engine: eng, instruments: testInstruments(t), log: zap.NewNop()}

	require.Error(t, c.Run(context.Background()))
	require.Len(t, eng.orders, 2)
	assert.Equal(t, "ok", eng.orders[0].ClientOrderID)
	assert.Equal(t, "elsewhere", eng.orders[1].ClientOrderID, "unknown instruments are left to the engine")
	assert.Equal(t, []int64{1, 2, 3, 4}, r.committed)
}
