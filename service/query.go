package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"matchcore/domain/ledger"
	"matchcore/domain/orderbook"
)

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// query runs fn on the worker, after everything queued before it.
func query[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var zero T
	q := queryCommand{
		fn:   func() any { return fn() },
		done: make(chan queryResult, 1),
	}
	if err := e.enqueue(q); err != nil {
		return zero, err
	}
	select {
	case r := <-q.done:
		if r.err != nil {
			return zero, r.err
		}
		return r.val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Flush returns once every command submitted before it has been processed.
func (e *Engine) Flush(ctx context.Context) error {
	_, err := query(ctx, e, func() struct{} { return struct{}{} })
	return err
}

// OrderBook returns an aggregated depth-limited view of one instrument's
// book. For monitoring only.
func (e *Engine) OrderBook(ctx context.Context, symbol string, depth int) (orderbook.Snapshot, error) {
	inst, ok := e.instruments.GetBySymbol(symbol)
	if !ok {
		return orderbook.Snapshot{}, errors.Wrapf(ErrUnknownSymbol, "%q", symbol)
	}

	return query(ctx, e, func() orderbook.Snapshot {
		if b, ok := e.books[inst.ID]; ok {
			return b.Snapshot(depth)
		}
		return orderbook.Snapshot{InstrumentID: inst.ID}
	})
}

func (e *Engine) Balance(ctx context.Context, user, asset int64) (ledger.Balance, error) {
	return query(ctx, e, func() ledger.Balance {
		return e.ledger.Balance(user, asset)
	})
}

type Stats struct {
	State      string
	QueueDepth int
	LastReport uint64
	Err        error
}

func (e *Engine) Stats() Stats {
	return Stats{
		State:      state(e.state.Load()).String(),
		QueueDepth: e.intake.len(),
		LastReport: e.seq.Current(),
		Err:        e.Err(),
	}
}
