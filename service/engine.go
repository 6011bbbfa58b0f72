package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchcore/domain/event"
	"matchcore/domain/execution"
	"matchcore/domain/instrument"
	"matchcore/domain/ledger"
	"matchcore/domain/orderbook"
	"matchcore/infra/dedup"
	"matchcore/infra/journal"
	"matchcore/infra/metrics"
	"matchcore/infra/sequence"
)

var (
	ErrNotRunning     = errors.New("engine is not running")
	ErrHalted         = errors.New("engine halted on a fatal error")
	ErrNotRecovered   = errors.New("engine must recover from the journal before starting")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrUnknownSymbol  = errors.New("unknown instrument symbol")
)

// Journal is the slice of the event journal the engine writes through.
type Journal interface {
	Append(event.Event) (int64, error)
	Replay(journal.Handler) (journal.ReplayStats, error)
}

// Reporter receives one execution report per live command.
type Reporter interface {
	Report(execution.Report) error
}

type nopReporter struct{}

func (nopReporter) Report(execution.Report) error { return nil }

type Config struct {
	// DedupCapacity must stay the same across restarts: replay rebuilds the
	// guard by repeating the same inserts.
	DedupCapacity int
}

func DefaultConfig() Config {
	return Config{DedupCapacity: dedup.DefaultCapacity}
}

type state int32

const (
	stateIdle state = iota
	stateRunning
	stateStopped
	stateHalted
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	case stateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

/*
Engine is the ONLY write entry point into exchange state.

Order books, the ledger and the dedup guard are touched by exactly one
goroutine at a time: Recover before Start, the worker after. Producers only
enqueue. Queries run on the worker as queued closures.
*/
type Engine struct {
	log         *zap.Logger
	instruments *instrument.Directory
	journal     Journal
	reporter    Reporter
	seq         *sequence.Sequencer

	// worker-owned
	books  map[int64]*orderbook.OrderBook
	ledger *ledger.Manager
	guard  *dedup.Guard

	intake    *intake
	state     atomic.Int32
	recovered atomic.Bool

	mu      sync.Mutex
	haltErr error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires all dependencies. reporter and log may be nil.
func New(
	cfg Config,
	instruments *instrument.Directory,
	j Journal,
	reporter Reporter,
	seq *sequence.Sequencer,
	log *zap.Logger,
) (*Engine, error) {
	if instruments == nil || j == nil || seq == nil {
		return nil, errors.New("engine needs instruments, journal and sequencer")
	}
	if cfg.DedupCapacity == 0 {
		cfg.DedupCapacity = dedup.DefaultCapacity
	}
	guard, err := dedup.New(cfg.DedupCapacity)
	if err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:         log,
		instruments: instruments,
		journal:     j,
		reporter:    reporter,
		seq:         seq,
		books:       make(map[int64]*orderbook.OrderBook),
		ledger:      ledger.NewManager(),
		guard:       guard,
		intake:      newIntake(),
	}, nil
}

//
// ──────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────
//

// Start launches the worker. Recover must have completed first.
func (e *Engine) Start(ctx context.Context) error {
	if !e.recovered.Load() {
		return ErrNotRecovered
	}
	if !e.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
	e.log.Info("engine_started", zap.Int("instruments", e.instruments.Len()))
	return nil
}

// Stop closes intake, drops queued commands, and waits for the worker to
// finish the command in hand. The journal may be closed once Stop returns.
func (e *Engine) Stop() {
	prev := state(e.state.Swap(int32(stateStopped)))
	if prev == stateHalted {
		e.state.Store(int32(stateHalted))
	}
	dropped := e.intake.close()

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	metrics.IntakeDepth.Set(0)
	e.log.Info("engine_stopped", zap.Stringer("previous_state", prev), zap.Int("dropped_commands", dropped))
}

// Err returns the fatal error that halted the worker, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltErr
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		cmd, ok := e.intake.pop(ctx)
		if !ok {
			return
		}
		metrics.IntakeDepth.Set(float64(e.intake.len()))

		if err := e.dispatch(cmd); err != nil {
			e.halt(errors.Wrapf(err, "%s command", cmd.kind()))
			return
		}
	}
}

func (e *Engine) halt(err error) {
	e.mu.Lock()
	e.haltErr = err
	e.mu.Unlock()
	e.state.Store(int32(stateHalted))
	dropped := e.intake.close()

	metrics.EngineHalted.Set(1)
	e.log.Error("engine_halted",
		zap.Error(err),
		zap.Bool("invariant_violation", errors.HasAssertionFailure(err)),
		zap.Int("dropped_commands", dropped))
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

type command interface {
	kind() string
}

type orderCommand struct {
	ev event.OrderPlaced
}

type depositCommand struct {
	ev event.Deposit
}

// queryCommand results travel only through done, so a caller that gave up
// never shares memory with the worker.
type queryCommand struct {
	fn   func() any
	done chan queryResult
}

type queryResult struct {
	val any
	err error
}

func (orderCommand) kind() string   { return "order" }
func (depositCommand) kind() string { return "deposit" }
func (queryCommand) kind() string   { return "query" }

// SubmitOrder validates and enqueues o. It returns as soon as o is queued;
// the outcome arrives as an execution report.
func (e *Engine) SubmitOrder(_ context.Context, o event.OrderPlaced) error {
	if err := o.Validate(); err != nil {
		return err
	}
	return e.enqueue(orderCommand{ev: o})
}

// SubmitDeposit validates and enqueues d.
func (e *Engine) SubmitDeposit(_ context.Context, d event.Deposit) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return e.enqueue(depositCommand{ev: d})
}

func (e *Engine) enqueue(c command) error {
	if err := e.acceptErr(); err != nil {
		return err
	}
	if !e.intake.push(c) {
		if err := e.acceptErr(); err != nil {
			return err
		}
		return ErrNotRunning
	}
	metrics.IntakeDepth.Inc()
	return nil
}

func (e *Engine) acceptErr() error {
	switch state(e.state.Load()) {
	case stateRunning:
		return nil
	case stateHalted:
		return ErrHalted
	default:
		return ErrNotRunning
	}
}

func (e *Engine) dispatch(c command) error {
	switch c := c.(type) {
	case orderCommand:
		return e.processOrder(c.ev)
	case depositCommand:
		return e.processDeposit(c.ev)
	case queryCommand:
		c.done <- queryResult{val: c.fn()}
		return nil
	default:
		return errors.AssertionFailedf("unknown command %T", c)
	}
}

//
// ──────────────────────────────────────────────────────────
// Live processing
// ──────────────────────────────────────────────────────────
//

func (e *Engine) processOrder(o event.OrderPlaced) error {
	start := time.Now()

	if e.guard.IsDuplicate(o.ClientOrderID) {
		e.reject(o, execution.ReasonDuplicate)
		return nil
	}
	inst, ok := e.instruments.GetByID(o.InstrumentID)
	if !ok {
		e.reject(o, execution.ReasonUnknownInstrument)
		return nil
	}
	if !inst.IsActive() {
		e.reject(o, execution.ReasonInactive)
		return nil
	}
	// checked before any funds move: a refused append after settlement halts
	if err := journal.CheckSize(o); err != nil {
		e.log.Warn("order_too_large", zap.Int64("user_id", o.UserID), zap.Error(err))
		e.reject(o, execution.ReasonRecordTooLarge)
		return nil
	}

	res, locked, err := e.execute(o, inst)
	if err != nil {
		return errors.Wrapf(err, "order %s", o.ClientOrderID)
	}
	if !locked {
		e.reject(o, execution.ReasonInsufficientFunds)
		return nil
	}

	off, err := e.journal.Append(o)
	if err != nil {
		return errors.Wrapf(err, "journal order %s", o.ClientOrderID)
	}
	e.guard.MarkAsProcessed(o.ClientOrderID)

	metrics.CommandsProcessed.WithLabelValues("order", "accepted").Inc()
	metrics.OrderLatency.Observe(time.Since(start).Seconds())
	if n := len(res.Trades); n > 0 {
		metrics.TradesExecuted.WithLabelValues(inst.Symbol).Add(float64(n))
	}

	remaining := o.Amount.Sub(res.Filled())
	price := o.Price
	e.report(execution.Report{
		Kind:          execution.KindAccepted,
		UserID:        o.UserID,
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		Side:          o.Side.String(),
		Amount:        o.Amount,
		Price:         &price,
		Fills:         execution.FillsFrom(res.Trades),
		Remaining:     &remaining,
		JournalOffset: off,
	})
	e.log.Debug("order_accepted",
		zap.String("client_order_id", o.ClientOrderID),
		zap.Int64("user_id", o.UserID),
		zap.String("instrument", inst.Symbol),
		zap.Int("trades", len(res.Trades)),
		zap.Int64("journal_offset", off))
	return nil
}

// execute is shared by live processing and replay: lock, match, settle.
// locked=false means the order was refused for funds and nothing changed.
// A non-nil error is an invariant violation.
func (e *Engine) execute(o event.OrderPlaced, inst instrument.Instrument) (orderbook.MatchResult, bool, error) {
	asset, amount := lockRequirement(o, inst)
	if !e.ledger.TryLockFunds(o.UserID, asset, amount) {
		return orderbook.MatchResult{}, false, nil
	}

	res := e.book(inst.ID).Process(orderbook.NewOrder(
		o.ClientOrderID, o.UserID, o.InstrumentID, o.Side, o.Price, o.Amount))
	for _, t := range res.Trades {
		if err := e.ledger.SettleTrade(t, inst); err != nil {
			return res, true, err
		}
		// a buy that fills below its limit gets the difference back
		if o.Side == orderbook.Buy && t.Price.LessThan(o.Price) {
			refund := t.Quantity.Mul(o.Price.Sub(t.Price))
			if err := e.ledger.Unlock(o.UserID, inst.QuoteAssetID, refund); err != nil {
				return res, true, err
			}
		}
	}
	return res, true, nil
}

func lockRequirement(o event.OrderPlaced, inst instrument.Instrument) (int64, decimal.Decimal) {
	if o.Side == orderbook.Buy {
		return inst.QuoteAssetID, o.Amount.Mul(o.Price)
	}
	return inst.BaseAssetID, o.Amount
}

func (e *Engine) book(instrumentID int64) *orderbook.OrderBook {
	b, ok := e.books[instrumentID]
	if !ok {
		b = orderbook.New(instrumentID)
		e.books[instrumentID] = b
	}
	return b
}

func (e *Engine) processDeposit(d event.Deposit) error {
	if err := journal.CheckSize(d); err != nil {
		e.log.Warn("deposit_too_large", zap.Int64("user_id", d.UserID), zap.Error(err))
		metrics.CommandsProcessed.WithLabelValues("deposit", "rejected").Inc()
		e.report(execution.Report{
			Kind:          execution.KindRejected,
			Reason:        execution.ReasonRecordTooLarge,
			UserID:        d.UserID,
			AssetID:       d.AssetID,
			Amount:        d.Amount,
			JournalOffset: -1,
		})
		return nil
	}

	off, err := e.journal.Append(d)
	if err != nil {
		return errors.Wrapf(err, "journal deposit for user %d", d.UserID)
	}
	if err := e.ledger.Deposit(d.UserID, d.AssetID, d.Amount); err != nil {
		return errors.NewAssertionErrorWithWrappedErrf(err, "journaled deposit at %d not applied", off)
	}

	metrics.CommandsProcessed.WithLabelValues("deposit", "accepted").Inc()
	e.report(execution.Report{
		Kind:          execution.KindDeposited,
		UserID:        d.UserID,
		AssetID:       d.AssetID,
		Amount:        d.Amount,
		JournalOffset: off,
	})
	return nil
}

func (e *Engine) reject(o event.OrderPlaced, reason execution.Reason) {
	metrics.CommandsProcessed.WithLabelValues("order", "rejected").Inc()
	metrics.OrdersRejected.WithLabelValues(string(reason)).Inc()

	price := o.Price
	e.report(execution.Report{
		Kind:          execution.KindRejected,
		Reason:        reason,
		UserID:        o.UserID,
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		Side:          o.Side.String(),
		Amount:        o.Amount,
		Price:         &price,
		JournalOffset: -1,
	})
	e.log.Debug("order_rejected",
		zap.String("client_order_id", o.ClientOrderID),
		zap.Int64("user_id", o.UserID),
		zap.String("reason", string(reason)))
}

func (e *Engine) report(r execution.Report) {
	r.Seq = e.seq.Next()
	r.Timestamp = time.Now().UnixNano()
	if err := e.reporter.Report(r); err != nil {
		e.log.Error("report_failed", zap.Uint64("seq", r.Seq), zap.Error(err))
	}
}
