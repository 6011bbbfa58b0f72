package grpcserver

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"matchcore/domain/event"
	"matchcore/domain/instrument"
	"matchcore/domain/ledger"
	"matchcore/domain/orderbook"
	"matchcore/jobs/syncer"
	"matchcore/service"
)

const (
	defaultDepth = 20
	maxDepth     = 500
)

// Submitter takes commands: the engine itself, or the Kafka command
// producer when intake goes through the broker.
type Submitter interface {
	SubmitOrder(ctx context.Context, o event.OrderPlaced) error
	SubmitDeposit(ctx context.Context, d event.Deposit) error
}

type Queries interface {
	OrderBook(ctx context.Context, symbol string, depth int) (orderbook.Snapshot, error)
	Balance(ctx context.Context, user, asset int64) (ledger.Balance, error)
}

type SyncStatus interface {
	Status() syncer.Status
}

// Server adapts the engine to matchcore.v1.Exchange. Submissions answer
// "queued", never a match result; outcomes travel as execution reports.
type Server struct {
	submitter   Submitter
	queries     Queries
	instruments *instrument.Directory
	sync        SyncStatus
	log         *zap.Logger
}

// NewServer wires all dependencies. sync may be nil when the read-model
// sync task is disabled.
func NewServer(
	submitter Submitter,
	queries Queries,
	instruments *instrument.Directory,
	sync SyncStatus,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		submitter:   submitter,
		queries:     queries,
		instruments: instruments,
		sync:        sync,
		log:         log,
	}
}

// NewGRPCServer returns a grpc.Server with s registered and call logging.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logCalls))
	gs := grpc.NewServer(opts...)
	RegisterExchangeServer(gs, s)
	return gs
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	if code == codes.OK || code == codes.InvalidArgument || code == codes.NotFound {
		s.log.Debug("grpc_call", zap.String("method", info.FullMethod), zap.Stringer("code", code),
			zap.Duration("took", time.Since(start)))
	} else {
		s.log.Warn("grpc_call_failed", zap.String("method", info.FullMethod), zap.Stringer("code", code),
			zap.Error(err))
	}
	return resp, err
}

// -------------------- Commands --------------------

func (s *Server) SubmitOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	symbol, err := f.str("symbol", true)
	if err != nil {
		return nil, err
	}
	inst, ok := s.instruments.GetBySymbol(symbol)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown instrument %q", symbol)
	}

	user, err := f.int64("user_id")
	if err != nil {
		return nil, err
	}
	sideText, err := f.str("side", true)
	if err != nil {
		return nil, err
	}
	side, err := orderbook.ParseSide(sideText)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, err
	}
	price, err := f.decimal("price")
	if err != nil {
		return nil, err
	}
	if err := inst.ValidateOrder(amount, price); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	clientID, err := f.str("client_order_id", false)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	o := event.OrderPlaced{
		UserID:        user,
		ClientOrderID: clientID,
		Side:          side,
		InstrumentID:  inst.ID,
		Amount:        amount,
		Price:         price,
	}
	if err := s.submitter.SubmitOrder(ctx, o); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"accepted":        true,
		"client_order_id": clientID,
	})
}

func (s *Server) SubmitDeposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	user, err := f.int64("user_id")
	if err != nil {
		return nil, err
	}
	asset, err := f.int64("asset_id")
	if err != nil {
		return nil, err
	}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, err
	}

	if err := s.submitter.SubmitDeposit(ctx, event.Deposit{UserID: user, AssetID: asset, Amount: amount}); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"accepted": true})
}

// -------------------- Queries --------------------

func (s *Server) GetOrderBook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	symbol, err := f.str("symbol", true)
	if err != nil {
		return nil, err
	}
	depth := defaultDepth
	if f.has("depth") {
		d, err := f.int64("depth")
		if err != nil {
			return nil, err
		}
		if d < 1 || d > maxDepth {
			return nil, status.Errorf(codes.InvalidArgument, "depth must be within [1, %d]", maxDepth)
		}
		depth = int(d)
	}

	snap, err := s.queries.OrderBook(ctx, symbol, depth)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"symbol":        symbol,
		"instrument_id": snap.InstrumentID,
		"bids":          levels(snap.Bids),
		"asks":          levels(snap.Asks),
	})
}

func levels(in []orderbook.LevelView) []any {
	out := make([]any, len(in))
	for i, l := range in {
		out[i] = map[string]any{
			"price":  l.Price.String(),
			"volume": l.Volume.String(),
			"orders": l.Orders,
		}
	}
	return out
}

func (s *Server) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	user, err := f.int64("user_id")
	if err != nil {
		return nil, err
	}
	asset, err := f.int64("asset_id")
	if err != nil {
		return nil, err
	}

	b, err := s.queries.Balance(ctx, user, asset)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"user_id":   user,
		"asset_id":  asset,
		"available": b.Available.String(),
		"locked":    b.Locked.String(),
	})
}

func (s *Server) GetSyncStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	if s.sync == nil {
		return nil, status.Error(codes.Unavailable, "read-model sync is disabled")
	}
	st := s.sync.Status()
	return structpb.NewStruct(map[string]any{
		"offset":       st.Offset,
		"journal_size": st.JournalSize,
		"lag":          st.Lag,
		"running":      st.Running,
	})
}

// -------------------- Errors --------------------

func toStatus(err error) error {
	switch {
	case errors.Is(err, event.ErrInvalidOrder), errors.Is(err, event.ErrInvalidDeposit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnknownSymbol):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrNotRunning), errors.Is(err, service.ErrHalted):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// -------------------- Fields --------------------

type fields struct {
	s *structpb.Struct
}

func (f fields) has(key string) bool {
	_, ok := f.s.GetFields()[key]
	return ok
}

func (f fields) str(key string, required bool) (string, error) {
	v, ok := f.s.GetFields()[key]
	if !ok {
		if required {
			return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
		}
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", key)
	}
	if required && sv.StringValue == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return sv.StringValue, nil
}

// int64 accepts an integral JSON number.
func (f fields) int64(key string) (int64, error) {
	v, ok := f.s.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	n := nv.NumberValue
	if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int64(n), nil
}

// decimal accepts a decimal string; numbers are refused to avoid float
// rounding.
func (f fields) decimal(key string) (decimal.Decimal, error) {
	text, err := f.str(key, true)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
	}
	return d, nil
}
