package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"matchcore/infra/journal"
	"matchcore/infra/metrics"
)

// Source is the read side of the journal.
type Source interface {
	ReadFrom(offset int64, fn journal.Handler) (int64, error)
	Size() (int64, error)
}

// Sink persists a batch atomically. Rows already stored must be ignored.
type Sink interface {
	SaveBatch(ctx context.Context, recs []journal.Record) error
}

type Config struct {
	CheckpointPath string
	BatchSize      int
	PollInterval   time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckpointPath: "data/sync.offset",
		BatchSize:      1000,
		PollInterval:   100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

type Status struct {
	Offset      int64
	JournalSize int64
	Running     bool
	Lag         int64
}

/*
Syncer copies journal records into the read-model.

IMPORTANT:
  - It reads the journal file, never engine memory
  - The checkpoint moves only after a batch is committed
  - A crash between commit and checkpoint re-reads that batch; the sink
    ignores rows it already has
*/
type Syncer struct {
	cfg  Config
	src  Source
	sink Sink
	log  *zap.Logger

	offset  atomic.Int64
	running atomic.Bool
}

func New(cfg Config, src Source, sink Sink, log *zap.Logger) (*Syncer, error) {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	if cfg.CheckpointPath == "" {
		return nil, errors.New("sync checkpoint path is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	off, err := LoadCheckpoint(cfg.CheckpointPath)
	if err != nil {
		return nil, err
	}
	s := &Syncer{cfg: cfg, src: src, sink: sink, log: log}
	s.offset.Store(off)
	metrics.SyncOffset.Set(float64(off))
	return s, nil
}

// Run polls until ctx ends. Failures back off by a factor of ten up to
// MaxBackoff; the first success returns to PollInterval.
func (s *Syncer) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.log.Info("sync_started", zap.Int64("offset", s.offset.Load()))

	delay := s.cfg.PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync_stopped", zap.Int64("offset", s.offset.Load()))
			return
		case <-timer.C:
		}

		n, err := s.SyncOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			// shutting down mid-batch
		case err != nil:
			metrics.SyncErrors.Inc()
			delay *= 10
			if delay > s.cfg.MaxBackoff {
				delay = s.cfg.MaxBackoff
			}
			s.log.Error("sync_failed",
				zap.Error(err),
				zap.Int64("offset", s.offset.Load()),
				zap.Duration("retry_in", delay))
		default:
			delay = s.cfg.PollInterval
			if n > 0 {
				s.log.Debug("sync_progress", zap.Int("records", n), zap.Int64("offset", s.offset.Load()))
			}
		}
		timer.Reset(delay)
	}
}

// SyncOnce copies everything past the checkpoint and returns the number of
// records committed.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	batch := make([]journal.Record, 0, s.cfg.BatchSize)
	synced := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.sink.SaveBatch(ctx, batch); err != nil {
			return errors.Wrapf(err, "save batch at offset %d", batch[0].Offset)
		}
		next := batch[len(batch)-1].Next
		if err := SaveCheckpoint(s.cfg.CheckpointPath, next); err != nil {
			return err
		}
		s.offset.Store(next)
		metrics.SyncOffset.Set(float64(next))
		synced += len(batch)
		batch = batch[:0]
		return nil
	}

	_, err := s.src.ReadFrom(s.offset.Load(), func(rec journal.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, rec)
		if len(batch) >= s.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	s.updateLag()
	return synced, err
}

func (s *Syncer) updateLag() {
	size, err := s.src.Size()
	if err != nil {
		return
	}
	metrics.SyncLag.Set(float64(size - s.offset.Load()))
}

func (s *Syncer) Status() Status {
	st := Status{
		Offset:  s.offset.Load(),
		Running: s.running.Load(),
	}
	if size, err := s.src.Size(); err == nil {
		st.JournalSize = size
		st.Lag = size - st.Offset
	}
	return st
}
