package journal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"matchcore/domain/event"
	"matchcore/infra/metrics"
)

type Config struct {
	Path string
	// SyncOnAppend fsyncs after every record. Off by default: a completed
	// write survives a process crash, not a power loss.
	SyncOnAppend bool
}

type ReplayStats struct {
	Records   int
	Orders    int
	Deposits  int
	EndOffset int64
}

// Journal is the single-writer append-only event log.
//
// Append is meant for one goroutine (the engine worker). ReadFrom and Size
// may be called concurrently from anywhere.
type Journal struct {
	*Reader

	mu     sync.Mutex
	file   *os.File
	buf    []byte
	size   int64
	fsync  bool
	closed bool
	log    *zap.Logger
}

// Open creates the file if needed. A torn record at the tail, left by a crash
// mid-write, is cut off so new appends start on a record boundary.
func Open(cfg Config, log *zap.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal path is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	end, err := scan(bufio.NewReaderSize(f, 64<<10), 0, nil)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "verify journal")
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat journal")
	}
	if st.Size() > end {
		log.Warn("journal_torn_tail_truncated",
			zap.String("path", cfg.Path),
			zap.Int64("valid_end", end),
			zap.Int64("file_size", st.Size()))
		if err := f.Truncate(end); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "truncate torn tail")
		}
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "seek journal end")
	}

	log.Info("journal_opened", zap.String("path", cfg.Path), zap.Int64("size", end))
	return &Journal{
		Reader: NewReader(cfg.Path),
		file:   f,
		buf:    make([]byte, 0, writeBufferSize),
		size:   end,
		fsync:  cfg.SyncOnAppend,
		log:    log,
	}, nil
}

// Append writes ev as one record and returns the offset it starts at.
// A failed write is rolled back so the file never keeps a partial record.
func (j *Journal) Append(ev event.Event) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, errors.New("journal is closed")
	}

	buf, err := AppendRecord(j.buf[:0], ev)
	if err != nil {
		return 0, err
	}
	j.buf = buf

	start := time.Now()
	off := j.size
	if _, err := j.file.Write(buf); err != nil {
		if terr := j.rollback(off); terr != nil {
			j.log.Error("journal_rollback_failed", zap.Int64("offset", off), zap.Error(terr))
		}
		return 0, errors.Wrapf(err, "append at %d", off)
	}
	if j.fsync {
		if err := j.file.Sync(); err != nil {
			return 0, errors.Wrap(err, "fsync journal")
		}
	}
	j.size += int64(len(buf))
	metrics.JournalAppendLatency.Observe(time.Since(start).Seconds())
	metrics.JournalBytes.Set(float64(j.size))
	return off, nil
}

func (j *Journal) rollback(off int64) error {
	if err := j.file.Truncate(off); err != nil {
		return err
	}
	_, err := j.file.Seek(off, io.SeekStart)
	return err
}

// Replay feeds every complete record, in file order, to fn. It is only
// valid before the engine starts taking live commands.
func (j *Journal) Replay(fn Handler) (ReplayStats, error) {
	var stats ReplayStats
	end, err := j.ReadFrom(0, func(rec Record) error {
		if err := fn(rec); err != nil {
			return err
		}
		stats.Records++
		switch rec.Event.(type) {
		case event.OrderPlaced:
			stats.Orders++
		case event.Deposit:
			stats.Deposits++
		}
		if stats.Records%10000 == 0 {
			j.log.Info("journal_replay_progress",
				zap.Int("records", stats.Records),
				zap.Int64("offset", rec.Next))
		}
		return nil
	})
	stats.EndOffset = end
	return stats, err
}

// Written is the number of bytes this handle has committed.
func (j *Journal) Written() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Sync(); err != nil {
		_ = j.file.Close()
		return errors.Wrap(err, "fsync journal")
	}
	return j.file.Close()
}
