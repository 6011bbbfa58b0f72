package outbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"matchcore/domain/execution"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Entry --------------------

type Entry struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const entryHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeader+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[entryHeader:], e.Payload)
	return buf
}

func decodeEntry(seq uint64, b []byte) (Entry, error) {
	if len(b) < entryHeader {
		return Entry{}, errors.Newf("outbox entry %d: %d bytes", seq, len(b))
	}
	payload := make([]byte, len(b)-entryHeader)
	copy(payload, b[entryHeader:])
	return Entry{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- Outbox --------------------

type Config struct {
	Dir string
	// Sync makes every write durable before it returns.
	Sync bool
}

// Outbox stores execution reports until the broadcaster has published them.
type Outbox struct {
	db   *pebble.DB
	opts *pebble.WriteOptions

	// highest seq ever Put; survives Delete so numbering never repeats
	mu   sync.Mutex
	last uint64
}

func Open(cfg Config) (*Outbox, error) {
	db, err := pebble.Open(cfg.Dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", cfg.Dir)
	}
	opts := pebble.NoSync
	if cfg.Sync {
		opts = pebble.Sync
	}
	o := &Outbox{db: db, opts: opts}
	if o.last, err = o.loadLastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Report stores r as a NEW entry keyed by its sequence number. It is the
// engine's reporter hook.
func (o *Outbox) Report(r execution.Report) error {
	payload, err := r.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	return o.Put(r.Seq, payload)
}

func (o *Outbox) Put(seq uint64, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	b := o.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(seq), encodeEntry(Entry{State: StateNew, Payload: payload}), nil); err != nil {
		return err
	}
	if seq > o.last {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], seq)
		if err := b.Set([]byte(lastSeqKey), v[:], nil); err != nil {
			return err
		}
	}
	if err := b.Commit(o.opts); err != nil {
		return errors.Wrapf(err, "put outbox entry %d", seq)
	}
	if seq > o.last {
		o.last = seq
	}
	return nil
}

// Mark moves an entry to state, keeping its payload.
func (o *Outbox) Mark(seq uint64, state State, retries uint32) error {
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeEntry(e), o.opts)
}

// Delete removes ACKED entries (cleanup).
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), o.opts)
}

func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, errors.Wrapf(err, "outbox entry %d", seq)
	}
	defer closer.Close()
	return decodeEntry(seq, val)
}

// LastSeq is the highest sequence number ever stored, 0 when none. Deleted
// entries still count. The engine's sequencer resumes from it after a
// restart.
func (o *Outbox) LastSeq() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, nil
}

func (o *Outbox) loadLastSeq() (uint64, error) {
	val, closer, err := o.db.Get([]byte(lastSeqKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read outbox high-water mark")
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errors.Newf("outbox high-water mark: %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// -------------------- Scan --------------------

// ScanByState visits entries in the given state in sequence order until fn
// returns an error. Used by the broadcaster.
func (o *Outbox) ScanByState(state State, fn func(Entry) error) error {
	iter, err := o.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || State(val[0]) != state {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(seq, val)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) newIter() (*pebble.Iterator, error) {
	return o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
}

// -------------------- Helpers --------------------

const (
	keyPrefix  = "report/"
	lastSeqKey = "meta/last-seq"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	v, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "outbox key %q", b)
	}
	return v, nil
}
