package journal

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"matchcore/domain/event"
)

// Record is one decoded entry. Offset is where its length prefix starts,
// Next is where the following record starts.
type Record struct {
	Offset int64
	Next   int64
	Event  event.Event
}

type Handler func(Record) error

// Reader reads a journal file without holding a write handle. It is safe to
// use while another goroutine or process appends to the same file.
type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

func (r *Reader) Path() string {
	return r.path
}

// ReadFrom decodes complete records starting at offset and hands each to fn.
// It returns the offset just past the last record fn accepted. A truncated
// trailing record ends the read without error; the returned offset then
// points at its first byte so the next call picks it up once complete.
func (r *Reader) ReadFrom(offset int64, fn Handler) (int64, error) {
	return readFrom(r.path, offset, fn)
}

// Size is the journal length in bytes; 0 when the file does not exist.
func (r *Reader) Size() (int64, error) {
	return fileSize(r.path)
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "stat journal")
	}
	return st.Size(), nil
}

func readFrom(path string, offset int64, fn Handler) (int64, error) {
	if offset < 0 {
		return offset, errors.Newf("negative journal offset %d", offset)
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return offset, nil
	}
	if err != nil {
		return offset, errors.Wrap(err, "open journal")
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, errors.Wrapf(err, "seek journal to %d", offset)
	}
	return scan(bufio.NewReaderSize(f, 64<<10), offset, fn)
}

// scan walks records from br, which must be positioned at pos.
func scan(br *bufio.Reader, pos int64, fn Handler) (int64, error) {
	var header [headerSize]byte
	body := make([]byte, 0, writeBufferSize)

	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return pos, nil
			}
			return pos, errors.Wrapf(err, "read header at %d", pos)
		}

		n := order.Uint32(header[:])
		if n == 0 || n > MaxRecordSize {
			return pos, errors.Wrapf(ErrCorruptRecord, "length %d at offset %d", n, pos)
		}

		if cap(body) < int(n) {
			body = make([]byte, n)
		}
		body = body[:n]
		if _, err := io.ReadFull(br, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return pos, nil
			}
			return pos, errors.Wrapf(err, "read record at %d", pos)
		}

		ev, err := Decode(body)
		if err != nil {
			return pos, errors.Wrapf(err, "offset %d", pos)
		}

		next := pos + headerSize + int64(n)
		if fn != nil {
			if err := fn(Record{Offset: pos, Next: next, Event: ev}); err != nil {
				return pos, err
			}
		}
		pos = next
	}
}
