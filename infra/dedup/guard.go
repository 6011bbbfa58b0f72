package dedup

import (
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCapacity = 100_000

// Guard remembers recently processed client order ids.
//
// IsDuplicate does not refresh recency; MarkAsProcessed inserts or refreshes.
// Past capacity the least recently marked id is forgotten.
type Guard struct {
	seen *lru.Cache[string, struct{}]
}

func New(capacity int) (*Guard, error) {
	if capacity <= 0 {
		return nil, errors.Newf("dedup capacity must be positive, got %d", capacity)
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "dedup cache")
	}
	return &Guard{seen: c}, nil
}

func (g *Guard) IsDuplicate(clientOrderID string) bool {
	return g.seen.Contains(clientOrderID)
}

func (g *Guard) MarkAsProcessed(clientOrderID string) {
	g.seen.Add(clientOrderID, struct{}{})
}

func (g *Guard) Len() int {
	return g.seen.Len()
}

// Reset forgets everything. Recovery starts from an empty guard.
func (g *Guard) Reset() {
	g.seen.Purge()
}
