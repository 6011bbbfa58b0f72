package sequence

import (
	"sync"
	"testing"
)

func TestSequencer_ResumesAfterLast(t *testing.T) {
	s := New(41)
	if got := s.Next(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := s.Current(); got != 42 {
		t.Fatalf("expected current 42, got %d", got)
	}
}

func TestSequencer_NumbersAreUnique(t *testing.T) {
	s := New(0)
	const workers, per = 8, 1000

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				n := s.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("expected %d distinct numbers, got %d", workers*per, len(seen))
	}
	if got := s.Current(); got != workers*per {
		t.Fatalf("expected current %d, got %d", workers*per, got)
	}
}
