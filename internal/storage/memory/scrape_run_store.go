package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/storage"
)

// DefaultRunsPerAddress bounds the in-memory audit history of one address.
const DefaultRunsPerAddress = 100

// ScrapeRunStore is an in-memory implementation of storage.ScrapeRunStore.
// Only the newest perAddress runs of each address are kept.
type ScrapeRunStore struct {
	mu         sync.RWMutex
	data       map[string][]*domain.ScrapeRun // keyed by address, insertion order
	perAddress int
}

// NewScrapeRunStore creates a new in-memory scrape run store.
func NewScrapeRunStore() *ScrapeRunStore {
	return &ScrapeRunStore{
		data:       make(map[string][]*domain.ScrapeRun),
		perAddress: DefaultRunsPerAddress,
	}
}

// Insert adds one scrape run.
func (s *ScrapeRunStore) Insert(_ context.Context, run *domain.ScrapeRun) error {
	if run == nil || run.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	runCopy := *run
	runs := append(s.data[run.Address], &runCopy)
	if over := len(runs) - s.perAddress; over > 0 {
		runs = append(runs[:0:0], runs[over:]...)
	}
	s.data[run.Address] = runs
	return nil
}

// GetByAddress retrieves runs for an address, newest first, up to limit.
func (s *ScrapeRunStore) GetByAddress(_ context.Context, address string, limit int) ([]*domain.ScrapeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.data[address]
	result := make([]*domain.ScrapeRun, 0, len(runs))
	for _, r := range runs {
		runCopy := *r
		result = append(result, &runCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// OutcomeCounts returns run counts per outcome since the given time.
func (s *ScrapeRunStore) OutcomeCounts(_ context.Context, since time.Time) (map[domain.ScrapeOutcome]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.ScrapeOutcome]uint64)
	for _, runs := range s.data {
		for _, r := range runs {
			if !r.StartedAt.Before(since) {
				counts[r.Outcome]++
			}
		}
	}
	return counts, nil
}

var _ storage.ScrapeRunStore = (*ScrapeRunStore)(nil)
