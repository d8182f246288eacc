package services

import (
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// RetryRepository holds per-provider retry counters for the scheduler.
// Counters are process-local and never persisted.
type RetryRepository struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRetryRepository creates an empty retry repository.
func NewRetryRepository() *RetryRepository {
	return &RetryRepository{counts: make(map[string]int)}
}

// Get returns the current retry count for a provider.
func (r *RetryRepository) Get(providerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[providerID]
}

// Increment bumps the counter if it is below limit and returns the new value
// and true. At or above limit the counter is left unchanged and false is returned.
func (r *RetryRepository) Increment(providerID string, limit int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.counts[providerID]
	if n >= limit {
		return n, false
	}
	n++
	r.counts[providerID] = n
	return n, true
}

// Reset drops the provider's counter.
func (r *RetryRepository) Reset(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, providerID)
}

// Clear drops every counter.
func (r *RetryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.counts)
}

// Snapshot returns the non-zero counters sorted by provider id.
func (r *RetryRepository) Snapshot() []domain.RetryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]domain.RetryState, 0, len(r.counts))
	for id, n := range r.counts {
		states = append(states, domain.RetryState{ProviderID: id, RetryCount: n})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ProviderID < states[j].ProviderID })
	return states
}
