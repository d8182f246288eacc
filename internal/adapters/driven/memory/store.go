package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Store = (*Store)(nil)

// Store is an in-process Store. Records are deep-copied on the way in and out
// so callers never share memory with the store.
type Store struct {
	mu       sync.Mutex
	settings *domain.Settings
	records  map[string]*domain.ProviderRecord
	auths    map[string]*domain.AuthState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.ProviderRecord),
		auths:   make(map[string]*domain.AuthState),
	}
}

// GetSettings returns the stored settings, or defaults if none were saved.
func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return domain.DefaultSettings(), nil
	}
	settings := *s.settings
	return &settings, nil
}

// SaveSettings persists settings.
func (s *Store) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *settings
	s.settings = &stored
	return nil
}

// GetProvider retrieves a provider record.
func (s *Store) GetProvider(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(rec)
}

// SaveProvider replaces a provider record.
func (s *Store) SaveProvider(ctx context.Context, record *domain.ProviderRecord) error {
	clone, err := cloneRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = clone
	return nil
}

// UpdateProvider runs fn under the store lock.
func (s *Store) UpdateProvider(ctx context.Context, id string, fn func(*domain.ProviderRecord) (*domain.ProviderRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *domain.ProviderRecord
	if rec, ok := s.records[id]; ok {
		var err error
		if current, err = cloneRecord(rec); err != nil {
			return err
		}
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return fmt.Errorf("%w: update of %s returned no record", domain.ErrInvalidInput, id)
	}
	updated.ID = id

	clone, err := cloneRecord(updated)
	if err != nil {
		return err
	}
	s.records[id] = clone
	return nil
}

// ListProviders returns all provider records sorted by id.
func (s *Store) ListProviders(ctx context.Context) ([]*domain.ProviderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ProviderRecord, 0, len(s.records))
	for _, rec := range s.records {
		clone, err := cloneRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAuth retrieves a provider's auth state.
func (s *Store) GetAuth(ctx context.Context, providerID string) (*domain.AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.auths[providerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAuth(state), nil
}

// SaveAuth persists a provider's auth state.
func (s *Store) SaveAuth(ctx context.Context, state *domain.AuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[state.ProviderID] = cloneAuth(state)
	return nil
}

// DeleteAuth clears a provider's auth state.
func (s *Store) DeleteAuth(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.auths, providerID)
	return nil
}

// cloneRecord deep-copies a record, including item metadata.
func cloneRecord(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal provider record: %w", err)
	}
	var clone domain.ProviderRecord
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("unmarshal provider record: %w", err)
	}
	if clone.Items == nil {
		clone.Items = []domain.SnapshotEntry{}
	}
	return &clone, nil
}

func cloneAuth(state *domain.AuthState) *domain.AuthState {
	clone := *state
	if state.Tokens != nil {
		tokens := *state.Tokens
		clone.Tokens = &tokens
	}
	if state.User != nil {
		user := *state.User
		clone.User = &user
	}
	return &clone
}
