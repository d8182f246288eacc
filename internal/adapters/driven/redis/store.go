package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/secrets"
	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Store = (*Store)(nil)

const (
	// Key layout
	keyPrefix      = "sercha:marks:"
	settingsKey    = keyPrefix + "settings"
	providerPrefix = keyPrefix + "provider:"
	providerIndex  = keyPrefix + "providers"

	// Provider hash fields
	fieldConfig    = "config"
	fieldAuth      = "auth"
	fieldLastSync  = "lastSync"
	fieldLastError = "lastError"
	fieldItems     = "items"

	// maxTxRetries bounds optimistic transaction retries under contention
	maxTxRetries = 10
)

// Store implements driven.Store using Redis.
// Each provider lives in its own hash, so a WATCH on one provider key never
// conflicts with writes to another provider.
type Store struct {
	client *redis.Client
	codec  *secrets.AuthCodec
}

// NewStore creates a new Redis-backed Store. codec may be nil for plain JSON auth.
func NewStore(client *redis.Client, codec *secrets.AuthCodec) *Store {
	if codec == nil {
		codec = secrets.NewAuthCodec(nil)
	}
	return &Store{client: client, codec: codec}
}

func providerKey(id string) string {
	return providerPrefix + id
}

// GetSettings returns the stored settings, or defaults if none were saved
func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	data, err := s.client.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists settings
func (s *Store) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.client.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetProvider retrieves a provider record
func (s *Store) GetProvider(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	fields, err := s.client.HGetAll(ctx, providerKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %s: %w", id, err)
	}
	return decodeRecord(id, fields)
}

// SaveProvider replaces a provider record. The auth field is untouched.
func (s *Store) SaveProvider(ctx context.Context, record *domain.ProviderRecord) error {
	values, err := encodeRecord(record)
	if err != nil {
		return err
	}

	key := providerKey(record.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeRecord(ctx, pipe, key, record, values)
		pipe.SAdd(ctx, providerIndex, record.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save provider %s: %w", record.ID, err)
	}
	return nil
}

// UpdateProvider reads, modifies and writes one provider hash under WATCH.
// A concurrent write to the same hash aborts the transaction and it is retried.
func (s *Store) UpdateProvider(ctx context.Context, id string, fn func(*domain.ProviderRecord) (*domain.ProviderRecord, error)) error {
	key := providerKey(id)

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read provider %s: %w", id, err)
		}

		current, err := decodeRecord(id, fields)
		if errors.Is(err, domain.ErrNotFound) {
			current = nil
		} else if err != nil {
			return err
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("%w: update of %s returned no record", domain.ErrInvalidInput, id)
		}
		updated.ID = id

		values, err := encodeRecord(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			writeRecord(ctx, pipe, key, updated, values)
			pipe.SAdd(ctx, providerIndex, id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("update provider %s: too much contention", id)
}

// ListProviders returns all provider records sorted by id
func (s *Store) ListProviders(ctx context.Context) ([]*domain.ProviderRecord, error) {
	ids, err := s.client.SMembers(ctx, providerIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	sort.Strings(ids)

	records := make([]*domain.ProviderRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetProvider(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetAuth retrieves a provider's auth state
func (s *Store) GetAuth(ctx context.Context, providerID string) (*domain.AuthState, error) {
	blob, err := s.client.HGet(ctx, providerKey(providerID), fieldAuth).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth for %s: %w", providerID, err)
	}
	return s.codec.Decode(providerID, blob)
}

// SaveAuth persists a provider's auth state
func (s *Store) SaveAuth(ctx context.Context, state *domain.AuthState) error {
	blob, err := s.codec.Encode(state)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, providerKey(state.ProviderID), fieldAuth, blob).Err(); err != nil {
		return fmt.Errorf("failed to save auth for %s: %w", state.ProviderID, err)
	}
	return nil
}

// DeleteAuth clears a provider's auth state
func (s *Store) DeleteAuth(ctx context.Context, providerID string) error {
	if err := s.client.HDel(ctx, providerKey(providerID), fieldAuth).Err(); err != nil {
		return fmt.Errorf("failed to delete auth for %s: %w", providerID, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// encodeRecord serializes the non-auth fields of a record.
func encodeRecord(record *domain.ProviderRecord) (map[string]any, error) {
	config, err := json.Marshal(record.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	items := record.Items
	if items == nil {
		items = []domain.SnapshotEntry{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}

	return map[string]any{
		fieldConfig:    config,
		fieldItems:     itemsJSON,
		fieldLastError: record.LastError,
	}, nil
}

func writeRecord(ctx context.Context, pipe redis.Pipeliner, key string, record *domain.ProviderRecord, values map[string]any) {
	pipe.HSet(ctx, key, values)
	if record.LastSync != nil {
		pipe.HSet(ctx, key, fieldLastSync, record.LastSync.UTC().Format(time.RFC3339Nano))
	} else {
		pipe.HDel(ctx, key, fieldLastSync)
	}
}

// decodeRecord rebuilds a record from its hash. A hash holding only auth
// is not a record.
func decodeRecord(id string, fields map[string]string) (*domain.ProviderRecord, error) {
	config, ok := fields[fieldConfig]
	if !ok {
		return nil, domain.ErrNotFound
	}

	rec := &domain.ProviderRecord{ID: id, Items: []domain.SnapshotEntry{}}
	if err := json.Unmarshal([]byte(config), &rec.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config for %s: %w", id, err)
	}

	if items := fields[fieldItems]; items != "" {
		if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items for %s: %w", id, err)
		}
	}

	if lastSync := fields[fieldLastSync]; lastSync != "" {
		t, err := time.Parse(time.RFC3339Nano, lastSync)
		if err != nil {
			return nil, fmt.Errorf("failed to parse lastSync for %s: %w", id, err)
		}
		rec.LastSync = &t
	}

	rec.LastError = fields[fieldLastError]
	return rec, nil
}
