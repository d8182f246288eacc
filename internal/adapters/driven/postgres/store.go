package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/secrets"
	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Store = (*Store)(nil)

// Store implements driven.Store using PostgreSQL.
// Provider rows are locked with SELECT ... FOR UPDATE during UpdateProvider,
// so concurrent writers to one provider serialize while others proceed.
type Store struct {
	db    *DB
	codec *secrets.AuthCodec
}

// NewStore creates a new PostgreSQL-backed Store. codec may be nil for plain JSON auth.
func NewStore(db *DB, codec *secrets.AuthCodec) *Store {
	if codec == nil {
		codec = secrets.NewAuthCodec(nil)
	}
	return &Store{db: db, codec: codec}
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	selectSettings = `SELECT sync_interval_ms, theme FROM settings WHERE id = 1`

	upsertSettings = `
		INSERT INTO settings (id, sync_interval_ms, theme, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			sync_interval_ms = EXCLUDED.sync_interval_ms,
			theme = EXCLUDED.theme,
			updated_at = NOW()
	`

	selectProvider = `
		SELECT config, last_sync, last_error, items
		FROM providers
		WHERE id = $1
	`

	selectProviderForUpdate = selectProvider + ` FOR UPDATE`

	// ensureProviderRow gives FOR UPDATE a row to lock when none exists yet
	ensureProviderRow = `INSERT INTO providers (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	upsertProvider = `
		INSERT INTO providers (id, config, last_sync, last_error, items, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			config = EXCLUDED.config,
			last_sync = EXCLUDED.last_sync,
			last_error = EXCLUDED.last_error,
			items = EXCLUDED.items,
			updated_at = NOW()
	`

	listProviders = `
		SELECT id, config, last_sync, last_error, items
		FROM providers
		WHERE config IS NOT NULL
		ORDER BY id
	`

	selectAuth = `SELECT auth FROM providers WHERE id = $1`

	upsertAuth = `
		INSERT INTO providers (id, auth, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			auth = EXCLUDED.auth,
			updated_at = NOW()
	`

	clearAuth = `UPDATE providers SET auth = NULL, updated_at = NOW() WHERE id = $1`
)

// GetSettings returns the stored settings, or defaults if none were saved
func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	settings := domain.DefaultSettings()
	err := s.db.QueryRowContext(ctx, selectSettings).Scan(&settings.SyncInterval, &settings.Theme)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists settings
func (s *Store) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	if _, err := s.db.ExecContext(ctx, upsertSettings, settings.SyncInterval, settings.Theme); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetProvider retrieves a provider record
func (s *Store) GetProvider(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	return getProvider(ctx, s.db, selectProvider, id)
}

// SaveProvider replaces a provider record. The auth column is untouched.
func (s *Store) SaveProvider(ctx context.Context, record *domain.ProviderRecord) error {
	return saveProvider(ctx, s.db, record)
}

// UpdateProvider reads, modifies and writes one provider row inside a transaction
// holding the row lock.
func (s *Store) UpdateProvider(ctx context.Context, id string, fn func(*domain.ProviderRecord) (*domain.ProviderRecord, error)) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ensureProviderRow, id); err != nil {
			return fmt.Errorf("failed to lock provider %s: %w", id, err)
		}

		current, err := getProvider(ctx, tx, selectProviderForUpdate, id)
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

		return saveProvider(ctx, tx, updated)
	})
}

// ListProviders returns all provider records sorted by id
func (s *Store) ListProviders(ctx context.Context) ([]*domain.ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx, listProviders)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProviderRecord
	for rows.Next() {
		var (
			id     string
			config []byte
			sync   sql.NullTime
			errMsg string
			items  []byte
		)
		if err := rows.Scan(&id, &config, &sync, &errMsg, &items); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		rec, err := decodeRecord(id, config, sync, errMsg, items)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return records, nil
}

// GetAuth retrieves a provider's auth state
func (s *Store) GetAuth(ctx context.Context, providerID string) (*domain.AuthState, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, selectAuth, providerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && blob == nil) {
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
	if _, err := s.db.ExecContext(ctx, upsertAuth, state.ProviderID, blob); err != nil {
		return fmt.Errorf("failed to save auth for %s: %w", state.ProviderID, err)
	}
	return nil
}

// DeleteAuth clears a provider's auth state
func (s *Store) DeleteAuth(ctx context.Context, providerID string) error {
	if _, err := s.db.ExecContext(ctx, clearAuth, providerID); err != nil {
		return fmt.Errorf("failed to delete auth for %s: %w", providerID, err)
	}
	return nil
}

// Ping checks if the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func getProvider(ctx context.Context, q queryer, query, id string) (*domain.ProviderRecord, error) {
	var (
		config []byte
		sync   sql.NullTime
		errMsg string
		items  []byte
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&config, &sync, &errMsg, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %s: %w", id, err)
	}
	return decodeRecord(id, config, sync, errMsg, items)
}

func saveProvider(ctx context.Context, q queryer, record *domain.ProviderRecord) error {
	config, items, err := encodeRecord(record)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, upsertProvider,
		record.ID, config, NullTime(record.LastSync), record.LastError, items)
	if err != nil {
		return fmt.Errorf("failed to save provider %s: %w", record.ID, err)
	}
	return nil
}

func encodeRecord(record *domain.ProviderRecord) (config, items []byte, err error) {
	config, err = json.Marshal(record.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	entries := record.Items
	if entries == nil {
		entries = []domain.SnapshotEntry{}
	}
	items, err = json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal items: %w", err)
	}
	return config, items, nil
}

// decodeRecord rebuilds a record from its row. A row holding only auth is
// not a record.
func decodeRecord(id string, config []byte, lastSync sql.NullTime, lastError string, items []byte) (*domain.ProviderRecord, error) {
	if config == nil {
		return nil, domain.ErrNotFound
	}

	rec := &domain.ProviderRecord{
		ID:        id,
		LastSync:  TimePtr(lastSync),
		LastError: lastError,
		Items:     []domain.SnapshotEntry{},
	}
	if err := json.Unmarshal(config, &rec.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config for %s: %w", id, err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items for %s: %w", id, err)
		}
	}
	return rec, nil
}
