package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// Ensure SyncEngine implements driving.SyncEngine
var _ driving.SyncEngine = (*SyncEngine)(nil)

// SyncEngine reconciles one provider's items into its bookmark folder.
// It implements the sync flow:
//  1. Load config and verify the target folder
//  2. Require a valid token
//  3. Fetch items
//  4. Reconcile against the stored snapshot
//  5. Apply the diff and commit the new snapshot
//  6. Report counts
type SyncEngine struct {
	registry  driving.ProviderRegistry
	store     driven.Store
	bookmarks driven.BookmarkStore
	logger    *slog.Logger
	now       func() time.Time
}

// SyncEngineConfig holds dependencies for SyncEngine.
type SyncEngineConfig struct {
	Registry  driving.ProviderRegistry
	Store     driven.Store
	Bookmarks driven.BookmarkStore
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewSyncEngine creates a new sync engine.
func NewSyncEngine(cfg SyncEngineConfig) *SyncEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SyncEngine{
		registry:  cfg.Registry,
		store:     cfg.Store,
		bookmarks: cfg.Bookmarks,
		logger:    logger,
		now:       now,
	}
}

// SyncProvider synchronizes a single provider. Either the whole diff is applied
// and the new snapshot committed, or the bookmark folder and snapshot are left
// as they were.
//
// A started sync runs to completion: cancelling ctx does not stop it, so a
// client that disconnects mid-apply cannot strand a half-applied diff.
func (e *SyncEngine) SyncProvider(ctx context.Context, providerID string) (*domain.SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	startTime := time.Now()

	provider, err := e.registry.GetProvider(providerID)
	if err != nil {
		return e.failSync(ctx, providerID, startTime, nil, err)
	}

	// Step 1: Load config
	cfg, err := provider.GetConfig(ctx)
	if err != nil {
		return e.failSync(ctx, providerID, startTime, nil, fmt.Errorf("failed to get config: %w", err))
	}
	if !cfg.Enabled {
		return e.failSync(ctx, providerID, startTime, nil, domain.NewConfigurationError(providerID, "provider is disabled"))
	}
	if cfg.FolderID == "" {
		return e.failSync(ctx, providerID, startTime, nil, domain.NewConfigurationError(providerID, "no target folder set"))
	}
	if _, err := e.bookmarks.Get(ctx, cfg.FolderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.NewConfigurationError(providerID, fmt.Sprintf("target folder %s does not exist", cfg.FolderID))
		}
		return e.failSync(ctx, providerID, startTime, nil, err)
	}

	// Step 2: Require a token
	if !provider.IsAuthenticated(ctx) {
		return e.failSync(ctx, providerID, startTime, nil, domain.NewAuthenticationError(providerID, nil))
	}

	e.logger.Info("starting sync", "provider_id", providerID)

	// Step 3: Fetch
	items, err := provider.FetchItems(ctx)
	if err != nil {
		return e.failSync(ctx, providerID, startTime, nil, err)
	}

	// Step 4: Reconcile
	var snapshot []domain.SnapshotEntry
	record, err := e.store.GetProvider(ctx, providerID)
	switch {
	case err == nil:
		snapshot = record.Items
	case !errors.Is(err, domain.ErrNotFound):
		return e.failSync(ctx, providerID, startTime, nil, fmt.Errorf("failed to load snapshot: %w", err))
	}

	diff, err := domain.Reconcile(snapshot, items)
	if err != nil {
		return e.failSync(ctx, providerID, startTime, nil, err)
	}

	// Step 5: Apply and commit
	j := &journal{}
	bookmarkIDs, err := e.apply(ctx, cfg.FolderID, diff, j)
	if err != nil {
		remap := e.compensate(ctx, providerID, cfg.FolderID, j)
		return e.failSync(ctx, providerID, startTime, remap, err)
	}

	syncedAt := e.now()
	entries := buildSnapshot(items, diff, bookmarkIDs)
	err = e.store.UpdateProvider(ctx, providerID, func(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		if rec == nil {
			rec = domain.NewProviderRecord(providerID, *cfg)
		}
		rec.Items = entries
		rec.LastSync = &syncedAt
		rec.LastError = ""
		return rec, nil
	})
	if err != nil {
		remap := e.compensate(ctx, providerID, cfg.FolderID, j)
		return e.failSync(ctx, providerID, startTime, remap, fmt.Errorf("failed to commit snapshot: %w", err))
	}

	// Step 6: Report
	result := &domain.SyncResult{
		ProviderID: providerID,
		Success:    true,
		Stats: domain.SyncStats{
			Added:   len(diff.Added),
			Updated: len(diff.Updated),
			Removed: len(diff.Removed),
			Total:   len(items),
		},
		Duration: time.Since(startTime).Seconds(),
		SyncedAt: syncedAt,
	}

	e.logger.Info("sync completed",
		"provider_id", providerID,
		"added", result.Stats.Added,
		"updated", result.Stats.Updated,
		"removed", result.Stats.Removed,
		"total", result.Stats.Total,
		"duration_seconds", result.Duration,
	)

	return result, nil
}

// apply writes the diff to the bookmark folder in add, update, remove order,
// journaling each step. It returns the bookmark id for every added or updated key.
func (e *SyncEngine) apply(ctx context.Context, folderID string, diff *domain.Diff, j *journal) (map[domain.ItemKey]string, error) {
	ids := make(map[domain.ItemKey]string, len(diff.Added)+len(diff.Updated))

	for _, item := range diff.Added {
		created, err := e.bookmarks.Create(ctx, domain.BookmarkFromItem(folderID, item))
		if err != nil {
			return nil, fmt.Errorf("failed to create bookmark for %s: %w", item.Key(), err)
		}
		j.created(created.ID)
		ids[item.Key()] = created.ID
	}

	for _, u := range diff.Updated {
		id := u.Previous.BookmarkID
		err := e.bookmarks.Update(ctx, id, u.Current.Title, u.Current.URL)
		if errors.Is(err, domain.ErrNotFound) {
			// the node was deleted by hand; put it back
			created, cerr := e.bookmarks.Create(ctx, domain.BookmarkFromItem(folderID, u.Current))
			if cerr != nil {
				return nil, fmt.Errorf("failed to recreate bookmark for %s: %w", u.Current.Key(), cerr)
			}
			j.created(created.ID)
			ids[u.Current.Key()] = created.ID
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update bookmark for %s: %w", u.Current.Key(), err)
		}
		j.updated(id, u.Previous.Item)
		ids[u.Current.Key()] = id
	}

	for _, entry := range diff.Removed {
		err := e.bookmarks.Remove(ctx, entry.BookmarkID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to remove bookmark for %s: %w", entry.Item.Key(), err)
		}
		j.removed(entry.BookmarkID, entry.Item)
	}

	return ids, nil
}

// compensate undoes the journal in reverse order. Removed nodes come back with
// new ids; the returned map translates old ids to new ones so the prior
// snapshot can be pointed at live nodes. Compensation failures are logged.
func (e *SyncEngine) compensate(ctx context.Context, providerID, folderID string, j *journal) map[string]string {
	remap := make(map[string]string)
	for i := len(j.ops) - 1; i >= 0; i-- {
		op := j.ops[i]
		var err error
		switch op.kind {
		case opCreate:
			err = e.bookmarks.Remove(ctx, op.bookmarkID)
			if errors.Is(err, domain.ErrNotFound) {
				err = nil
			}
		case opUpdate:
			err = e.bookmarks.Update(ctx, op.bookmarkID, op.previous.Title, op.previous.URL)
		case opRemove:
			var created *domain.Bookmark
			created, err = e.bookmarks.Create(ctx, domain.BookmarkFromItem(folderID, &op.previous))
			if err == nil {
				remap[op.bookmarkID] = created.ID
			}
		}
		if err != nil {
			e.logger.Error("rollback step failed",
				"provider_id", providerID,
				"bookmark_id", op.bookmarkID,
				"op", op.kind.String(),
				"error", err,
			)
		}
	}
	if len(j.ops) > 0 {
		e.logger.Warn("rolled back partial sync", "provider_id", providerID, "steps", len(j.ops))
	}
	return remap
}

// failSync records the error on the provider record, remapping any recreated
// bookmark ids in the kept snapshot.
func (e *SyncEngine) failSync(
	ctx context.Context,
	providerID string,
	startTime time.Time,
	remap map[string]string,
	err error,
) (*domain.SyncResult, error) {
	duration := time.Since(startTime).Seconds()

	if domain.IsCancelled(err) {
		e.logger.Info("sync skipped, authentication cancelled", "provider_id", providerID)
	} else {
		e.logger.Error("sync failed", "provider_id", providerID, "duration_seconds", duration, "error", err)
	}

	if !errors.Is(err, domain.ErrProviderNotFound) {
		updateErr := e.store.UpdateProvider(ctx, providerID, func(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
			if rec == nil {
				return nil, domain.ErrNotFound
			}
			rec.LastError = err.Error()
			for i := range rec.Items {
				if newID, ok := remap[rec.Items[i].BookmarkID]; ok {
					rec.Items[i].BookmarkID = newID
				}
			}
			return rec, nil
		})
		if updateErr != nil && !errors.Is(updateErr, domain.ErrNotFound) {
			e.logger.Warn("failed to record sync error", "provider_id", providerID, "error", updateErr)
		}
	}

	return &domain.SyncResult{
		ProviderID: providerID,
		Success:    false,
		Error:      err.Error(),
		Duration:   duration,
		SyncedAt:   e.now(),
	}, err
}

// buildSnapshot produces the committed snapshot in fetch order.
func buildSnapshot(items []*domain.BookmarkItem, diff *domain.Diff, ids map[domain.ItemKey]string) []domain.SnapshotEntry {
	unchanged := make(map[domain.ItemKey]domain.SnapshotEntry, len(diff.Unchanged))
	for _, entry := range diff.Unchanged {
		unchanged[entry.Item.Key()] = entry
	}

	entries := make([]domain.SnapshotEntry, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if entry, ok := unchanged[key]; ok {
			entries = append(entries, entry)
			continue
		}
		entries = append(entries, domain.SnapshotEntry{Item: *item, BookmarkID: ids[key]})
	}
	return entries
}

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opRemove
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	default:
		return "remove"
	}
}

type journalOp struct {
	kind       opKind
	bookmarkID string
	previous   domain.BookmarkItem
}

// journal records applied bookmark mutations for rollback.
type journal struct {
	ops []journalOp
}

func (j *journal) created(id string) {
	j.ops = append(j.ops, journalOp{kind: opCreate, bookmarkID: id})
}

func (j *journal) updated(id string, previous domain.BookmarkItem) {
	j.ops = append(j.ops, journalOp{kind: opUpdate, bookmarkID: id, previous: previous})
}

func (j *journal) removed(id string, previous domain.BookmarkItem) {
	j.ops = append(j.ops, journalOp{kind: opRemove, bookmarkID: id, previous: previous})
}
