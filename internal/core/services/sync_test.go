package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

type syncFixture struct {
	store     *mockStore
	bookmarks *mockBookmarks
	registry  *ProviderRegistry
	engine    *SyncEngine
}

func newSyncFixture(t *testing.T, providers ...*mockProvider) *syncFixture {
	t.Helper()
	f := &syncFixture{
		bookmarks: newMockBookmarks("folder-1", "folder-2"),
	}
	if len(providers) > 0 {
		f.store = providers[0].store
	} else {
		f.store = newMockStore()
	}
	f.registry = NewProviderRegistry(ProviderRegistryConfig{Store: f.store})
	for _, p := range providers {
		f.registry.Register(p)
	}
	f.engine = NewSyncEngine(SyncEngineConfig{
		Registry:  f.registry,
		Store:     f.store,
		Bookmarks: f.bookmarks,
	})
	return f
}

func TestSyncEngine_SyncProvider_AddsItems(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "Fix bug", t0), item("github", "2", "Add feature", t0))

	f := newSyncFixture(t, p)
	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.SyncStats{Added: 2, Total: 2}, result.Stats)
	assert.Equal(t, []string{"Add feature", "Fix bug"}, f.bookmarks.children("folder-1"))

	rec := store.record("github")
	require.Len(t, rec.Items, 2)
	assert.Equal(t, "1", rec.Items[0].Item.ID)
	assert.NotEmpty(t, rec.Items[0].BookmarkID)
	assert.NotNil(t, rec.LastSync)
	assert.Empty(t, rec.LastError)
}

func TestSyncEngine_SyncProvider_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "Fix bug", t0), item("github", "2", "Add feature", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)
	before := f.bookmarks.mutations()

	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStats{Total: 2}, result.Stats)
	assert.Equal(t, before, f.bookmarks.mutations(), "second sync must not touch bookmarks")
}

func TestSyncEngine_SyncProvider_TitleChangeWithoutModificationIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "Fix bug", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	p.setItems(item("github", "1", "Fix bug (renamed)", t0))
	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.Zero(t, result.Stats.Updated)
	assert.Equal(t, []string{"Fix bug"}, f.bookmarks.children("folder-1"))
}

func TestSyncEngine_SyncProvider_DiffCorrectness(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	p := newMockProvider("github", store)
	p.setItems(item("github", "A", "A", t0), item("github", "B", "B", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	p.setItems(item("github", "B", "B'", t1), item("github", "C", "C", t0))
	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStats{Added: 1, Updated: 1, Removed: 1, Total: 2}, result.Stats)
	assert.Equal(t, []string{"B'", "C"}, f.bookmarks.children("folder-1"))

	rec := store.record("github")
	require.Len(t, rec.Items, 2)
	assert.Equal(t, "B", rec.Items[0].Item.ID)
	assert.True(t, rec.Items[0].Item.LastModified.Equal(t1))
	assert.Equal(t, "C", rec.Items[1].Item.ID)
}

func TestSyncEngine_SyncProvider_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		config domain.ProviderConfig
	}{
		{"disabled", domain.ProviderConfig{Enabled: false, FolderID: "folder-1"}},
		{"no folder", domain.ProviderConfig{Enabled: true}},
		{"missing folder", domain.ProviderConfig{Enabled: true, FolderID: "gone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			require.NoError(t, store.SaveProvider(ctx, domain.NewProviderRecord("github", tt.config)))
			p := newMockProvider("github", store)

			f := newSyncFixture(t, p)
			result, err := f.engine.SyncProvider(ctx, "github")

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.False(t, result.Success)
			assert.Zero(t, p.fetches, "fetch must not run")
			assert.NotEmpty(t, store.record("github").LastError)
		})
	}
}

func TestSyncEngine_SyncProvider_NotAuthenticated(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))
	p := newMockProvider("github", store)
	p.authenticated = false

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")

	var authErr *domain.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, p.fetches)
}

func TestSyncEngine_SyncProvider_FetchErrorPropagatesUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))
	netErr := &domain.NetworkError{Op: "search", StatusCode: 502, Err: errors.New("bad gateway")}
	p := newMockProvider("github", store)
	p.setFetchErr(netErr)

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")

	assert.Same(t, netErr, err)
	assert.Zero(t, f.bookmarks.mutations())
}

func TestSyncEngine_SyncProvider_DuplicateItemsRejected(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "one", t0), item("github", "1", "one again", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")

	assert.ErrorIs(t, err, domain.ErrDuplicateItem)
	assert.Zero(t, f.bookmarks.mutations())
}

func TestSyncEngine_SyncProvider_RollsBackOnApplyFailure(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	p := newMockProvider("github", store)
	p.setItems(item("github", "A", "A", t0), item("github", "B", "B", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)
	prior := store.record("github")

	// add C, update B, then fail removing A
	p.setItems(item("github", "B", "B'", t1), item("github", "C", "C", t0))
	f.bookmarks.removeFn = func(id string) error {
		if id == prior.Items[0].BookmarkID {
			return errors.New("bookmark api unavailable")
		}
		return nil
	}

	_, err = f.engine.SyncProvider(ctx, "github")
	require.Error(t, err)

	assert.Equal(t, []string{"A", "B"}, f.bookmarks.children("folder-1"))

	rec := store.record("github")
	assert.Equal(t, prior.Items, rec.Items)
	assert.Equal(t, prior.LastSync, rec.LastSync)
	assert.Contains(t, rec.LastError, "bookmark api unavailable")
}

func TestSyncEngine_SyncProvider_CompletesAfterCallerCancels(t *testing.T) {
	store := newMockStore()
	require.NoError(t, store.SaveProvider(context.Background(), enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "One", t0), item("github", "2", "Two", t0), item("github", "3", "Three", t0))

	f := newSyncFixture(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the caller goes away while the first bookmark is being written
	f.bookmarks.createFn = func(*domain.Bookmark) error {
		cancel()
		return nil
	}

	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Stats.Added)

	assert.Equal(t, []string{"One", "Three", "Two"}, f.bookmarks.children("folder-1"))
	assert.Len(t, store.record("github").Items, 3)
}

func TestSyncEngine_SyncProvider_RollsBackAfterCallerCancels(t *testing.T) {
	store := newMockStore()
	require.NoError(t, store.SaveProvider(context.Background(), enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "1", "One", t0), item("github", "2", "Two", t0))

	f := newSyncFixture(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f.bookmarks.createFn = func(*domain.Bookmark) error {
		calls++
		cancel()
		if calls == 2 {
			return errors.New("bookmark api unavailable")
		}
		return nil
	}

	_, err := f.engine.SyncProvider(ctx, "github")
	require.Error(t, err)

	assert.Empty(t, f.bookmarks.children("folder-1"))
	rec := store.record("github")
	assert.Empty(t, rec.Items)
	assert.Contains(t, rec.LastError, "bookmark api unavailable")
}

func TestSyncEngine_SyncProvider_RollbackRemapsRecreatedNodes(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "A", "A", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	// A is removed, then the commit fails
	p.setItems()
	store.updateFn = func(id string) error {
		store.updateFn = nil
		return errors.New("store offline")
	}

	_, err = f.engine.SyncProvider(ctx, "github")
	require.Error(t, err)

	assert.Equal(t, []string{"A"}, f.bookmarks.children("folder-1"))

	rec := store.record("github")
	require.Len(t, rec.Items, 1)
	node, err := f.bookmarks.Get(ctx, rec.Items[0].BookmarkID)
	require.NoError(t, err, "snapshot must point at the recreated node")
	assert.Equal(t, "A", node.Title)
}

func TestSyncEngine_SyncProvider_RecreatesManuallyDeletedNodeOnUpdate(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newMockProvider("github", store)
	p.setItems(item("github", "A", "A", t0))

	f := newSyncFixture(t, p)
	_, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	require.NoError(t, f.bookmarks.Remove(ctx, store.record("github").Items[0].BookmarkID))

	p.setItems(item("github", "A", "A'", t0.Add(time.Minute)))
	result, err := f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Updated)
	assert.Equal(t, []string{"A'"}, f.bookmarks.children("folder-1"))
}

func TestSyncEngine_SyncProvider_IsolatedPerProvider(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("github", "folder-1")))
	require.NoError(t, store.SaveProvider(ctx, enabledRecord("gitlab", "folder-2")))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gh := newMockProvider("github", store)
	gh.setItems(item("github", "1", "gh-1", t0))
	gl := newMockProvider("gitlab", store)
	gl.setFetchErr(&domain.NetworkError{Op: "list merge requests", Err: errors.New("timeout")})

	f := newSyncFixture(t, gh, gl)

	_, err := f.engine.SyncProvider(ctx, "gitlab")
	require.Error(t, err)
	_, err = f.engine.SyncProvider(ctx, "github")
	require.NoError(t, err)

	assert.Equal(t, []string{"gh-1"}, f.bookmarks.children("folder-1"))
	assert.Empty(t, f.bookmarks.children("folder-2"))
	assert.Empty(t, store.record("github").LastError)
	assert.NotEmpty(t, store.record("gitlab").LastError)
}

func TestSyncEngine_SyncProvider_UnknownProvider(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.engine.SyncProvider(context.Background(), "bitbucket")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
