package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

func TestStore_SettingsDefault(t *testing.T) {
	store := NewStore()

	settings, err := store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.SyncInterval != domain.DefaultSyncInterval.Milliseconds() {
		t.Errorf("expected default interval, got %d", settings.SyncInterval)
	}

	settings.SyncInterval = 60000
	if err := store.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, _ := store.GetSettings(context.Background())
	if got.SyncInterval != 60000 {
		t.Errorf("expected 60000, got %d", got.SyncInterval)
	}
}

func TestStore_GetProvider_NotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.GetProvider(context.Background(), "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	rec := domain.NewProviderRecord("github", domain.ProviderConfig{
		Enabled: true,
		Fields:  map[string]any{"api_url": "https://api.github.com"},
	})
	if err := store.SaveProvider(ctx, rec); err != nil {
		t.Fatalf("SaveProvider: %v", err)
	}

	rec.Config.Fields["api_url"] = "mutated"

	got, _ := store.GetProvider(ctx, "github")
	if got.Config.String("api_url") != "https://api.github.com" {
		t.Errorf("stored record shares memory with caller: %v", got.Config.Fields)
	}
}

func TestStore_UpdateProvider_PreservesFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	synced := time.Now().UTC()
	rec := domain.NewProviderRecord("github", domain.ProviderConfig{
		FolderID: "123",
		Fields:   map[string]any{"customField": "x"},
	})
	rec.LastSync = &synced
	rec.Items = []domain.SnapshotEntry{{Item: domain.BookmarkItem{ID: "1", ProviderID: "github"}, BookmarkID: "9"}}
	_ = store.SaveProvider(ctx, rec)

	enabled := true
	err := store.UpdateProvider(ctx, "github", func(r *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		r.Config.Apply(domain.ConfigPatch{Enabled: &enabled})
		return r, nil
	})
	if err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}

	got, _ := store.GetProvider(ctx, "github")
	if !got.Config.Enabled || got.Config.FolderID != "123" || got.Config.String("customField") != "x" {
		t.Errorf("config fields lost: %+v", got.Config)
	}
	if len(got.Items) != 1 || got.LastSync == nil {
		t.Errorf("record fields lost: %+v", got)
	}
}

func TestStore_UpdateProvider_ErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveProvider(ctx, domain.NewProviderRecord("github", domain.ProviderConfig{FolderID: "1"}))

	boom := errors.New("boom")
	err := store.UpdateProvider(ctx, "github", func(r *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		r.Config.FolderID = "2"
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := store.GetProvider(ctx, "github")
	if got.Config.FolderID != "1" {
		t.Errorf("expected unchanged folder, got %s", got.Config.FolderID)
	}
}

func TestStore_UpdateProvider_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.UpdateProvider(ctx, "github", func(r *domain.ProviderRecord) (*domain.ProviderRecord, error) {
				if r == nil {
					r = domain.NewProviderRecord("github", domain.ProviderConfig{})
				}
				r.Items = append(r.Items, domain.SnapshotEntry{})
				return r, nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.GetProvider(ctx, "github")
	if len(got.Items) != 50 {
		t.Errorf("expected 50 items, got %d", len(got.Items))
	}
}

func TestStore_Auth(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.GetAuth(ctx, "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	state := domain.NewAuthState("github", &domain.Tokens{AccessToken: "a"}, nil)
	_ = store.SaveAuth(ctx, state)
	state.Tokens.AccessToken = "mutated"

	got, err := store.GetAuth(ctx, "github")
	if err != nil {
		t.Fatalf("GetAuth: %v", err)
	}
	if got.Tokens.AccessToken != "a" {
		t.Errorf("expected a, got %s", got.Tokens.AccessToken)
	}

	_ = store.DeleteAuth(ctx, "github")
	if _, err := store.GetAuth(ctx, "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteAuth(ctx, "github"); err != nil {
		t.Errorf("delete of missing state should succeed: %v", err)
	}
}
