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

func TestProviderRegistry_InitializeAggregatesFailures(t *testing.T) {
	store := newMockStore()
	broken := newMockProvider("github", store)
	broken.initErr = errors.New("bad oauth config")
	healthy := newMockProvider("gitlab", store)

	r := NewProviderRegistry(ProviderRegistryConfig{Store: store})
	r.Register(broken)
	r.Register(healthy)

	err := r.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize github")
	assert.Equal(t, 1, healthy.inits, "healthy provider still initialized")

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, 1, healthy.inits, "initialized exactly once")
}

func TestProviderRegistry_RegistrationOrder(t *testing.T) {
	store := newMockStore()
	r := NewProviderRegistry(ProviderRegistryConfig{Store: store})
	r.Register(newMockProvider("gitlab", store))
	r.Register(newMockProvider("github", store))
	r.Register(newMockProvider("gitlab", store))

	var ids []string
	for _, p := range r.GetAllProviders() {
		ids = append(ids, p.Info().ID)
	}
	assert.Equal(t, []string{"gitlab", "github"}, ids)
}

func TestProviderRegistry_GetProvider_NotFound(t *testing.T) {
	r := NewProviderRegistry(ProviderRegistryConfig{Store: newMockStore()})
	_, err := r.GetProvider("bitbucket")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviderRegistry_GetProviderStatus(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	synced := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := enabledRecord("github", "folder-1")
	rec.LastSync = &synced
	rec.LastError = "search: unexpected status 502: bad gateway"
	rec.Items = []domain.SnapshotEntry{{BookmarkID: "bm-1"}, {BookmarkID: "bm-2"}}
	require.NoError(t, store.SaveProvider(ctx, rec))

	p := newMockProvider("github", store)
	p.authenticated = false
	r := NewProviderRegistry(ProviderRegistryConfig{Store: store})
	r.Register(p)

	status, err := r.GetProviderStatus(ctx, "github")
	require.NoError(t, err)

	assert.Equal(t, &domain.ProviderStatus{
		ProviderID:    "github",
		Name:          "github provider",
		Enabled:       true,
		FolderID:      "folder-1",
		Authenticated: false,
		LastSync:      &synced,
		LastError:     rec.LastError,
		ItemCount:     2,
	}, status)
}

func TestProviderRegistry_GetProviderStatus_NoRecord(t *testing.T) {
	store := newMockStore()
	r := NewProviderRegistry(ProviderRegistryConfig{Store: store})
	r.Register(newMockProvider("gitlab", store))

	status, err := r.GetProviderStatus(context.Background(), "gitlab")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.True(t, status.Authenticated)
	assert.Zero(t, status.ItemCount)
}
