package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// mockStore implements driven.Store for testing
type mockStore struct {
	mu       sync.Mutex
	settings *domain.Settings
	records  map[string]*domain.ProviderRecord
	auths    map[string]*domain.AuthState
	updateFn func(id string) error
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[string]*domain.ProviderRecord),
		auths:   make(map[string]*domain.AuthState),
	}
}

func (m *mockStore) GetSettings(ctx context.Context) (*domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.DefaultSettings(), nil
	}
	s := *m.settings
	return &s, nil
}

func (m *mockStore) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *settings
	m.settings = &s
	return nil
}

func (m *mockStore) GetProvider(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *mockStore) SaveProvider(ctx context.Context, record *domain.ProviderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = copyRecord(record)
	return nil
}

func (m *mockStore) UpdateProvider(ctx context.Context, id string, fn func(*domain.ProviderRecord) (*domain.ProviderRecord, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateFn != nil {
		if err := m.updateFn(id); err != nil {
			return err
		}
	}
	var current *domain.ProviderRecord
	if rec, ok := m.records[id]; ok {
		current = copyRecord(rec)
	}
	updated, err := fn(current)
	if err != nil {
		return err
	}
	m.records[id] = copyRecord(updated)
	return nil
}

func (m *mockStore) ListProviders(ctx context.Context) ([]*domain.ProviderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ProviderRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) GetAuth(ctx context.Context, providerID string) (*domain.AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.auths[providerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s := *state
	return &s, nil
}

func (m *mockStore) SaveAuth(ctx context.Context, state *domain.AuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *state
	m.auths[state.ProviderID] = &s
	return nil
}

func (m *mockStore) DeleteAuth(ctx context.Context, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.auths, providerID)
	return nil
}

func (m *mockStore) record(id string) *domain.ProviderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return copyRecord(rec)
	}
	return nil
}

func copyRecord(rec *domain.ProviderRecord) *domain.ProviderRecord {
	c := *rec
	c.Config = *rec.Config.Clone()
	c.Items = append([]domain.SnapshotEntry(nil), rec.Items...)
	return &c
}

// mockBookmarks implements driven.BookmarkStore for testing
// mockBookmarks fails every call on a done context, like the database-backed trees.
type mockBookmarks struct {
	mu       sync.Mutex
	nodes    map[string]*domain.Bookmark
	nextID   int
	calls    int
	createFn func(b *domain.Bookmark) error
	updateFn func(id string) error
	removeFn func(id string) error
}

func newMockBookmarks(folders ...string) *mockBookmarks {
	m := &mockBookmarks{nodes: make(map[string]*domain.Bookmark)}
	for _, f := range folders {
		m.nodes[f] = &domain.Bookmark{ID: f, Title: f}
	}
	return m
}

func (m *mockBookmarks) Create(ctx context.Context, b *domain.Bookmark) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.createFn != nil {
		if err := m.createFn(b); err != nil {
			return nil, err
		}
	}
	m.nextID++
	node := *b
	node.ID = fmt.Sprintf("bm-%d", m.nextID)
	m.nodes[node.ID] = &node
	out := node
	return &out, nil
}

func (m *mockBookmarks) Update(ctx context.Context, id string, title, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.updateFn != nil {
		if err := m.updateFn(id); err != nil {
			return err
		}
	}
	node, ok := m.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	node.Title = title
	node.URL = url
	return nil
}

func (m *mockBookmarks) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.removeFn != nil {
		if err := m.removeFn(id); err != nil {
			return err
		}
	}
	if _, ok := m.nodes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.nodes, id)
	return nil
}

func (m *mockBookmarks) Get(ctx context.Context, id string) (*domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *node
	return &out, nil
}

// children returns titles of the nodes under parent, sorted.
func (m *mockBookmarks) children(parent string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var titles []string
	for _, n := range m.nodes {
		if n.ParentID == parent {
			titles = append(titles, n.Title)
		}
	}
	sort.Strings(titles)
	return titles
}

func (m *mockBookmarks) mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockProvider implements driven.Provider for testing
type mockProvider struct {
	mu            sync.Mutex
	info          domain.ProviderInfo
	store         *mockStore
	authenticated bool
	items         []*domain.BookmarkItem
	fetchErr      error
	fetches       int
	initErr       error
	inits         int
	authResult    *domain.AuthResult
	revoked       bool
}

func newMockProvider(id string, store *mockStore) *mockProvider {
	return &mockProvider{
		info:          domain.ProviderInfo{ID: id, Name: id + " provider", Version: "1.0.0"},
		store:         store,
		authenticated: true,
	}
}

func (p *mockProvider) Info() domain.ProviderInfo { return p.info }

func (p *mockProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	return p.initErr
}

func (p *mockProvider) Dispose(ctx context.Context) error { return nil }

func (p *mockProvider) Authenticate(ctx context.Context) *domain.AuthResult {
	if p.authResult != nil {
		return p.authResult
	}
	return &domain.AuthResult{Success: true, Token: "token"}
}

func (p *mockProvider) IsAuthenticated(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

func (p *mockProvider) GetToken(ctx context.Context) (string, error) { return "token", nil }

func (p *mockProvider) RefreshToken(ctx context.Context) error { return nil }

func (p *mockProvider) RevokeAuth(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = true
	p.authenticated = false
	return nil
}

func (p *mockProvider) FetchItems(ctx context.Context) ([]*domain.BookmarkItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.items, nil
}

func (p *mockProvider) GetConfig(ctx context.Context) (*domain.ProviderConfig, error) {
	rec, err := p.store.GetProvider(ctx, p.info.ID)
	if err != nil {
		return nil, err
	}
	return &rec.Config, nil
}

func (p *mockProvider) SetConfig(ctx context.Context, patch domain.ConfigPatch) (*domain.ProviderConfig, error) {
	var out *domain.ProviderConfig
	err := p.store.UpdateProvider(ctx, p.info.ID, func(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		if rec == nil {
			rec = domain.NewProviderRecord(p.info.ID, domain.ProviderConfig{})
		}
		rec.Config.Apply(patch)
		out = rec.Config.Clone()
		return rec, nil
	})
	return out, err
}

func (p *mockProvider) setItems(items ...*domain.BookmarkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
}

func (p *mockProvider) setFetchErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErr = err
}

// mockTimers implements driven.TimerService for testing.
// Timers never fire on their own; tests call fire.
type mockTimers struct {
	mu      sync.Mutex
	timers  map[string]domain.TimerInfo
	handler driven.FireHandler
}

func newMockTimers() *mockTimers {
	return &mockTimers{timers: make(map[string]domain.TimerInfo)}
}

func (t *mockTimers) ScheduleOnce(name string, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers[name] = domain.TimerInfo{Name: name, NextRun: time.Now().Add(delay)}
}

func (t *mockTimers) ScheduleRepeating(name string, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers[name] = domain.TimerInfo{Name: name, Period: period, NextRun: time.Now().Add(period)}
}

func (t *mockTimers) Cancel(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[name]
	delete(t.timers, name)
	return ok
}

func (t *mockTimers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.timers)
}

func (t *mockTimers) List() []domain.TimerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TimerInfo, 0, len(t.timers))
	for _, info := range t.timers {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *mockTimers) OnFire(handler driven.FireHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *mockTimers) get(name string) (domain.TimerInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.timers[name]
	return info, ok
}

// fire consumes a one-shot timer and invokes the handler synchronously.
func (t *mockTimers) fire(name string) {
	t.mu.Lock()
	info, ok := t.timers[name]
	if ok && !info.Repeating() {
		delete(t.timers, name)
	}
	handler := t.handler
	t.mu.Unlock()
	if ok && handler != nil {
		handler(name)
	}
}

// mockOAuthClient implements driven.OAuthClient using testify mock
type mockOAuthClient struct {
	mock.Mock
}

func (m *mockOAuthClient) ExchangeCode(ctx context.Context, cfg *domain.OAuthConfig, code, codeVerifier string) (*domain.OAuthToken, error) {
	args := m.Called(ctx, cfg, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OAuthToken), args.Error(1)
}

func (m *mockOAuthClient) RefreshToken(ctx context.Context, cfg *domain.OAuthConfig, refreshToken string) (*domain.OAuthToken, error) {
	args := m.Called(ctx, cfg, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OAuthToken), args.Error(1)
}

func (m *mockOAuthClient) RevokeToken(ctx context.Context, cfg *domain.OAuthConfig, token string) error {
	args := m.Called(ctx, cfg, token)
	return args.Error(0)
}

// mockLauncher implements driven.AuthLauncher. respond builds the redirect
// from the launched auth URL.
type mockLauncher struct {
	mu       sync.Mutex
	launches int
	gate     chan struct{}
	respond  func(authURL string) (string, error)
}

func (l *mockLauncher) Launch(ctx context.Context, providerID, authURL, redirectURL string) (string, error) {
	l.mu.Lock()
	l.launches++
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return l.respond(authURL)
}

func (l *mockLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// mockSigner implements driven.StateSigner with a readable state format
type mockSigner struct{}

func (mockSigner) Sign(providerID string, ttl time.Duration) (string, error) {
	return "state:" + providerID, nil
}

func (mockSigner) Verify(state string) (string, error) {
	const prefix = "state:"
	if len(state) <= len(prefix) || state[:len(prefix)] != prefix {
		return "", domain.ErrInvalidState
	}
	return state[len(prefix):], nil
}

// mockEngine implements driving.SyncEngine with a per-call function
type mockEngine struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(providerID string, call int) (*domain.SyncResult, error)
}

func newMockEngine(fn func(providerID string, call int) (*domain.SyncResult, error)) *mockEngine {
	return &mockEngine{calls: make(map[string]int), fn: fn}
}

func (e *mockEngine) SyncProvider(ctx context.Context, providerID string) (*domain.SyncResult, error) {
	e.mu.Lock()
	e.calls[providerID]++
	call := e.calls[providerID]
	e.mu.Unlock()
	return e.fn(providerID, call)
}

func (e *mockEngine) count(providerID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[providerID]
}

// mockLock implements driven.DistributedLock
type mockLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
}

func (l *mockLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *mockLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func (l *mockLock) Ping(ctx context.Context) error { return nil }

func item(providerID, id, title string, modified time.Time) *domain.BookmarkItem {
	return &domain.BookmarkItem{
		ID:           id,
		ProviderID:   providerID,
		Title:        title,
		URL:          "https://example.com/" + providerID + "/" + id,
		CreatedAt:    modified,
		UpdatedAt:    modified,
		LastModified: modified,
	}
}

func enabledRecord(id, folderID string) *domain.ProviderRecord {
	return domain.NewProviderRecord(id, domain.ProviderConfig{Enabled: true, FolderID: folderID})
}
