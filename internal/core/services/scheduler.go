package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// Ensure BackgroundScheduler implements driving.Scheduler
var _ driving.Scheduler = (*BackgroundScheduler)(nil)

// sweepLockName is the distributed lock guarding SyncAll across instances
const sweepLockName = "sweep"

// BackgroundScheduler drives periodic sweeps and per-provider retries.
//
// For multi-instance deployments sharing one store, configure a
// DistributedLock so only one instance sweeps at a time.
type BackgroundScheduler struct {
	engine   driving.SyncEngine
	registry driving.ProviderRegistry
	store    driven.Store
	timers   driven.TimerService
	lock     driven.DistributedLock
	retries  *RetryRepository
	logger   *slog.Logger

	maxRetries int
	retryDelay time.Duration
	lockTTL    time.Duration

	// mu serializes periodic timer and interval changes
	mu         sync.Mutex
	baseCtx    context.Context
	inProgress atomic.Bool
	fired      sync.WaitGroup

	// one sync at a time per provider
	providerMu sync.Map
}

// BackgroundSchedulerConfig holds configuration for the scheduler.
type BackgroundSchedulerConfig struct {
	Engine   driving.SyncEngine
	Registry driving.ProviderRegistry
	Store    driven.Store
	Timers   driven.TimerService
	Lock     driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Retries  *RetryRepository       // Optional: defaults to a fresh repository
	Logger   *slog.Logger

	MaxRetries int           // Retries per failure episode (default: 3)
	RetryDelay time.Duration // Delay before a retry (default: 5m)
	LockTTL    time.Duration // TTL for the sweep lock (default: 10m)
}

// NewBackgroundScheduler creates a new scheduler. Call Start to install timers.
func NewBackgroundScheduler(cfg BackgroundSchedulerConfig) *BackgroundScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retries := cfg.Retries
	if retries == nil {
		retries = NewRetryRepository()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = domain.MaxRetries
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = domain.RetryDelay
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 10 * time.Minute
	}

	return &BackgroundScheduler{
		engine:     cfg.Engine,
		registry:   cfg.Registry,
		store:      cfg.Store,
		timers:     cfg.Timers,
		lock:       cfg.Lock,
		retries:    retries,
		logger:     logger,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		lockTTL:    lockTTL,
		baseCtx:    context.Background(),
	}
}

// Start installs the fire handler and the periodic timer from stored settings.
// Timer-triggered syncs run with ctx.
func (s *BackgroundScheduler) Start(ctx context.Context) error {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	s.timers.OnFire(s.handleFire)
	period := s.schedulePeriodicLocked(settings.SyncInterval)

	s.logger.Info("scheduler started", "period", period)
	return nil
}

// handleFire dispatches a fired timer to a sweep or a provider retry.
func (s *BackgroundScheduler) handleFire(name string) {
	s.fired.Add(1)
	defer s.fired.Done()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if name == domain.PeriodicSyncTimer {
		if _, err := s.SyncAll(ctx); err != nil {
			s.logger.Error("periodic sweep failed", "error", err)
		}
		return
	}

	if providerID, ok := domain.ParseRetryTimerName(name); ok {
		s.logger.Info("retrying sync", "provider_id", providerID, "attempt", s.retries.Get(providerID))
		_, _ = s.SyncProvider(ctx, providerID)
		return
	}

	s.logger.Warn("unknown timer fired", "timer", name)
}

// SyncAll syncs every eligible provider concurrently. A call made while a
// sweep is running returns a skipped result without touching any state.
func (s *BackgroundScheduler) SyncAll(ctx context.Context) (*domain.SweepResult, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.logger.Info("sweep already in progress, skipping")
		return &domain.SweepResult{Skipped: true}, nil
	}
	defer s.inProgress.Store(false)

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, sweepLockName, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			s.logger.Info("sweep lock held by another instance, skipping")
			return &domain.SweepResult{Skipped: true}, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), sweepLockName); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	startTime := time.Now()
	eligible := s.eligibleProviders(ctx)

	results := make([]*domain.SyncResult, len(eligible))
	var wg sync.WaitGroup
	for i, id := range eligible {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			result, err := s.SyncProvider(ctx, id)
			if result == nil {
				result = &domain.SyncResult{ProviderID: id}
				if err != nil {
					result.Error = err.Error()
				}
			}
			results[i] = result
		}(i, id)
	}
	wg.Wait()

	sweep := &domain.SweepResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			sweep.Successful++
		} else {
			sweep.Failed++
		}
	}

	s.logger.Info("sweep completed",
		"total", sweep.Total,
		"successful", sweep.Successful,
		"failed", sweep.Failed,
		"duration_seconds", time.Since(startTime).Seconds(),
	)
	return sweep, nil
}

// eligibleProviders returns the ids of enabled providers with a target folder.
func (s *BackgroundScheduler) eligibleProviders(ctx context.Context) []string {
	var ids []string
	for _, p := range s.registry.GetAllProviders() {
		id := p.Info().ID
		cfg, err := p.GetConfig(ctx)
		if err != nil {
			s.logger.Warn("failed to read provider config", "provider_id", id, "error", err)
			continue
		}
		if cfg.IsSyncable() {
			ids = append(ids, id)
		}
	}
	return ids
}

// SyncProvider runs the sync engine for one provider and owns the retry
// decision. Retryable failures schedule one retry timer until the retry budget
// is spent, at which point a RetryExhaustedError is returned and the provider
// waits for the next periodic sweep.
func (s *BackgroundScheduler) SyncProvider(ctx context.Context, providerID string) (*domain.SyncResult, error) {
	unlock := s.lockProvider(providerID)
	defer unlock()

	retryTimer := domain.RetryTimerName(providerID)

	result, err := s.engine.SyncProvider(ctx, providerID)
	if err == nil {
		s.retries.Reset(providerID)
		s.timers.Cancel(retryTimer)
		return result, nil
	}

	if !domain.IsRetryable(err) {
		s.retries.Reset(providerID)
		s.timers.Cancel(retryTimer)
		return result, err
	}

	if attempt, ok := s.retries.Increment(providerID, s.maxRetries); ok {
		s.timers.ScheduleOnce(retryTimer, s.retryDelay)
		s.logger.Warn("sync failed, retry scheduled",
			"provider_id", providerID,
			"attempt", attempt,
			"delay", s.retryDelay,
			"error", err,
		)
		return result, err
	}

	exhausted := &domain.RetryExhaustedError{
		ProviderID: providerID,
		Attempts:   s.retries.Get(providerID),
		Last:       err,
	}
	s.retries.Reset(providerID)
	s.logger.Error("sync retries exhausted", "provider_id", providerID, "error", exhausted)

	if result != nil {
		result.Error = exhausted.Error()
	}
	return result, exhausted
}

// UpdateInterval persists a new sync interval in milliseconds and replaces the
// periodic timer.
func (s *BackgroundScheduler) UpdateInterval(ctx context.Context, intervalMS int64) error {
	if intervalMS <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", domain.ErrInvalidInput, intervalMS)
	}

	// the stored interval and the live timer change together
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings.SyncInterval = intervalMS
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	period := s.schedulePeriodicLocked(intervalMS)

	s.logger.Info("sync interval updated", "interval_ms", intervalMS, "period", period)
	return nil
}

// schedulePeriodicLocked replaces the periodic timer. Callers hold s.mu.
func (s *BackgroundScheduler) schedulePeriodicLocked(intervalMS int64) time.Duration {
	period := time.Duration(domain.IntervalToMinutes(intervalMS)) * time.Minute
	s.timers.ScheduleRepeating(domain.PeriodicSyncTimer, period)
	return period
}

// GetStatus returns the periodic timer, pending retry timers and the
// in-progress flag.
func (s *BackgroundScheduler) GetStatus() *domain.SchedulerStatus {
	status := &domain.SchedulerStatus{
		Retries:    []domain.TimerInfo{},
		RetryState: s.retries.Snapshot(),
		InProgress: s.inProgress.Load(),
	}
	for _, t := range s.timers.List() {
		if t.Name == domain.PeriodicSyncTimer {
			periodic := t
			status.Periodic = &periodic
			continue
		}
		if _, ok := domain.ParseRetryTimerName(t.Name); ok {
			status.Retries = append(status.Retries, t)
		}
	}
	return status
}

// Dispose cancels all timers and clears retry bookkeeping.
func (s *BackgroundScheduler) Dispose() {
	s.mu.Lock()
	s.timers.CancelAll()
	s.mu.Unlock()
	s.retries.Clear()
	s.logger.Info("scheduler disposed")
}

// Wait blocks until timer-triggered syncs that already started have finished.
func (s *BackgroundScheduler) Wait() {
	s.fired.Wait()
}

func (s *BackgroundScheduler) lockProvider(providerID string) func() {
	v, _ := s.providerMu.LoadOrStore(providerID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
