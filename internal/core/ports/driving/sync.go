package driving

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// SyncEngine reconciles one provider's items into the bookmark folder
type SyncEngine interface {
	// SyncProvider fetches and reconciles a provider. All-or-nothing.
	SyncProvider(ctx context.Context, providerID string) (*domain.SyncResult, error)
}

// Scheduler drives periodic and retry-triggered syncs
type Scheduler interface {
	// Start installs the periodic timer from stored settings
	Start(ctx context.Context) error

	// SyncAll sweeps every eligible provider. A concurrent call is skipped.
	SyncAll(ctx context.Context) (*domain.SweepResult, error)

	// SyncProvider syncs one provider with retry bookkeeping
	SyncProvider(ctx context.Context, providerID string) (*domain.SyncResult, error)

	// UpdateInterval persists a new interval (ms) and reschedules
	UpdateInterval(ctx context.Context, intervalMS int64) error

	// GetStatus returns timers and the in-progress flag
	GetStatus() *domain.SchedulerStatus

	// Dispose cancels every timer and clears retry bookkeeping
	Dispose()
}
