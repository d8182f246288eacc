package domain

import (
	"strings"
	"time"
)

const (
	// MaxRetries bounds consecutive retries within one failure episode
	MaxRetries = 3

	// RetryDelay is the fixed delay before a retry
	RetryDelay = 5 * time.Minute

	// PeriodicSyncTimer names the periodic sweep timer
	PeriodicSyncTimer = "periodic-sync"

	retryTimerPrefix = "retry-sync-"
)

// RetryTimerName returns the timer name for a provider's retry.
func RetryTimerName(providerID string) string {
	return retryTimerPrefix + providerID
}

// ParseRetryTimerName extracts the provider id from a retry timer name.
func ParseRetryTimerName(name string) (string, bool) {
	if !strings.HasPrefix(name, retryTimerPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, retryTimerPrefix)
	return id, id != ""
}

// RetryState is the scheduler's per-provider retry bookkeeping
type RetryState struct {
	ProviderID string `json:"providerId"`
	RetryCount int    `json:"retryCount"`
}

// TimerInfo describes a scheduled timer
type TimerInfo struct {
	Name    string        `json:"name"`
	Period  time.Duration `json:"period,omitempty"`
	NextRun time.Time     `json:"nextRun"`
}

// Repeating checks if the timer fires periodically
func (t TimerInfo) Repeating() bool {
	return t.Period > 0
}

// SchedulerStatus is the observable state of the background scheduler
type SchedulerStatus struct {
	Periodic   *TimerInfo   `json:"periodic,omitempty"`
	Retries    []TimerInfo  `json:"retries"`
	RetryState []RetryState `json:"retryState,omitempty"`
	InProgress bool         `json:"inProgress"`
}
