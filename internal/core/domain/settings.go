package domain

import "time"

// DefaultSyncInterval is used until the user picks an interval
const DefaultSyncInterval = 15 * time.Minute

// Settings holds global user settings
type Settings struct {
	// SyncInterval in milliseconds
	SyncInterval int64  `json:"syncInterval"`
	Theme        string `json:"theme,omitempty"`
}

// DefaultSettings returns sensible defaults
func DefaultSettings() *Settings {
	return &Settings{
		SyncInterval: DefaultSyncInterval.Milliseconds(),
		Theme:        "system",
	}
}

// SyncPeriodMinutes converts the interval to whole minutes with a floor of 1.
func (s *Settings) SyncPeriodMinutes() int {
	return IntervalToMinutes(s.SyncInterval)
}

// IntervalToMinutes converts milliseconds to whole minutes, never below 1.
func IntervalToMinutes(ms int64) int {
	minutes := int(ms / int64(time.Minute/time.Millisecond))
	if minutes < 1 {
		return 1
	}
	return minutes
}
