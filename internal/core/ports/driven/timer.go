package driven

import (
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// FireHandler is invoked with the timer name each time a timer fires
type FireHandler func(name string)

// TimerService manages named, fire-and-forget timers.
// Scheduling a name that already exists replaces it atomically.
type TimerService interface {
	// ScheduleOnce fires name once after delay
	ScheduleOnce(name string, delay time.Duration)

	// ScheduleRepeating fires name every period, first after one period
	ScheduleRepeating(name string, period time.Duration)

	// Cancel removes a timer. Returns false if it did not exist.
	Cancel(name string) bool

	// CancelAll removes every timer
	CancelAll()

	// List returns all pending timers
	List() []domain.TimerInfo

	// OnFire sets the handler for all timers
	OnFire(handler FireHandler)
}
