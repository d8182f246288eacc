package timer

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TimerService = (*Service)(nil)

// Service implements driven.TimerService on top of a Clock.
// Each schedule call bumps a generation; a callback from a replaced or
// cancelled timer sees a stale generation and does nothing.
type Service struct {
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*entry
	handler driven.FireHandler
	gen     uint64
}

type entry struct {
	gen    uint64
	period time.Duration
	next   time.Time
	stop   Stopper
}

// NewService creates a timer service. A nil clock uses the wall clock.
func NewService(clock Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		clock:  clock,
		logger: logger,
		timers: make(map[string]*entry),
	}
}

// ScheduleOnce fires name once after delay
func (s *Service) ScheduleOnce(name string, delay time.Duration) {
	s.schedule(name, delay, 0)
}

// ScheduleRepeating fires name every period, first after one period
func (s *Service) ScheduleRepeating(name string, period time.Duration) {
	s.schedule(name, period, period)
}

func (s *Service) schedule(name string, delay, period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.stop.Stop()
	}

	s.gen++
	gen := s.gen
	e := &entry{gen: gen, period: period, next: s.clock.Now().Add(delay)}
	e.stop = s.clock.AfterFunc(delay, func() { s.fire(name, gen) })
	s.timers[name] = e

	s.logger.Debug("timer scheduled", "timer", name, "delay", delay, "repeating", period > 0)
}

func (s *Service) fire(name string, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[name]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	if e.period > 0 {
		e.next = s.clock.Now().Add(e.period)
		e.stop = s.clock.AfterFunc(e.period, func() { s.fire(name, gen) })
	} else {
		delete(s.timers, name)
	}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(name)
	}
}

// Cancel removes a timer. Returns false if it did not exist.
func (s *Service) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[name]
	if !ok {
		return false
	}
	e.stop.Stop()
	delete(s.timers, name)
	return true
}

// CancelAll removes every timer
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.timers {
		e.stop.Stop()
		delete(s.timers, name)
	}
}

// List returns all pending timers sorted by name
func (s *Service) List() []domain.TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TimerInfo, 0, len(s.timers))
	for name, e := range s.timers {
		out = append(out, domain.TimerInfo{Name: name, Period: e.period, NextRun: e.next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OnFire sets the handler for all timers
func (s *Service) OnFire(handler driven.FireHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}
