package timer

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) handle(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, name)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func newTestService() (*Service, *FakeClock, *recorder) {
	clock := NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewService(clock, nil)
	rec := &recorder{}
	s.OnFire(rec.handle)
	return s, clock, rec
}

func TestService_ScheduleOnce(t *testing.T) {
	s, clock, rec := newTestService()
	s.ScheduleOnce("retry-sync-github", 5*time.Minute)

	clock.Advance(4 * time.Minute)
	if len(rec.names()) != 0 {
		t.Fatalf("fired early: %v", rec.names())
	}

	clock.Advance(time.Minute)
	if got := rec.names(); !reflect.DeepEqual(got, []string{"retry-sync-github"}) {
		t.Fatalf("unexpected fires: %v", got)
	}
	if len(s.List()) != 0 {
		t.Error("one-shot timer should be gone after firing")
	}

	clock.Advance(time.Hour)
	if len(rec.names()) != 1 {
		t.Error("one-shot timer fired twice")
	}
}

func TestService_ScheduleRepeating(t *testing.T) {
	s, clock, rec := newTestService()
	s.ScheduleRepeating("periodic-sync", time.Minute)

	clock.Advance(3*time.Minute + 30*time.Second)
	if n := len(rec.names()); n != 3 {
		t.Fatalf("expected 3 fires, got %d", n)
	}

	list := s.List()
	if len(list) != 1 || list[0].Period != time.Minute || !list[0].Repeating() {
		t.Fatalf("unexpected list: %+v", list)
	}
	want := time.Date(2025, 1, 1, 0, 4, 0, 0, time.UTC)
	if !list[0].NextRun.Equal(want) {
		t.Errorf("expected next run %v, got %v", want, list[0].NextRun)
	}
}

func TestService_RescheduleReplaces(t *testing.T) {
	s, clock, rec := newTestService()
	s.ScheduleRepeating("periodic-sync", time.Minute)
	s.ScheduleRepeating("periodic-sync", 10*time.Minute)

	clock.Advance(9 * time.Minute)
	if len(rec.names()) != 0 {
		t.Fatalf("replaced timer still fired: %v", rec.names())
	}
	if clock.Pending() != 1 {
		t.Errorf("expected 1 pending callback, got %d", clock.Pending())
	}

	clock.Advance(time.Minute)
	if len(rec.names()) != 1 {
		t.Errorf("expected 1 fire, got %d", len(rec.names()))
	}
}

func TestService_Cancel(t *testing.T) {
	s, clock, rec := newTestService()
	s.ScheduleOnce("a", time.Minute)
	s.ScheduleOnce("b", time.Minute)

	if !s.Cancel("a") {
		t.Error("expected Cancel to report an existing timer")
	}
	if s.Cancel("a") {
		t.Error("expected Cancel to report a missing timer")
	}

	clock.Advance(time.Minute)
	if got := rec.names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("unexpected fires: %v", got)
	}

	s.ScheduleRepeating("c", time.Minute)
	s.ScheduleOnce("d", time.Minute)
	s.CancelAll()
	clock.Advance(time.Hour)
	if len(rec.names()) != 1 || len(s.List()) != 0 {
		t.Errorf("CancelAll left timers: fired=%v list=%v", rec.names(), s.List())
	}
}

func TestService_HandlerCanReschedule(t *testing.T) {
	clock := NewFakeClock(time.Now())
	s := NewService(clock, nil)
	var count int
	s.OnFire(func(name string) {
		count++
		if count < 3 {
			s.ScheduleOnce(name, time.Minute)
		}
	})

	s.ScheduleOnce("retry", time.Minute)
	clock.Advance(10 * time.Minute)
	if count != 3 {
		t.Errorf("expected 3 fires, got %d", count)
	}
}

func TestService_RealClock(t *testing.T) {
	s := NewService(nil, nil)
	done := make(chan string, 1)
	s.OnFire(func(name string) { done <- name })

	s.ScheduleOnce("now", time.Millisecond)
	select {
	case name := <-done:
		if name != "now" {
			t.Errorf("unexpected timer %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
