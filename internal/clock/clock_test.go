package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeTime() *fakeTime { return &fakeTime{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestScheduler(t *testing.T, ft *fakeTime) *Scheduler {
	t.Helper()
	return NewScheduler(Config{Interval: time.Second, Workers: 2, ExpiryBuffer: 8, Now: ft.Now})
}

func TestSwitchTurnCreditsMoverOnly(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, err := s.NewClock("g1", 180000, 180000, 2000, domain.White)
	if err != nil { t.Fatalf("NewClock: %v", err) }

	ft.Advance(3 * time.Second)
	times, err := c.SwitchTurn()
	if err != nil { t.Fatalf("SwitchTurn: %v", err) }
	if times.WhiteMs != 180000-3000+2000 { t.Fatalf("white after move = %d", times.WhiteMs) }
	if times.BlackMs != 180000 { t.Fatalf("black must be untouched, got %d", times.BlackMs) }
	if c.ToMove() != domain.Black { t.Fatalf("expected black to move") }

	ft.Advance(1500 * time.Millisecond)
	times, err = c.SwitchTurn()
	if err != nil { t.Fatalf("SwitchTurn: %v", err) }
	if times.BlackMs != 180000-1500+2000 { t.Fatalf("black after move = %d", times.BlackMs) }
	if times.WhiteMs != 179000 { t.Fatalf("white must be untouched, got %d", times.WhiteMs) }
}

func TestRevertTurnRestoresMover(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 180000, 180000, 2000, domain.White)

	if c.RevertTurn() { t.Fatalf("nothing to revert yet") }
	ft.Advance(3 * time.Second)
	if _, err := c.SwitchTurn(); err != nil { t.Fatalf("SwitchTurn: %v", err) }
	ft.Advance(500 * time.Millisecond)
	c.tick(ft.Now())
	if got := c.TimeLeft().BlackMs; got != 179500 { t.Fatalf("black = %d", got) }

	if !c.RevertTurn() { t.Fatalf("RevertTurn refused") }
	if got := c.TimeLeft(); got.WhiteMs != 177000 || got.BlackMs != 180000 { t.Fatalf("after revert = %+v", got) }
	if c.ToMove() != domain.White { t.Fatalf("white must be back on move") }
	if c.RevertTurn() { t.Fatalf("second revert must be refused") }

	ft.Advance(time.Second)
	c.tick(ft.Now())
	if got := c.TimeLeft().WhiteMs; got != 175500 { t.Fatalf("white charged from the switch, got %d", got) }
}

func TestTickUsesElapsedWallTime(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 10000, 10000, 0, domain.White)

	ft.Advance(1200 * time.Millisecond)
	if _, fired := c.tick(ft.Now()); fired { t.Fatalf("unexpected expiry") }
	if got := c.TimeLeft().WhiteMs; got != 8800 { t.Fatalf("white = %d, want 8800", got) }

	ft.Advance(900*time.Millisecond + 400*time.Microsecond)
	c.tick(ft.Now())
	if got := c.TimeLeft().WhiteMs; got != 7900 { t.Fatalf("white = %d, want 7900", got) }
	if got := c.TimeLeft().BlackMs; got != 10000 { t.Fatalf("black = %d, want 10000", got) }
}

func TestExpiryFiresOnceAndFreezes(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 1500, 5000, 0, domain.White)

	ft.Advance(2 * time.Second)
	s.runTick(c)
	select {
	case ev := <-s.Expired():
		if ev.GameID != "g1" || ev.Side != domain.White { t.Fatalf("unexpected event %+v", ev) }
	default:
		t.Fatalf("expected expiry event")
	}
	if got := c.TimeLeft(); got.WhiteMs != 0 || got.BlackMs != 5000 { t.Fatalf("unexpected times %+v", got) }
	if s.Running() != 0 { t.Fatalf("expired clock must leave the schedule") }

	ft.Advance(5 * time.Second)
	s.runTick(c)
	if _, err := c.SwitchTurn(); !errors.Is(err, ErrExpired) { t.Fatalf("expected ErrExpired, got %v", err) }
	select {
	case ev := <-s.Expired():
		t.Fatalf("second expiry emitted: %+v", ev)
	default:
	}
	if got := c.TimeLeft(); got.WhiteMs != 0 || got.BlackMs != 5000 { t.Fatalf("times changed after expiry: %+v", got) }
}

func TestStopPreventsExpiry(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 500, 500, 0, domain.White)

	ft.Advance(200 * time.Millisecond)
	final := c.Stop()
	if final.WhiteMs != 300 { t.Fatalf("stop must settle the running side, got %d", final.WhiteMs) }
	c.Stop()

	ft.Advance(10 * time.Second)
	s.runTick(c)
	select {
	case ev := <-s.Expired():
		t.Fatalf("stopped clock emitted %+v", ev)
	default:
	}
	if got := c.TimeLeft().WhiteMs; got != 300 { t.Fatalf("stopped clock changed: %d", got) }
	if _, err := c.SwitchTurn(); !errors.Is(err, ErrStopped) { t.Fatalf("expected ErrStopped, got %v", err) }
}

func TestSwitchTurnAfterFlagEmitsExpiry(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 1000, 1000, 5000, domain.White)

	ft.Advance(1500 * time.Millisecond)
	times, err := c.SwitchTurn()
	if !errors.Is(err, ErrExpired) { t.Fatalf("expected ErrExpired, got %v", err) }
	if times.WhiteMs != 0 { t.Fatalf("flagged side must be clamped to 0, got %d", times.WhiteMs) }
	select {
	case ev := <-s.Expired():
		if ev.Side != domain.White { t.Fatalf("unexpected side %s", ev.Side) }
	case <-time.After(time.Second):
		t.Fatalf("expiry not delivered")
	}
}

func TestPauseFreezesCounters(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	c, _ := s.NewClock("g1", 180000, 180000, 0, domain.White)

	ft.Advance(time.Second)
	if got := c.Pause().WhiteMs; got != 179000 { t.Fatalf("pause reading = %d", got) }
	ft.Advance(time.Minute)
	c.tick(ft.Now())
	if _, err := c.SwitchTurn(); !errors.Is(err, ErrPaused) { t.Fatalf("expected ErrPaused, got %v", err) }
	if got := c.TimeLeft().WhiteMs; got != 179000 { t.Fatalf("paused clock changed: %d", got) }

	c.Resume()
	ft.Advance(time.Second)
	c.tick(ft.Now())
	if got := c.TimeLeft().WhiteMs; got != 178000 { t.Fatalf("after resume = %d", got) }
}

func TestDuplicateClockRejected(t *testing.T) {
	ft := newFakeTime()
	s := newTestScheduler(t, ft)
	if _, err := s.NewClock("g1", 1000, 1000, 0, domain.White); err != nil { t.Fatalf("NewClock: %v", err) }
	if _, err := s.NewClock("g1", 1000, 1000, 0, domain.White); !errors.Is(err, ErrDuplicateClock) {
		t.Fatalf("expected ErrDuplicateClock, got %v", err)
	}
}

func TestSchedulerExpiresManyClocks(t *testing.T) {
	s := NewScheduler(Config{Interval: 20 * time.Millisecond, Resolution: 5 * time.Millisecond, Workers: 3, ExpiryBuffer: 64})
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})

	const n = 40
	clocks := make([]*Clock, 0, n)
	for i := 0; i < n; i++ {
		c, err := s.NewClock(fmt.Sprintf("g%d", i), 60, 60000, 0, domain.White)
		if err != nil { t.Fatalf("NewClock: %v", err) }
		clocks = append(clocks, c)
	}

	stopReaders := make(chan struct{})
	var wg sync.WaitGroup
	for _, c := range clocks[:4] {
		wg.Add(1)
		go func(c *Clock) {
			defer wg.Done()
			for {
				select {
				case <-stopReaders:
					return
				default:
					if tl := c.TimeLeft(); tl.WhiteMs < 0 || tl.BlackMs < 0 {
						t.Errorf("negative reading %+v", tl)
						return
					}
				}
			}
		}(c)
	}

	seen := make(map[string]bool)
	deadline := time.After(3 * time.Second)
	for len(seen) < n {
		select {
		case ev := <-s.Expired():
			if seen[ev.GameID] { t.Fatalf("duplicate expiry for %s", ev.GameID) }
			seen[ev.GameID] = true
		case <-deadline:
			t.Fatalf("only %d of %d clocks expired", len(seen), n)
		}
	}
	close(stopReaders)
	wg.Wait()
	if s.Running() != 0 { t.Fatalf("expected empty schedule, got %d", s.Running()) }
}
