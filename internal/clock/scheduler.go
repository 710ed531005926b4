package clock

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

var ErrDuplicateClock = errors.New("clock already running for game")

type Config struct {
	// Interval is each clock's tick period.
	Interval time.Duration
	// Resolution is how often the dispatcher looks for due clocks.
	Resolution time.Duration
	Workers    int
	// ExpiryBuffer sizes the expiry channel.
	ExpiryBuffer int
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Resolution <= 0 || c.Resolution > c.Interval {
		c.Resolution = c.Interval / 10
		if c.Resolution <= 0 {
			c.Resolution = c.Interval
		}
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.ExpiryBuffer < 0 {
		c.ExpiryBuffer = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 16 {
		return 16
	}
	return n
}

// Scheduler ticks every registered clock on its own one-interval schedule
// using a fixed number of workers. A clock is never handed to a second worker
// while a tick for it is still running.
type Scheduler struct {
	cfg Config

	mu     sync.Mutex
	clocks map[string]*Clock

	jobs    chan *Clock
	expired chan Expiry

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewScheduler(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		clocks:  make(map[string]*Clock),
		jobs:    make(chan *Clock, cfg.Workers),
		expired: make(chan Expiry, cfg.ExpiryBuffer),
		stopCh:  make(chan struct{}),
	}
}

// Expired delivers one event per clock that ran out of time.
func (s *Scheduler) Expired() <-chan Expiry { return s.expired }

// Start launches the dispatcher and the worker pool. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(s.cfg.Workers + 1)
		for i := 0; i < s.cfg.Workers; i++ {
			go s.worker()
		}
		go s.loop()
		obslog.L().Info("clock_scheduler_start",
			zap.Int("workers", s.cfg.Workers),
			zap.Duration("interval", s.cfg.Interval),
			zap.Duration("resolution", s.cfg.Resolution),
		)
	})
}

// Close stops dispatching and waits for in-flight ticks.
func (s *Scheduler) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NewClock creates and starts a clock for gameID with toMove running.
func (s *Scheduler) NewClock(gameID string, whiteMs, blackMs, incrementMs int64, toMove domain.Side) (*Clock, error) {
	if gameID == "" {
		return nil, fmt.Errorf("game id required")
	}
	if !toMove.Valid() {
		return nil, fmt.Errorf("invalid side to move %q", toMove)
	}
	now := s.cfg.Now()
	c := &Clock{
		gameID:      gameID,
		incrementMs: incrementMs,
		interval:    s.cfg.Interval,
		now:         s.cfg.Now,
		emit:        s.emit,
		release:     s.release,
		toMove:      toMove,
		last:        now,
	}
	c.white.Store(max(whiteMs, 0))
	c.black.Store(max(blackMs, 0))
	c.nextDue.Store(now.Add(s.cfg.Interval).UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clocks[gameID]; exists {
		return nil, ErrDuplicateClock
	}
	s.clocks[gameID] = c
	return c, nil
}

// Running returns the number of clocks still scheduled.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clocks)
}

func (s *Scheduler) release(c *Clock) {
	s.mu.Lock()
	if cur, ok := s.clocks[c.gameID]; ok && cur == c {
		delete(s.clocks, c.gameID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) emit(ev Expiry) {
	obslog.L().Info("clock_expired", zap.String("game_id", ev.GameID), zap.String("side", string(ev.Side)))
	select {
	case s.expired <- ev:
	case <-s.stopCh:
		obslog.L().Warn("clock_expiry_dropped", zap.String("game_id", ev.GameID), zap.String("reason", "scheduler closed"))
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.Resolution)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.dispatch(s.cfg.Now())
		}
	}
}

// dispatch hands every due clock to the pool. A clock whose previous tick is
// still in flight, or that finds the pool saturated, waits for the next round.
func (s *Scheduler) dispatch(now time.Time) {
	s.mu.Lock()
	due := make([]*Clock, 0, len(s.clocks))
	for _, c := range s.clocks {
		if c.due(now) {
			due = append(due, c)
		}
	}
	s.mu.Unlock()

	for _, c := range due {
		if !c.inFlight.CompareAndSwap(false, true) {
			continue
		}
		select {
		case s.jobs <- c:
		default:
			c.inFlight.Store(false)
		}
	}
}

// Sweep ticks every registered clock synchronously at now, skipping clocks
// whose tick is already in flight. It returns the number of expiries emitted.
// Callers that drive time themselves use it instead of Start.
func (s *Scheduler) Sweep(now time.Time) int {
	s.mu.Lock()
	all := make([]*Clock, 0, len(s.clocks))
	for _, c := range s.clocks {
		all = append(all, c)
	}
	s.mu.Unlock()

	fired := 0
	for _, c := range all {
		if !c.inFlight.CompareAndSwap(false, true) {
			continue
		}
		ev, ok := c.tick(now)
		c.inFlight.Store(false)
		if ok {
			s.release(c)
			s.emit(ev)
			fired++
		}
	}
	return fired
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case c := <-s.jobs:
			s.runTick(c)
		}
	}
}

func (s *Scheduler) runTick(c *Clock) {
	ev, fired := c.tick(s.cfg.Now())
	c.inFlight.Store(false)
	if fired {
		s.release(c)
		s.emit(ev)
	}
}
