// Package clock implements per-game chess clocks ticked by a shared, bounded
// worker pool. A clock reports time forfeits through the scheduler's expiry
// channel, never through a callback.
package clock

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrStopped = errors.New("clock stopped")
	ErrExpired = errors.New("clock expired")
	ErrPaused  = errors.New("clock paused")
)

// Expiry is emitted once when a side's remaining time reaches zero.
type Expiry struct {
	GameID string
	Side   domain.Side
	At     time.Time
}

// Times is a read of both sides' remaining milliseconds.
type Times struct {
	WhiteMs int64
	BlackMs int64
}

func (t Times) For(side domain.Side) int64 {
	if side == domain.White {
		return t.WhiteMs
	}
	return t.BlackMs
}

// Clock is one game's countdown pair. White and black counters are atomics so
// TimeLeft never takes the tick lock; every write happens under mu.
type Clock struct {
	gameID      string
	incrementMs int64
	interval    time.Duration
	now         func() time.Time
	emit        func(Expiry)
	release     func(*Clock)

	white atomic.Int64
	black atomic.Int64

	mu      sync.Mutex
	toMove  domain.Side
	last    time.Time
	stopped bool
	expired bool
	paused  bool
	undo    *switchRecord

	nextDue  atomic.Int64
	inFlight atomic.Bool
}

func (c *Clock) GameID() string { return c.gameID }

func (c *Clock) counter(side domain.Side) *atomic.Int64 {
	if side == domain.White {
		return &c.white
	}
	return &c.black
}

// TimeLeft is a live read of both counters as of the last tick or switch.
func (c *Clock) TimeLeft() Times {
	return Times{WhiteMs: c.white.Load(), BlackMs: c.black.Load()}
}

// ToMove reports the side currently being debited.
func (c *Clock) ToMove() domain.Side {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toMove
}

// Expired reports whether the clock ended by running out.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// debitLocked charges the running side for wall time since the last baseline.
// Whole milliseconds are charged and the remainder carried to the next call.
// It returns the remaining time after the debit, clamped at zero.
func (c *Clock) debitLocked(now time.Time) int64 {
	elapsed := now.Sub(c.last).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	c.last = c.last.Add(time.Duration(elapsed) * time.Millisecond)
	ctr := c.counter(c.toMove)
	left := ctr.Add(-elapsed)
	if left < 0 {
		ctr.Store(0)
		left = 0
	}
	return left
}

// expireLocked stops the clock and builds the single expiry event.
func (c *Clock) expireLocked(now time.Time) Expiry {
	c.stopped = true
	c.expired = true
	return Expiry{GameID: c.gameID, Side: c.toMove, At: now}
}

// tick debits the running side. It returns an expiry event at most once over
// the clock's lifetime.
func (c *Clock) tick(now time.Time) (Expiry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.paused {
		return Expiry{}, false
	}
	c.nextDue.Store(now.Add(c.interval).UnixNano())
	if c.debitLocked(now) > 0 {
		return Expiry{}, false
	}
	return c.expireLocked(now), true
}

// SwitchTurn charges the mover for the time spent, credits the increment to
// the mover and starts the opponent's countdown. A mover already out of time
// is not credited: the clock expires and ErrExpired is returned.
func (c *Clock) SwitchTurn() (Times, error) {
	now := c.now()
	c.mu.Lock()
	if c.stopped {
		expired := c.expired
		c.mu.Unlock()
		if expired {
			return c.TimeLeft(), ErrExpired
		}
		return c.TimeLeft(), ErrStopped
	}
	if c.paused {
		c.mu.Unlock()
		return c.TimeLeft(), ErrPaused
	}
	if c.debitLocked(now) <= 0 {
		ev := c.expireLocked(now)
		c.mu.Unlock()
		c.release(c)
		// the caller may hold the game lock the expiry consumer needs
		go c.emit(ev)
		return c.TimeLeft(), ErrExpired
	}
	c.undo = &switchRecord{white: c.white.Load(), black: c.black.Load(), side: c.toMove, at: now}
	c.counter(c.toMove).Add(c.incrementMs)
	c.toMove = c.toMove.Opponent()
	c.last = now
	c.nextDue.Store(now.Add(c.interval).UnixNano())
	c.mu.Unlock()
	return c.TimeLeft(), nil
}

// switchRecord is the reading taken just before the increment of the last
// SwitchTurn.
type switchRecord struct {
	white, black int64
	side         domain.Side
	at           time.Time
}

// RevertTurn undoes the most recent SwitchTurn: the increment is withdrawn,
// any time debited from the opponent since is given back, and the mover is
// charged again from the moment of the switch. It reports false when there
// is nothing to revert or the clock has stopped or paused since.
func (c *Clock) RevertTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.undo == nil || c.stopped || c.paused {
		return false
	}
	u := c.undo
	c.undo = nil
	c.white.Store(u.white)
	c.black.Store(u.black)
	c.toMove = u.side
	c.last = u.at
	return true
}

// Pause settles the running side's time and freezes both counters.
func (c *Clock) Pause() Times {
	now := c.now()
	c.mu.Lock()
	if !c.stopped && !c.paused {
		c.debitLocked(now)
		c.paused = true
		c.undo = nil
	}
	c.mu.Unlock()
	return c.TimeLeft()
}

// Resume restarts the running side's countdown from now.
func (c *Clock) Resume() Times {
	now := c.now()
	c.mu.Lock()
	if !c.stopped && c.paused {
		c.paused = false
		c.last = now
		c.nextDue.Store(now.Add(c.interval).UnixNano())
	}
	c.mu.Unlock()
	return c.TimeLeft()
}

// Stop halts the clock for good and returns the final reading. It is
// idempotent. Once Stop returns no expiry can be emitted by a later tick.
func (c *Clock) Stop() Times {
	now := c.now()
	c.mu.Lock()
	first := !c.stopped
	if first {
		if !c.paused {
			c.debitLocked(now)
		}
		c.stopped = true
	}
	c.mu.Unlock()
	if first {
		c.release(c)
	}
	return c.TimeLeft()
}

func (c *Clock) due(now time.Time) bool {
	return now.UnixNano() >= c.nextDue.Load()
}
