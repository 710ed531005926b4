package session

import (
	"sync"

	"github.com/park285/cheese-arena/internal/clock"
)

// ClockHandle is the only view of a running clock the session service keeps.
type ClockHandle interface {
	SwitchTurn() (clock.Times, error)
	RevertTurn() bool
	TimeLeft() clock.Times
	Stop() clock.Times
	Pause() clock.Times
	Resume() clock.Times
	Expired() bool
}

// Registry maps game ids to their live clocks for the Active/Paused window.
type Registry struct {
	mu     sync.RWMutex
	clocks map[string]ClockHandle
}

func NewRegistry() *Registry {
	return &Registry{clocks: make(map[string]ClockHandle)}
}

// Attach stores h for gameID. A second clock for the same game is refused.
func (r *Registry) Attach(gameID string, h ClockHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clocks[gameID]; exists {
		return clock.ErrDuplicateClock
	}
	r.clocks[gameID] = h
	return nil
}

func (r *Registry) Get(gameID string) (ClockHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.clocks[gameID]
	return h, ok
}

// Detach stops the game's clock and only then forgets it. It returns the
// final reading, or ok=false when no clock was attached.
func (r *Registry) Detach(gameID string) (clock.Times, bool) {
	h, ok := r.Get(gameID)
	if !ok {
		return clock.Times{}, false
	}
	times := h.Stop()
	r.mu.Lock()
	if cur, exists := r.clocks[gameID]; exists && cur == h {
		delete(r.clocks, gameID)
	}
	r.mu.Unlock()
	return times, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clocks)
}
