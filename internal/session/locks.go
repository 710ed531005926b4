package session

import "sync"

// lockTable hands out one mutex per game id. Entries are dropped once no
// caller holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	games map[string]*gameLock
}

type gameLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{games: make(map[string]*gameLock)}
}

func (t *lockTable) lock(id string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.games[id]
	if !ok {
		l = &gameLock{}
		t.games[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.games, id)
		}
		t.mu.Unlock()
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.games)
}
