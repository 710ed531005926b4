package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// memrepo keeps everything in process memory. Every value crossing the
// boundary is copied so callers never alias stored state.
type memrepo struct {
	mu sync.RWMutex

	games   map[string]*domain.Game
	players map[string]*domain.Player
	handles map[string]string // lower(handle) -> id
	invites map[string]*domain.Invite
}

func NewMemoryRepository() Repository {
	return &memrepo{
		games:   make(map[string]*domain.Game),
		players: make(map[string]*domain.Player),
		handles: make(map[string]string),
		invites: make(map[string]*domain.Invite),
	}
}

func (m *memrepo) Close() error { return nil }

func (m *memrepo) InsertGame(ctx context.Context, g *domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertGameLocked(g)
}

func (m *memrepo) insertGameLocked(g *domain.Game) error {
	if _, exists := m.games[g.ID]; exists {
		return ErrDuplicateID
	}
	m.games[g.ID] = g.Clone()
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

func (m *memrepo) UpdateGame(ctx context.Context, g *domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateGameLocked(g)
}

func (m *memrepo) updateGameLocked(g *domain.Game) error {
	cur, ok := m.games[g.ID]
	if !ok || cur.Version != g.Version {
		return ErrConflict
	}
	g.Version++
	m.games[g.ID] = g.Clone()
	return nil
}

func (m *memrepo) AppendMove(ctx context.Context, g *domain.Game, mv domain.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[g.ID]
	if !ok || cur.Version != g.Version {
		return ErrConflict
	}
	if mv.Number != len(cur.Moves)+1 {
		return ErrConflict
	}
	return m.updateGameLocked(g)
}

func (m *memrepo) ListGames(ctx context.Context, f GameFilter) ([]*domain.Game, error) {
	m.mu.RLock()
	out := make([]*domain.Game, 0)
	for _, g := range m.games {
		if !matchGame(g, f) {
			continue
		}
		cp := g.Clone()
		cp.Moves = nil
		out = append(out, cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*domain.Game{}, nil
		}
		out = out[f.Offset:]
	}
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchGame(g *domain.Game, f GameFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if g.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PlayerID != "" && g.WhiteID != f.PlayerID && g.BlackID != f.PlayerID {
		return false
	}
	if f.Open && g.HasBothSeats() {
		return false
	}
	return true
}

func (m *memrepo) ListMoves(ctx context.Context, gameID string) ([]domain.Move, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil, nil
	}
	return append([]domain.Move(nil), g.Moves...), nil
}

func (m *memrepo) InsertPlayer(ctx context.Context, p *domain.Player) error {
	key := strings.ToLower(strings.TrimSpace(p.Handle))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.players[p.ID]; exists {
		return ErrDuplicateID
	}
	if _, taken := m.handles[key]; taken {
		return ErrDuplicateHandle
	}
	m.players[p.ID] = p.Clone()
	m.handles[key] = p.ID
	return nil
}

func (m *memrepo) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (m *memrepo) UpdatePlayers(ctx context.Context, players ...*domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range players {
		if _, ok := m.players[p.ID]; !ok {
			return ErrConflict
		}
	}
	for _, p := range players {
		next := p.Clone()
		next.Handle = m.players[p.ID].Handle
		m.players[p.ID] = next
	}
	return nil
}

func (m *memrepo) RenamePlayer(ctx context.Context, id, handle string, at time.Time) error {
	key := strings.ToLower(strings.TrimSpace(handle))
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return ErrConflict
	}
	if owner, taken := m.handles[key]; taken && owner != id {
		return ErrDuplicateHandle
	}
	delete(m.handles, strings.ToLower(strings.TrimSpace(p.Handle)))
	m.handles[key] = id
	p.Handle = handle
	p.UpdatedAt = at
	return nil
}

func (m *memrepo) TopPlayers(ctx context.Context, d domain.Discipline, limit int) ([]*domain.Player, error) {
	m.mu.RLock()
	out := make([]*domain.Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rating(d), out[j].Rating(d)
		if ri != rj {
			return ri > rj
		}
		return out[i].Handle < out[j].Handle
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memrepo) InsertInvite(ctx context.Context, inv *domain.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invites[inv.ID]; exists {
		return ErrDuplicateID
	}
	if inv.Status == domain.InvitePending {
		for _, cur := range m.invites {
			if cur.Status == domain.InvitePending && cur.SenderID == inv.SenderID && cur.ReceiverID == inv.ReceiverID {
				return ErrDuplicatePendingInvite
			}
		}
	}
	m.invites[inv.ID] = inv.Clone()
	return nil
}

func (m *memrepo) GetInvite(ctx context.Context, id string) (*domain.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[id]
	if !ok {
		return nil, nil
	}
	return inv.Clone(), nil
}

func (m *memrepo) TransitionInvite(ctx context.Context, inv *domain.Invite, from domain.InviteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.invites[inv.ID]
	if !ok || cur.Status != from {
		return ErrInviteStatusChanged
	}
	m.invites[inv.ID] = inv.Clone()
	return nil
}

func (m *memrepo) AcceptInvite(ctx context.Context, inv *domain.Invite, g *domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.invites[inv.ID]
	if !ok || cur.Status != domain.InvitePending {
		return ErrInviteStatusChanged
	}
	if err := m.insertGameLocked(g); err != nil {
		return err
	}
	m.invites[inv.ID] = inv.Clone()
	return nil
}

func (m *memrepo) ListInvites(ctx context.Context, f InviteFilter) ([]*domain.Invite, error) {
	m.mu.RLock()
	out := make([]*domain.Invite, 0)
	for _, inv := range m.invites {
		if f.SenderID != "" && inv.SenderID != f.SenderID {
			continue
		}
		if f.ReceiverID != "" && inv.ReceiverID != f.ReceiverID {
			continue
		}
		if len(f.Statuses) > 0 && !containsInviteStatus(f.Statuses, inv.Status) {
			continue
		}
		out = append(out, inv.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memrepo) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, inv := range m.invites {
		if inv.Status == domain.InvitePending && inv.ExpiredAt(now) {
			inv.Status = domain.InviteExpired
			inv.RespondedAt = now
			n++
		}
	}
	return n, nil
}

func containsInviteStatus(list []domain.InviteStatus, s domain.InviteStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
