package storage

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	// ErrConflict means the game changed since it was read.
	ErrConflict = errors.New("storage: game version conflict")
	// ErrDuplicatePendingInvite means the ordered pair already has a pending invite.
	ErrDuplicatePendingInvite = errors.New("storage: pending invite already exists for pair")
	// ErrInviteStatusChanged means a conditional invite transition lost a race.
	ErrInviteStatusChanged = errors.New("storage: invite status changed")
	ErrDuplicateHandle     = errors.New("storage: player handle already taken")
	ErrDuplicateID         = errors.New("storage: duplicate id")
)

type GameFilter struct {
	Statuses []domain.Status
	// PlayerID restricts to games where the player holds a seat.
	PlayerID string
	// Open restricts to games with an empty seat.
	Open   bool
	Limit  int
	Offset int
}

type InviteFilter struct {
	SenderID   string
	ReceiverID string
	Statuses   []domain.InviteStatus
	Limit      int
}

// Repository persists games, moves, players and invites. Getters return
// (nil, nil) when the record does not exist.
type Repository interface {
	InsertGame(ctx context.Context, g *domain.Game) error
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	// UpdateGame writes g if its Version still matches and bumps g.Version.
	UpdateGame(ctx context.Context, g *domain.Game) error
	// AppendMove stores m and the updated game in one transaction.
	// g.Moves must already end with m.
	AppendMove(ctx context.Context, g *domain.Game, m domain.Move) error
	ListGames(ctx context.Context, f GameFilter) ([]*domain.Game, error)
	ListMoves(ctx context.Context, gameID string) ([]domain.Move, error)

	InsertPlayer(ctx context.Context, p *domain.Player) error
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	// UpdatePlayers writes ratings and counters of all players atomically.
	UpdatePlayers(ctx context.Context, players ...*domain.Player) error
	// RenamePlayer changes a player's handle; ErrDuplicateHandle when another
	// player holds it.
	RenamePlayer(ctx context.Context, id, handle string, at time.Time) error
	TopPlayers(ctx context.Context, d domain.Discipline, limit int) ([]*domain.Player, error)

	InsertInvite(ctx context.Context, inv *domain.Invite) error
	GetInvite(ctx context.Context, id string) (*domain.Invite, error)
	// TransitionInvite writes inv only if the stored status is still from.
	TransitionInvite(ctx context.Context, inv *domain.Invite, from domain.InviteStatus) error
	// AcceptInvite inserts g and moves inv from Pending to Accepted in one transaction.
	AcceptInvite(ctx context.Context, inv *domain.Invite, g *domain.Game) error
	ListInvites(ctx context.Context, f InviteFilter) ([]*domain.Invite, error)
	// ExpireInvites marks pending invites past their expiry as Expired.
	ExpireInvites(ctx context.Context, now time.Time) (int, error)

	Close() error
}

const defaultListLimit = 50

func normalizeLimit(n int) int {
	if n <= 0 || n > 500 {
		return defaultListLimit
	}
	return n
}
