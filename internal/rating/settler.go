package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/leaderboard"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/storage"
	"go.uber.org/zap"
)

// Result describes one settlement.
type Result struct {
	Skipped    bool
	WhiteDelta int
	BlackDelta int
	White      *domain.Player
	Black      *domain.Player
}

// Settler applies finished games to player ratings and counters.
type Settler struct {
	repo  storage.Repository
	board *leaderboard.Board
	log   *zap.Logger
	now   func() time.Time

	// serializes read-modify-write of player rows
	mu sync.Mutex
}

func NewSettler(repo storage.Repository, board *leaderboard.Board, logger *zap.Logger) *Settler {
	if logger == nil {
		logger = obslog.L()
	}
	return &Settler{repo: repo, board: board, log: logger, now: time.Now}
}

// SetNow replaces the time source.
func (s *Settler) SetNow(now func() time.Time) { s.now = now }

// Settle must be called once per terminal transition. Games with an empty
// seat, aborted games and unfinished games are skipped.
func (s *Settler) Settle(ctx context.Context, g *domain.Game) (Result, error) {
	if g == nil || !g.HasBothSeats() || !g.Status.Terminal() || g.Outcome == domain.OutcomeAborted {
		return Result{Skipped: true}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	white, err := s.loadOrCreate(ctx, g.WhiteID)
	if err != nil {
		return Result{}, err
	}
	black, err := s.loadOrCreate(ctx, g.BlackID)
	if err != nil {
		return Result{}, err
	}
	dw, db := Apply(white, black, g.Discipline, g.Outcome)
	now := s.now()
	white.UpdatedAt, black.UpdatedAt = now, now
	if err := s.repo.UpdatePlayers(ctx, white, black); err != nil {
		return Result{}, fmt.Errorf("persist settlement: %w", err)
	}
	for _, p := range []*domain.Player{white, black} {
		if err := s.board.Record(ctx, g.Discipline, p.ID, p.Rating(g.Discipline)); err != nil {
			s.log.Warn("leaderboard_record_error", zap.String("player_id", p.ID), zap.Error(err))
		}
	}
	s.log.Info("rating_settle",
		zap.String("game_id", g.ID),
		zap.String("discipline", string(g.Discipline)),
		zap.String("outcome", string(g.Outcome)),
		zap.Int("white_delta", dw),
		zap.Int("black_delta", db),
	)
	return Result{WhiteDelta: dw, BlackDelta: db, White: white, Black: black}, nil
}

// loadOrCreate provisions a player record for ids seen for the first time.
func (s *Settler) loadOrCreate(ctx context.Context, id string) (*domain.Player, error) {
	p, err := s.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	if p != nil {
		return p, nil
	}
	handle := id
	for attempt := 0; ; attempt++ {
		err = s.repo.InsertPlayer(ctx, domain.NewPlayer(id, handle, s.now()))
		if !errors.Is(err, storage.ErrDuplicateHandle) || attempt == provisionAttempts {
			break
		}
		// the id collides with someone's chosen handle
		handle = id + provisionalSep + uuid.NewString()[:8]
	}
	if err != nil && !errors.Is(err, storage.ErrDuplicateID) {
		return nil, fmt.Errorf("provision player %s: %w", id, err)
	}
	return s.repo.GetPlayer(ctx, id)
}

const (
	provisionAttempts = 3
	provisionalSep    = "#"
)

// provisional reports whether p was created by settlement rather than by
// Register, i.e. it still carries a handle derived from its id.
func provisional(p *domain.Player) bool {
	return p.Handle == p.ID || strings.HasPrefix(p.Handle, p.ID+provisionalSep)
}

// TopPlayers reads the leaderboard, falling back to storage when the
// leaderboard is not configured or empty.
func (s *Settler) TopPlayers(ctx context.Context, d domain.Discipline, limit int) ([]*domain.Player, error) {
	if !d.Valid() {
		return nil, domain.Validation("invalid_discipline", "unknown discipline: "+string(d))
	}
	if limit <= 0 {
		limit = 10
	}
	entries, err := s.board.Top(ctx, d, limit)
	if err != nil {
		s.log.Warn("leaderboard_top_error", zap.Error(err))
	}
	if len(entries) == 0 {
		return s.repo.TopPlayers(ctx, d, limit)
	}
	out := make([]*domain.Player, 0, len(entries))
	for _, e := range entries {
		p, err := s.repo.GetPlayer(ctx, e.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("load player %s: %w", e.PlayerID, err)
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Register creates a player and seeds the leaderboard with the default ratings.
// A player first seen through settlement keeps its ratings and claims handle.
func (s *Settler) Register(ctx context.Context, id, handle string) (*domain.Player, error) {
	if id == "" || handle == "" {
		return nil, domain.Validation("invalid_player", "player id and handle are required")
	}
	p := domain.NewPlayer(id, handle, s.now())
	switch err := s.repo.InsertPlayer(ctx, p); {
	case errors.Is(err, storage.ErrDuplicateHandle):
		return nil, errHandleTaken
	case errors.Is(err, storage.ErrDuplicateID):
		return s.claim(ctx, id, handle)
	case err != nil:
		return nil, fmt.Errorf("insert player: %w", err)
	}
	if err := s.board.RecordPlayer(ctx, p); err != nil {
		s.log.Warn("leaderboard_record_error", zap.String("player_id", p.ID), zap.Error(err))
	}
	return p, nil
}

var (
	errHandleTaken  = domain.Precondition("handle_taken", "handle is already taken")
	errPlayerExists = domain.Precondition("player_exists", "player already registered")
)

// claim renames a provisioned player to handle.
func (s *Settler) claim(ctx context.Context, id, handle string) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	if p == nil || !provisional(p) {
		return nil, errPlayerExists
	}
	now := s.now()
	switch err := s.repo.RenamePlayer(ctx, id, handle, now); {
	case errors.Is(err, storage.ErrDuplicateHandle):
		return nil, errHandleTaken
	case err != nil:
		return nil, fmt.Errorf("rename player: %w", err)
	}
	p.Handle, p.UpdatedAt = handle, now
	s.log.Info("player_claim", zap.String("player_id", id), zap.String("handle", handle))
	return p, nil
}

// Player returns a registered player or ErrPlayerNotFound.
func (s *Settler) Player(ctx context.Context, id string) (*domain.Player, error) {
	p, err := s.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	if p == nil {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}
