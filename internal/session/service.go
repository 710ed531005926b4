// Package session runs the game state machine: seating, move application,
// draw flow, pauses, resignations and time forfeits. Every transition for a
// game runs under that game's lock; clocks live in the Registry.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/storage"
	"go.uber.org/zap"
)

// Settler is invoked exactly once per game that reaches a terminal state.
type Settler interface {
	Settle(ctx context.Context, g *domain.Game) (rating.Result, error)
}

type Options struct {
	Repo      storage.Repository
	Engine    rules.Engine
	Scheduler *clock.Scheduler
	Settler   Settler
	Sink      events.Sink
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func() string
	ListLimit int
}

type Service struct {
	repo      storage.Repository
	engine    rules.Engine
	sched     *clock.Scheduler
	reg       *Registry
	settler   Settler
	sink      events.Sink
	locks     *lockTable
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
	listLimit int
}

func New(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("session: repository required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("session: clock scheduler required")
	}
	s := &Service{
		repo:      opts.Repo,
		engine:    opts.Engine,
		sched:     opts.Scheduler,
		reg:       NewRegistry(),
		settler:   opts.Settler,
		sink:      opts.Sink,
		locks:     newLockTable(),
		log:       opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		listLimit: opts.ListLimit,
	}
	if s.engine == nil {
		s.engine = rules.NewChessEngine()
	}
	if s.sink == nil {
		s.sink = events.Nop()
	}
	if s.log == nil {
		s.log = obslog.L()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.listLimit <= 0 {
		s.listLimit = 50
	}
	return s, nil
}

// Registry exposes the live clock map for inspection.
func (s *Service) Registry() *Registry { return s.reg }

// Color is the creator's seat preference.
type Color string

const (
	ColorWhite  Color = "white"
	ColorBlack  Color = "black"
	ColorRandom Color = "random"
)

type CreateRequest struct {
	CreatorID  string
	Discipline domain.Discipline
	// TimeControl in seconds; zero uses the discipline default.
	TimeControl int
	// Increment in seconds; nil uses the discipline default.
	Increment *int
	// OpponentID reserves the open seat.
	OpponentID string
	Color      Color
	// InitialFEN starts from a custom position; empty means the standard start.
	InitialFEN string
}

// resolveTimeControl applies discipline defaults to the optional values.
func resolveTimeControl(d domain.Discipline, tc int, inc *int) (int, int, error) {
	if tc < 0 {
		return 0, 0, domain.Validation("invalid_time_control", "time control must not be negative")
	}
	if tc == 0 {
		tc = d.BaseSeconds()
	}
	increment := d.IncrementSeconds()
	if inc != nil {
		if *inc < 0 {
			return 0, 0, domain.Validation("invalid_increment", "increment must not be negative")
		}
		increment = *inc
	}
	return tc, increment, nil
}

func (s *Service) CreateGame(ctx context.Context, req CreateRequest) (*domain.Game, error) {
	creator := strings.TrimSpace(req.CreatorID)
	if creator == "" {
		return nil, domain.Validation("invalid_player", "creator id is required")
	}
	if !req.Discipline.Valid() {
		return nil, domain.Validation("invalid_discipline", "unknown discipline: "+string(req.Discipline))
	}
	opponent := strings.TrimSpace(req.OpponentID)
	if opponent == creator {
		return nil, domain.Validation("self_opponent", "cannot reserve a seat for yourself")
	}
	tc, inc, err := resolveTimeControl(req.Discipline, req.TimeControl, req.Increment)
	if err != nil {
		return nil, err
	}
	fen := strings.TrimSpace(req.InitialFEN)
	if fen == "" {
		fen = domain.StartFEN
	}
	pos, err := s.engine.Load(fen, nil)
	if err != nil {
		return nil, domain.Validation("invalid_position", err.Error())
	}
	if pos.Terminal().Over {
		return nil, domain.Validation("invalid_position", "initial position is already decided")
	}
	side, err := pickSide(req.Color)
	if err != nil {
		return nil, err
	}

	now := s.now()
	g := &domain.Game{
		ID:          s.newID(),
		CreatorID:   creator,
		ReservedID:  opponent,
		Discipline:  req.Discipline,
		Status:      domain.StatusWaiting,
		Outcome:     domain.OutcomeNone,
		TimeControl: tc,
		Increment:   inc,
		WhiteMs:     int64(tc) * 1000,
		BlackMs:     int64(tc) * 1000,
		InitialFEN:  pos.FEN(),
		CurrentFEN:  pos.FEN(),
		CreatedAt:   now,
	}
	if side == domain.White {
		g.WhiteID = creator
	} else {
		g.BlackID = creator
	}
	if err := s.repo.InsertGame(ctx, g); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	s.log.Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("player_id", creator),
		zap.String("discipline", string(g.Discipline)),
		zap.String("side", string(side)),
	)
	s.publish(ctx, events.Event{Type: events.GameCreated, GameID: g.ID, Game: g.Clone(), Actor: creator})
	return g, nil
}

func pickSide(c Color) (domain.Side, error) {
	switch Color(strings.ToLower(string(c))) {
	case "", ColorWhite, "w":
		return domain.White, nil
	case ColorBlack, "b":
		return domain.Black, nil
	case ColorRandom:
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 1 {
			return domain.Black, nil
		}
		return domain.White, nil
	default:
		return "", domain.Validation("invalid_color", "unknown color: "+string(c))
	}
}

// GetGame returns the game with live clock readings when a clock is attached.
func (s *Service) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.overlayTimes(g)
	return g, nil
}

// ListFilter names the game listings exposed to clients.
type ListFilter string

const (
	ListAll     ListFilter = "all"
	ListWaiting ListFilter = "waiting"
	ListActive  ListFilter = "active"
	ListHistory ListFilter = "history"
)

type ListQuery struct {
	Filter   ListFilter
	PlayerID string
	Limit    int
	Offset   int
}

func (s *Service) ListGames(ctx context.Context, q ListQuery) ([]*domain.Game, error) {
	f := storage.GameFilter{PlayerID: q.PlayerID, Limit: q.Limit, Offset: q.Offset}
	if f.Limit <= 0 {
		f.Limit = s.listLimit
	}
	switch q.Filter {
	case "", ListAll:
	case ListWaiting:
		f.Statuses = []domain.Status{domain.StatusWaiting}
		f.Open = true
	case ListActive:
		f.Statuses = []domain.Status{domain.StatusActive, domain.StatusPaused, domain.StatusDrawProposed}
	case ListHistory:
		f.Statuses = []domain.Status{domain.StatusWhiteWon, domain.StatusBlackWon, domain.StatusDraw, domain.StatusAborted}
	default:
		return nil, domain.Validation("invalid_filter", "unknown list filter: "+string(q.Filter))
	}
	games, err := s.repo.ListGames(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	for _, g := range games {
		s.overlayTimes(g)
	}
	return games, nil
}

// JoinGame seats player in the open seat and starts the clock.
func (s *Service) JoinGame(ctx context.Context, id, player string) (*domain.Game, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, domain.Validation("invalid_player", "player id is required")
	}
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		switch {
		case g.Status.Terminal():
			return domain.ErrGameFinished
		case g.Status != domain.StatusWaiting:
			return domain.ErrGameNotWaiting
		case g.SideOf(player) != "":
			return domain.ErrAlreadySeated
		case g.HasBothSeats():
			return domain.ErrSeatTaken
		case g.ReservedID != "" && g.ReservedID != player:
			return domain.ErrSeatReserved
		}
		if g.WhiteID == "" {
			g.WhiteID = player
		} else {
			g.BlackID = player
		}
		g.Status = domain.StatusActive
		g.StartedAt = s.now()
		if err := s.update(ctx, g); err != nil {
			return err
		}
		if _, err := s.attachClockLocked(g); err != nil {
			s.log.Error("clock_attach_error", zap.String("game_id", g.ID), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game_join", zap.String("game_id", g.ID), zap.String("player_id", player))
	s.publish(ctx, events.Event{Type: events.GameStarted, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

// StartGame attaches a clock to a game that was persisted as Active by
// another component, e.g. an accepted invite.
func (s *Service) StartGame(ctx context.Context, g *domain.Game) error {
	if g == nil || g.Status != domain.StatusActive {
		return domain.ErrGameNotActive
	}
	unlock := s.locks.lock(g.ID)
	_, err := s.attachClockLocked(g)
	unlock()
	if err != nil && !errors.Is(err, clock.ErrDuplicateClock) {
		return err
	}
	s.publish(ctx, events.Event{Type: events.GameStarted, GameID: g.ID, Game: g.Clone()})
	return nil
}

// Run consumes clock expiries until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.sched.Expired():
			s.forfeit(ctx, ev)
		}
	}
}

// forfeit retries the time-forfeit write a few times; the clock has already
// stopped, so a lost forfeit would leave the game live with no clock.
func (s *Service) forfeit(ctx context.Context, ev clock.Expiry) {
	const attempts = 3
	for i := 1; ; i++ {
		_, err := s.HandleExpiry(ctx, ev)
		if err == nil {
			return
		}
		s.log.Error("clock_expiry_error", zap.String("game_id", ev.GameID), zap.Int("attempt", i), zap.Error(err))
		if i == attempts || domain.KindOf(err) == domain.KindNotFound {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		}
	}
}

// Restore attaches clocks to every persisted live game. Downtime is not
// charged to either side: each clock restarts from its stored snapshot.
func (s *Service) Restore(ctx context.Context) (int, error) {
	const page = 200
	live := []domain.Status{domain.StatusActive, domain.StatusPaused, domain.StatusDrawProposed}
	restored := 0
	for offset := 0; ; offset += page {
		games, err := s.repo.ListGames(ctx, storage.GameFilter{Statuses: live, Limit: page, Offset: offset})
		if err != nil {
			return restored, fmt.Errorf("list live games: %w", err)
		}
		for _, g := range games {
			unlock := s.locks.lock(g.ID)
			_, err := s.attachClockLocked(g)
			unlock()
			if err != nil {
				s.log.Error("clock_restore_error", zap.String("game_id", g.ID), zap.Error(err))
				continue
			}
			restored++
		}
		if len(games) < page {
			break
		}
	}
	s.log.Info("clock_restore", zap.Int("games", restored))
	return restored, nil
}

// withGame loads id under its lock and runs fn. The returned game is a copy
// safe to hand out after the lock is released.
func (s *Service) withGame(ctx context.Context, id string, fn func(g *domain.Game) error) (*domain.Game, error) {
	unlock := s.locks.lock(id)
	defer unlock()
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Game, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrGameNotFound
	}
	g, err := s.repo.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	if g == nil {
		return nil, domain.ErrGameNotFound
	}
	return g, nil
}

func (s *Service) update(ctx context.Context, g *domain.Game) error {
	if err := s.repo.UpdateGame(ctx, g); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ErrConcurrentWrite
		}
		return fmt.Errorf("update game %s: %w", g.ID, err)
	}
	return nil
}

// attachClockLocked returns the game's clock, creating it from the persisted
// snapshot when none is attached. The side to move is read from the position.
func (s *Service) attachClockLocked(g *domain.Game) (ClockHandle, error) {
	if h, ok := s.reg.Get(g.ID); ok {
		return h, nil
	}
	if !g.Status.Live() {
		return nil, domain.ErrGameNotActive
	}
	pos, err := s.engine.Load(g.CurrentFEN, nil)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	c, err := s.sched.NewClock(g.ID, g.WhiteMs, g.BlackMs, int64(g.Increment)*1000, pos.SideToMove())
	if err != nil {
		return nil, err
	}
	if g.Status == domain.StatusPaused {
		c.Pause()
	}
	if err := s.reg.Attach(g.ID, c); err != nil {
		c.Stop()
		return nil, err
	}
	return c, nil
}

func (s *Service) overlayTimes(g *domain.Game) {
	if !g.Status.Live() {
		return
	}
	if h, ok := s.reg.Get(g.ID); ok {
		t := h.TimeLeft()
		g.WhiteMs, g.BlackMs = t.WhiteMs, t.BlackMs
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	_ = s.sink.Publish(ctx, ev)
}

// settle runs rating settlement for a game this call moved to a terminal state.
func (s *Service) settle(ctx context.Context, g *domain.Game) {
	if s.settler == nil {
		return
	}
	res, err := s.settler.Settle(ctx, g)
	if err != nil {
		s.log.Error("rating_settle_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	if !res.Skipped {
		s.publish(ctx, events.Event{Type: events.RatingsSettled, GameID: g.ID, Game: g})
	}
}
