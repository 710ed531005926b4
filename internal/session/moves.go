package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/storage"
	"go.uber.org/zap"
)

type MoveRequest struct {
	From      string
	To        string
	Promotion string
}

type MoveResult struct {
	Game *domain.Game
	Move domain.Move
	// Finished is set when this move ended the game.
	Finished bool
}

// ApplyMove validates and applies one move for player. A rejected move leaves
// the clock, the position and the move log untouched.
func (s *Service) ApplyMove(ctx context.Context, id, player string, req MoveRequest) (*MoveResult, error) {
	mv, err := rules.ParseMove(req.From, req.To, req.Promotion)
	if err != nil {
		return nil, err
	}
	var (
		rec      domain.Move
		finished bool
	)
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		if err := requireMovable(g); err != nil {
			return err
		}
		side := g.SideOf(player)
		if side == "" {
			return domain.ErrNotParticipant
		}
		pos, err := s.engine.Load(g.InitialFEN, g.History())
		if err != nil {
			return fmt.Errorf("replay game %s: %w", g.ID, err)
		}
		if pos.SideToMove() != side {
			return domain.ErrNotYourTurn
		}
		if !pos.IsLegal(mv) {
			return domain.Illegalf("illegal move %s", mv.UCI())
		}
		next, san, err := pos.Apply(mv)
		if err != nil {
			return err
		}
		h, err := s.attachClockLocked(g)
		if err != nil {
			return fmt.Errorf("attach clock: %w", err)
		}
		times, err := h.SwitchTurn()
		switch {
		case errors.Is(err, clock.ErrExpired):
			// the expiry consumer finishes the game
			return domain.ErrTimeExpired
		case errors.Is(err, clock.ErrPaused):
			return domain.ErrGameNotActive
		case errors.Is(err, clock.ErrStopped):
			return domain.ErrGameFinished
		case err != nil:
			return err
		}

		now := s.now()
		rec = domain.Move{
			ID:        s.newID(),
			GameID:    g.ID,
			Number:    len(g.Moves) + 1,
			From:      mv.From,
			To:        mv.To,
			Promotion: mv.Promotion,
			UCI:       mv.UCI(),
			SAN:       san,
			FEN:       next.FEN(),
			WhiteMs:   times.WhiteMs,
			BlackMs:   times.BlackMs,
			CreatedAt: now,
		}
		g.Moves = append(g.Moves, rec)
		g.CurrentFEN = rec.FEN
		g.WhiteMs, g.BlackMs = times.WhiteMs, times.BlackMs
		// moving over a pending offer declines it
		g.Status = domain.StatusActive
		g.DrawOfferedBy = ""

		if t := next.Terminal(); t.Over {
			outcome := domain.OutcomeDraw
			if t.Checkmate {
				outcome = domain.WinFor(t.Winner)
			}
			method := t.Method
			if method == "" {
				method = domain.MethodCheckmate
			}
			finishFields(g, outcome, method, now)
			finished = true
		}
		if err := s.repo.AppendMove(ctx, g, rec); err != nil {
			if !h.RevertTurn() {
				s.log.Warn("clock_revert_failed", zap.String("game_id", g.ID))
			}
			if errors.Is(err, storage.ErrConflict) {
				return domain.ErrConcurrentWrite
			}
			return fmt.Errorf("append move: %w", err)
		}
		if finished {
			s.reg.Detach(g.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game_move",
		zap.String("game_id", g.ID),
		zap.String("player_id", player),
		zap.Int("number", rec.Number),
		zap.String("uci", rec.UCI),
		zap.Int64("white_ms", rec.WhiteMs),
		zap.Int64("black_ms", rec.BlackMs),
	)
	s.publish(ctx, events.Event{Type: events.MovePlayed, GameID: g.ID, Game: g, Move: &rec, Actor: player})
	if finished {
		s.finished(ctx, g, player)
	}
	return &MoveResult{Game: g, Move: rec, Finished: finished}, nil
}

func requireMovable(g *domain.Game) error {
	switch g.Status {
	case domain.StatusActive, domain.StatusDrawProposed:
		return nil
	case domain.StatusWhiteWon, domain.StatusBlackWon, domain.StatusDraw, domain.StatusAborted:
		return domain.ErrGameFinished
	default:
		return domain.ErrGameNotActive
	}
}

// LegalMoves lists the legal moves from square in the game's current position.
func (s *Service) LegalMoves(ctx context.Context, id, square string) ([]rules.Move, error) {
	if !rules.ValidSquare(square) {
		return nil, domain.Validation("invalid_square", "unknown square: "+square)
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return []rules.Move{}, nil
	}
	pos, err := s.engine.Load(g.CurrentFEN, nil)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	out := pos.LegalMoves(square)
	if out == nil {
		out = []rules.Move{}
	}
	return out, nil
}

// TimeLeft reads the live clock, or the persisted snapshot when none runs.
func (s *Service) TimeLeft(ctx context.Context, id string) (clock.Times, error) {
	if h, ok := s.reg.Get(id); ok {
		return h.TimeLeft(), nil
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return clock.Times{}, err
	}
	return clock.Times{WhiteMs: g.WhiteMs, BlackMs: g.BlackMs}, nil
}

func (s *Service) Moves(ctx context.Context, id string) ([]domain.Move, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	moves, err := s.repo.ListMoves(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	if moves == nil {
		moves = []domain.Move{}
	}
	return moves, nil
}
