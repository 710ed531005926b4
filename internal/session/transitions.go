package session

import (
	"context"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"go.uber.org/zap"
)

func finishFields(g *domain.Game, outcome domain.Outcome, method string, now time.Time) {
	g.Outcome = outcome
	g.Status = domain.StatusFor(outcome)
	g.Method = method
	g.DrawOfferedBy = ""
	g.FinishedAt = now
}

// participant returns the caller's side of a live game.
func participant(g *domain.Game, player string) (domain.Side, error) {
	if g.Status.Terminal() {
		return "", domain.ErrGameFinished
	}
	side := g.SideOf(player)
	if side == "" {
		return "", domain.ErrNotParticipant
	}
	return side, nil
}

// flagged reports whether the game's clock already ran out. The time forfeit
// owns the game from that point on.
func (s *Service) flagged(g *domain.Game) bool {
	h, ok := s.reg.Get(g.ID)
	return ok && h.Expired()
}

// finishLocked stops the clock, persists the terminal state and detaches the
// clock. If the write fails the clock is re-attached from the stopped reading
// so the game keeps running.
func (s *Service) finishLocked(ctx context.Context, g *domain.Game, outcome domain.Outcome, method string) error {
	before := g.Clone()
	h, hasClock := s.reg.Get(g.ID)
	if hasClock {
		t := h.Stop()
		g.WhiteMs, g.BlackMs = t.WhiteMs, t.BlackMs
		before.WhiteMs, before.BlackMs = t.WhiteMs, t.BlackMs
	}
	finishFields(g, outcome, method, s.now())
	if err := s.update(ctx, g); err != nil {
		if hasClock {
			s.reg.Detach(g.ID)
			if _, rerr := s.attachClockLocked(before); rerr != nil {
				s.log.Error("clock_reattach_error", zap.String("game_id", g.ID), zap.Error(rerr))
			}
		}
		return err
	}
	s.reg.Detach(g.ID)
	return nil
}

// finished reports a terminal transition made by this call and settles it.
func (s *Service) finished(ctx context.Context, g *domain.Game, actor string) {
	s.log.Info("game_finish",
		zap.String("game_id", g.ID),
		zap.String("status", string(g.Status)),
		zap.String("outcome", string(g.Outcome)),
		zap.String("method", g.Method),
	)
	s.publish(ctx, events.Event{Type: events.GameFinished, GameID: g.ID, Game: g, Actor: actor})
	s.settle(ctx, g)
}

// Resign concedes an Active game. A paused game or one with a pending draw
// offer has to return to Active first.
func (s *Service) Resign(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		switch {
		case g.Status.Terminal():
			return domain.ErrGameFinished
		case g.Status != domain.StatusActive:
			return domain.ErrGameNotActive
		}
		side, err := participant(g, player)
		if err != nil {
			return err
		}
		if s.flagged(g) {
			return domain.ErrTimeExpired
		}
		return s.finishLocked(ctx, g, domain.WinFor(side.Opponent()), domain.MethodResignation)
	})
	if err != nil {
		return nil, err
	}
	s.finished(ctx, g, player)
	return g, nil
}

func (s *Service) OfferDraw(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		side, err := participant(g, player)
		if err != nil {
			return err
		}
		switch g.Status {
		case domain.StatusActive:
		case domain.StatusDrawProposed:
			return domain.ErrDrawPending
		default:
			return domain.ErrGameNotActive
		}
		if s.flagged(g) {
			return domain.ErrTimeExpired
		}
		g.Status = domain.StatusDrawProposed
		g.DrawOfferedBy = side
		return s.update(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.overlayTimes(g)
	s.log.Info("game_draw_offer", zap.String("game_id", g.ID), zap.String("player_id", player))
	s.publish(ctx, events.Event{Type: events.DrawOffered, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

// AcceptDraw ends the game drawn. Only the opponent of the offerer may accept.
func (s *Service) AcceptDraw(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		side, err := participant(g, player)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusDrawProposed {
			return domain.ErrNoDrawOffer
		}
		if side == g.DrawOfferedBy {
			return domain.ErrOwnDrawOffer
		}
		if s.flagged(g) {
			return domain.ErrTimeExpired
		}
		return s.finishLocked(ctx, g, domain.OutcomeDraw, domain.MethodAgreement)
	})
	if err != nil {
		return nil, err
	}
	s.finished(ctx, g, player)
	return g, nil
}

// DeclineDraw returns the game to Active. The offerer may use it to withdraw.
func (s *Service) DeclineDraw(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		if _, err := participant(g, player); err != nil {
			return err
		}
		if g.Status != domain.StatusDrawProposed {
			return domain.ErrNoDrawOffer
		}
		g.Status = domain.StatusActive
		g.DrawOfferedBy = ""
		return s.update(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.overlayTimes(g)
	s.publish(ctx, events.Event{Type: events.DrawDeclined, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

// Pause freezes both clocks of an Active game.
func (s *Service) Pause(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		if _, err := participant(g, player); err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return domain.ErrGameNotActive
		}
		h, err := s.attachClockLocked(g)
		if err != nil {
			return err
		}
		if h.Expired() {
			return domain.ErrTimeExpired
		}
		t := h.Pause()
		g.Status = domain.StatusPaused
		g.WhiteMs, g.BlackMs = t.WhiteMs, t.BlackMs
		if err := s.update(ctx, g); err != nil {
			h.Resume()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game_pause", zap.String("game_id", g.ID), zap.String("player_id", player))
	s.publish(ctx, events.Event{Type: events.GamePaused, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

func (s *Service) Resume(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		if _, err := participant(g, player); err != nil {
			return err
		}
		if g.Status != domain.StatusPaused {
			return domain.ErrNotPaused
		}
		h, err := s.attachClockLocked(g)
		if err != nil {
			return err
		}
		h.Resume()
		g.Status = domain.StatusActive
		if err := s.update(ctx, g); err != nil {
			h.Pause()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game_resume", zap.String("game_id", g.ID), zap.String("player_id", player))
	s.publish(ctx, events.Event{Type: events.GameResumed, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

// Abort cancels a Waiting game. Only its creator may abort it.
func (s *Service) Abort(ctx context.Context, id, player string) (*domain.Game, error) {
	g, err := s.withGame(ctx, id, func(g *domain.Game) error {
		switch {
		case g.Status.Terminal():
			return domain.ErrGameFinished
		case g.Status != domain.StatusWaiting:
			return domain.ErrGameNotWaiting
		case g.CreatorID != player:
			return domain.ErrNotCreator
		}
		finishFields(g, domain.OutcomeAborted, domain.MethodAbort, s.now())
		return s.update(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game_abort", zap.String("game_id", g.ID), zap.String("player_id", player))
	s.publish(ctx, events.Event{Type: events.GameFinished, GameID: g.ID, Game: g, Actor: player})
	return g, nil
}

// HandleExpiry applies a time forfeit. It reports false when the game had
// already left the live states, e.g. a resignation ended it first, or when
// the attached clock has not run out.
func (s *Service) HandleExpiry(ctx context.Context, ev clock.Expiry) (bool, error) {
	applied := false
	g, err := s.withGame(ctx, ev.GameID, func(g *domain.Game) error {
		if !g.Status.Live() {
			return nil
		}
		if h, ok := s.reg.Get(g.ID); ok {
			if !h.Expired() {
				// stale event from a clock that has since been replaced
				return nil
			}
			t := h.TimeLeft()
			g.WhiteMs, g.BlackMs = t.WhiteMs, t.BlackMs
		}
		if ev.Side == domain.White {
			g.WhiteMs = 0
		} else {
			g.BlackMs = 0
		}
		at := ev.At
		if at.IsZero() {
			at = s.now()
		}
		finishFields(g, domain.WinFor(ev.Side.Opponent()), domain.MethodTime, at)
		if err := s.update(ctx, g); err != nil {
			return err
		}
		s.reg.Detach(g.ID)
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Debug("clock_expiry_ignored", zap.String("game_id", ev.GameID), zap.String("status", string(g.Status)))
		return false, nil
	}
	s.finished(ctx, g, "")
	return true, nil
}
