package httpapi

import (
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func gameDTO(g *domain.Game) *chessdto.Game {
	if g == nil {
		return nil
	}
	out := &chessdto.Game{
		ID:            g.ID,
		WhiteID:       g.WhiteID,
		BlackID:       g.BlackID,
		CreatorID:     g.CreatorID,
		ReservedID:    g.ReservedID,
		Discipline:    string(g.Discipline),
		Status:        string(g.Status),
		Outcome:       string(g.Outcome),
		Method:        g.Method,
		TimeControl:   g.TimeControl,
		Increment:     g.Increment,
		WhiteMs:       g.WhiteMs,
		BlackMs:       g.BlackMs,
		InitialFEN:    g.InitialFEN,
		FEN:           g.CurrentFEN,
		MoveCount:     len(g.Moves),
		DrawOfferedBy: string(g.DrawOfferedBy),
		InviteID:      g.InviteID,
		CreatedAt:     g.CreatedAt,
		StartedAt:     timePtr(g.StartedAt),
		FinishedAt:    timePtr(g.FinishedAt),
	}
	if !g.Status.Terminal() {
		out.SideToMove = sideToMove(g.CurrentFEN)
	}
	return out
}

func gamesDTO(gs []*domain.Game) []*chessdto.Game {
	out := make([]*chessdto.Game, 0, len(gs))
	for _, g := range gs {
		out = append(out, gameDTO(g))
	}
	return out
}

// sideToMove reads the active color field of a FEN.
func sideToMove(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return ""
	}
	if fields[1] == "b" {
		return string(domain.Black)
	}
	return string(domain.White)
}

func moveDTO(m domain.Move) chessdto.Move {
	return chessdto.Move{
		Number:    m.Number,
		From:      m.From,
		To:        m.To,
		Promotion: m.Promotion,
		UCI:       m.UCI,
		SAN:       m.SAN,
		FEN:       m.FEN,
		WhiteMs:   m.WhiteMs,
		BlackMs:   m.BlackMs,
		CreatedAt: m.CreatedAt,
	}
}

func inviteDTO(inv *domain.Invite) *chessdto.Invite {
	if inv == nil {
		return nil
	}
	return &chessdto.Invite{
		ID:          inv.ID,
		SenderID:    inv.SenderID,
		ReceiverID:  inv.ReceiverID,
		Discipline:  string(inv.Discipline),
		TimeControl: inv.TimeControl,
		Increment:   inv.Increment,
		Status:      string(inv.Status),
		GameID:      inv.GameID,
		SentAt:      inv.SentAt,
		RespondedAt: timePtr(inv.RespondedAt),
		ExpiresAt:   inv.ExpiresAt,
	}
}

func playerDTO(p *domain.Player) *chessdto.Player {
	if p == nil {
		return nil
	}
	out := &chessdto.Player{
		ID:      p.ID,
		Handle:  p.Handle,
		Ratings: make(map[string]int, len(domain.Disciplines)),
		Played:  p.Played,
		Won:     p.Won,
		Drawn:   p.Drawn,
		Lost:    p.Lost,
	}
	for _, d := range domain.Disciplines {
		out.Ratings[string(d)] = p.Rating(d)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
