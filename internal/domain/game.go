package domain

import (
	"strings"
	"time"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Side identifies a chess side.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) Valid() bool { return s == White || s == Black }

// Discipline is a game speed category with a default time control.
type Discipline string

const (
	Classical Discipline = "CLASSICAL"
	Rapid     Discipline = "RAPID"
	Blitz     Discipline = "BLITZ"
)

// Disciplines lists every discipline in a stable order.
var Disciplines = []Discipline{Classical, Rapid, Blitz}

func (d Discipline) BaseSeconds() int {
	switch d {
	case Classical:
		return 1800
	case Rapid:
		return 600
	case Blitz:
		return 180
	default:
		return 0
	}
}

func (d Discipline) IncrementSeconds() int {
	switch d {
	case Classical:
		return 30
	case Rapid:
		return 5
	case Blitz:
		return 2
	default:
		return 0
	}
}

func (d Discipline) Valid() bool { return d.BaseSeconds() > 0 }

// ParseDiscipline accepts the enum name in any case.
func ParseDiscipline(s string) (Discipline, error) {
	d := Discipline(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", Validation("invalid_discipline", "unknown discipline: "+s)
	}
	return d, nil
}

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting      Status = "WAITING"
	StatusActive       Status = "ACTIVE"
	StatusPaused       Status = "PAUSED"
	StatusDrawProposed Status = "DRAW_PROPOSED"
	StatusWhiteWon     Status = "WHITE_WON"
	StatusBlackWon     Status = "BLACK_WON"
	StatusDraw         Status = "DRAW"
	StatusAborted      Status = "ABORTED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusWhiteWon, StatusBlackWon, StatusDraw, StatusAborted:
		return true
	default:
		return false
	}
}

// Live reports whether a clock belongs to a game in this state.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusPaused || s == StatusDrawProposed
}

type Outcome string

const (
	OutcomeNone     Outcome = "NONE"
	OutcomeWhiteWin Outcome = "WHITE_WIN"
	OutcomeBlackWin Outcome = "BLACK_WIN"
	OutcomeDraw     Outcome = "DRAW"
	OutcomeAborted  Outcome = "ABORTED"
)

// StatusFor maps a finishing outcome to its terminal status.
func StatusFor(o Outcome) Status {
	switch o {
	case OutcomeWhiteWin:
		return StatusWhiteWon
	case OutcomeBlackWin:
		return StatusBlackWon
	case OutcomeDraw:
		return StatusDraw
	case OutcomeAborted:
		return StatusAborted
	default:
		return ""
	}
}

// WinFor returns the outcome in which side wins.
func WinFor(side Side) Outcome {
	if side == White {
		return OutcomeWhiteWin
	}
	return OutcomeBlackWin
}

// Termination reasons recorded on finished games.
const (
	MethodCheckmate   = "checkmate"
	MethodStalemate   = "stalemate"
	MethodResignation = "resignation"
	MethodAgreement   = "agreement"
	MethodTime        = "time"
	MethodAbort       = "abort"
)

// Game is the persisted state of a two-player session.
type Game struct {
	ID         string     `json:"id"`
	WhiteID    string     `json:"white_id,omitempty"`
	BlackID    string     `json:"black_id,omitempty"`
	CreatorID  string     `json:"creator_id"`
	ReservedID string     `json:"reserved_id,omitempty"`
	Discipline Discipline `json:"discipline"`
	Status     Status     `json:"status"`
	Outcome    Outcome    `json:"outcome"`
	Method     string     `json:"method,omitempty"`

	TimeControl int   `json:"time_control"`
	Increment   int   `json:"increment"`
	WhiteMs     int64 `json:"white_ms"`
	BlackMs     int64 `json:"black_ms"`

	InitialFEN string `json:"initial_fen"`
	CurrentFEN string `json:"current_fen"`
	Moves      []Move `json:"moves,omitempty"`

	DrawOfferedBy Side   `json:"draw_offered_by,omitempty"`
	InviteID      string `json:"invite_id,omitempty"`
	Version       int64  `json:"version"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Move is an immutable entry of a game's move log.
type Move struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Number    int       `json:"number"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FEN       string    `json:"fen"`
	WhiteMs   int64     `json:"white_ms"`
	BlackMs   int64     `json:"black_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// SideOf returns the seat held by playerID, or "" for non-participants.
func (g *Game) SideOf(playerID string) Side {
	switch {
	case playerID == "":
		return ""
	case g.WhiteID == playerID:
		return White
	case g.BlackID == playerID:
		return Black
	default:
		return ""
	}
}

func (g *Game) PlayerFor(side Side) string {
	if side == White {
		return g.WhiteID
	}
	return g.BlackID
}

func (g *Game) HasBothSeats() bool { return g.WhiteID != "" && g.BlackID != "" }

func (g *Game) TimeLeftFor(side Side) int64 {
	if side == White {
		return g.WhiteMs
	}
	return g.BlackMs
}

// History returns the UCI move log in order.
func (g *Game) History() []string {
	out := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		out = append(out, m.UCI)
	}
	return out
}

// Clone copies the game including its move log.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	if g.Moves != nil {
		cp.Moves = append([]Move(nil), g.Moves...)
	}
	return &cp
}
