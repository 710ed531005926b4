// Package rules adapts a chess rules library to the operations the session
// engine needs: loading a position, legality, application, notation and
// terminal detection. Positions are immutable values; Apply returns a new one.
package rules

import (
	"strings"

	"github.com/park285/cheese-arena/internal/domain"
)

// Move is an origin/destination pair with an optional promotion piece (q, r, b, n).
type Move struct {
	From      string
	To        string
	Promotion string
}

// UCI renders the move in long algebraic form, e.g. e7e8q.
func (m Move) UCI() string { return m.From + m.To + m.Promotion }

// Terminal describes whether a position ends the game.
type Terminal struct {
	Over      bool
	Checkmate bool
	Stalemate bool
	Draw      bool
	// Winner is set for checkmate only.
	Winner domain.Side
	// Method is a lower-case reason such as "checkmate" or "insufficientmaterial".
	Method string
}

// Engine loads positions from an initial encoding plus a UCI move log.
type Engine interface {
	Load(initialFEN string, history []string) (Position, error)
}

type Position interface {
	FEN() string
	SideToMove() domain.Side
	IsLegal(m Move) bool
	// Apply returns the resulting position and the move's SAN notation.
	// The receiver is left unchanged.
	Apply(m Move) (Position, string, error)
	Terminal() Terminal
	LegalMoves(from string) []Move
}

// ParseMove validates square syntax and the promotion piece.
func ParseMove(from, to, promotion string) (Move, error) {
	m := Move{
		From:      strings.ToLower(strings.TrimSpace(from)),
		To:        strings.ToLower(strings.TrimSpace(to)),
		Promotion: strings.ToLower(strings.TrimSpace(promotion)),
	}
	if !ValidSquare(m.From) {
		return Move{}, domain.Validation("invalid_square", "unknown square: "+from)
	}
	if !ValidSquare(m.To) {
		return Move{}, domain.Validation("invalid_square", "unknown square: "+to)
	}
	if m.From == m.To {
		return Move{}, domain.Validation("invalid_move", "origin and destination are the same square")
	}
	switch m.Promotion {
	case "", "q", "r", "b", "n":
	default:
		return Move{}, domain.Validation("invalid_promotion", "unknown promotion piece: "+promotion)
	}
	return m, nil
}

// ParseUCI parses long algebraic notation such as e2e4 or a7a8q.
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, domain.Validation("invalid_move", "malformed move: "+s)
	}
	promo := ""
	if len(s) == 5 {
		promo = s[4:]
	}
	return ParseMove(s[0:2], s[2:4], promo)
}

func ValidSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
