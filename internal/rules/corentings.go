package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/domain"
)

// ChessEngine is the Engine backed by github.com/corentings/chess.
type ChessEngine struct{}

func NewChessEngine() *ChessEngine { return &ChessEngine{} }

type position struct {
	initial string
	history []string
	game    *nchess.Game
}

// Load replays history on top of initialFEN. Empty initialFEN means the standard start.
func (e *ChessEngine) Load(initialFEN string, history []string) (p Position, err error) {
	defer recoverIllegal(&err)
	game, err := replay(initialFEN, history)
	if err != nil {
		return nil, err
	}
	return &position{initial: initialFEN, history: append([]string(nil), history...), game: game}, nil
}

func replay(initialFEN string, history []string) (*nchess.Game, error) {
	game, err := newGame(initialFEN)
	if err != nil {
		return nil, err
	}
	notation := nchess.UCINotation{}
	for _, mv := range history {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, domain.Illegalf("decode move %s: %v", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, domain.Illegalf("apply move %s: %v", mv, err)
		}
	}
	return game, nil
}

func newGame(initialFEN string) (*nchess.Game, error) {
	fen := strings.TrimSpace(initialFEN)
	if fen == "" || fen == domain.StartFEN {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, domain.Validation("invalid_position", fmt.Sprintf("invalid FEN %q: %v", fen, err))
	}
	return nchess.NewGame(opt), nil
}

func (p *position) FEN() string { return p.game.FEN() }

func (p *position) SideToMove() domain.Side {
	if p.game.Position().Turn() == nchess.White {
		return domain.White
	}
	return domain.Black
}

func (p *position) IsLegal(m Move) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	for _, mv := range p.game.ValidMoves() {
		if mv.S1().String() == m.From && mv.S2().String() == m.To && promoLetter(mv.Promo()) == m.Promotion {
			return true
		}
	}
	return false
}

func (p *position) Apply(m Move) (next Position, san string, err error) {
	defer recoverIllegal(&err)
	if !p.IsLegal(m) {
		return nil, "", domain.Illegalf("illegal move %s", m.UCI())
	}
	game, err := replay(p.initial, p.history)
	if err != nil {
		return nil, "", err
	}
	pre := game.Position()
	move, err := nchess.UCINotation{}.Decode(pre, m.UCI())
	if err != nil {
		return nil, "", domain.Illegalf("decode move %s: %v", m.UCI(), err)
	}
	san = nchess.AlgebraicNotation{}.Encode(pre, move)
	if err := game.Move(move, nil); err != nil {
		return nil, "", domain.Illegalf("illegal move %s: %v", m.UCI(), err)
	}
	history := make([]string, 0, len(p.history)+1)
	history = append(history, p.history...)
	history = append(history, m.UCI())
	return &position{initial: p.initial, history: history, game: game}, san, nil
}

func (p *position) Terminal() Terminal {
	var t Terminal
	method := strings.ToLower(p.game.Method().String())
	switch p.game.Outcome() {
	case nchess.WhiteWon:
		t = Terminal{Over: true, Checkmate: true, Winner: domain.White}
	case nchess.BlackWon:
		t = Terminal{Over: true, Checkmate: true, Winner: domain.Black}
	case nchess.Draw:
		t = Terminal{Over: true, Draw: true, Stalemate: method == domain.MethodStalemate}
	default:
		return t
	}
	t.Method = method
	return t
}

func (p *position) LegalMoves(from string) []Move {
	from = strings.ToLower(strings.TrimSpace(from))
	var out []Move
	for _, mv := range p.game.ValidMoves() {
		if mv.S1().String() != from {
			continue
		}
		out = append(out, Move{From: from, To: mv.S2().String(), Promotion: promoLetter(mv.Promo())})
	}
	return out
}

func promoLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

// recoverIllegal converts a panic inside the rules library into an IllegalMove error.
func recoverIllegal(err *error) {
	if r := recover(); r != nil {
		*err = domain.Illegalf("rules engine failure: %v", r)
	}
}
