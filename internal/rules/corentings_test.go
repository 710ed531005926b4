package rules

import (
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
)

func TestLoadStartPosition(t *testing.T) {
	pos, err := NewChessEngine().Load(domain.StartFEN, nil)
	if err != nil { t.Fatalf("Load: %v", err) }
	if pos.SideToMove() != domain.White { t.Fatalf("expected white to move, got %s", pos.SideToMove()) }
	if pos.Terminal().Over { t.Fatalf("start position must not be terminal") }

	moves := pos.LegalMoves("e2")
	if len(moves) != 2 { t.Fatalf("expected 2 moves from e2, got %d (%v)", len(moves), moves) }
	if len(pos.LegalMoves("e4")) != 0 { t.Fatalf("empty square must have no moves") }
}

func TestApplyKeepsReceiver(t *testing.T) {
	pos, err := NewChessEngine().Load("", nil)
	if err != nil { t.Fatalf("Load: %v", err) }
	before := pos.FEN()

	next, san, err := pos.Apply(Move{From: "e2", To: "e4"})
	if err != nil { t.Fatalf("Apply: %v", err) }
	if san != "e4" { t.Fatalf("expected SAN e4, got %q", san) }
	if next.SideToMove() != domain.Black { t.Fatalf("expected black to move after e4") }
	if pos.FEN() != before { t.Fatalf("receiver mutated: %s", pos.FEN()) }
}

func TestIllegalMoveIsTyped(t *testing.T) {
	pos, _ := NewChessEngine().Load("", nil)
	if pos.IsLegal(Move{From: "e2", To: "e5"}) { t.Fatalf("e2e5 must be illegal") }
	_, _, err := pos.Apply(Move{From: "e2", To: "e5"})
	if domain.KindOf(err) != domain.KindIllegalMove { t.Fatalf("expected illegal move kind, got %v", err) }
}

func TestCheckmateDetected(t *testing.T) {
	pos, err := NewChessEngine().Load("", []string{"f2f3", "e7e5", "g2g4"})
	if err != nil { t.Fatalf("Load: %v", err) }
	mated, san, err := pos.Apply(Move{From: "d8", To: "h4"})
	if err != nil { t.Fatalf("Apply: %v", err) }
	if san != "Qh4#" { t.Fatalf("expected Qh4#, got %q", san) }
	term := mated.Terminal()
	if !term.Over || !term.Checkmate || term.Winner != domain.Black {
		t.Fatalf("expected black checkmate, got %+v", term)
	}
}

func TestStalemateDetected(t *testing.T) {
	pos, err := NewChessEngine().Load("7k/8/6K1/8/8/8/8/5Q2 w - - 0 1", nil)
	if err != nil { t.Fatalf("Load: %v", err) }
	next, _, err := pos.Apply(Move{From: "f1", To: "f7"})
	if err != nil { t.Fatalf("Apply: %v", err) }
	term := next.Terminal()
	if !term.Over || !term.Draw || !term.Stalemate { t.Fatalf("expected stalemate, got %+v", term) }
}

func TestPromotionMoves(t *testing.T) {
	pos, err := NewChessEngine().Load("8/P6k/8/8/8/8/8/K7 w - - 0 1", nil)
	if err != nil { t.Fatalf("Load: %v", err) }
	moves := pos.LegalMoves("a7")
	if len(moves) != 4 { t.Fatalf("expected 4 promotion moves, got %v", moves) }
	if pos.IsLegal(Move{From: "a7", To: "a8"}) { t.Fatalf("promotion without piece must be illegal") }
	if !pos.IsLegal(Move{From: "a7", To: "a8", Promotion: "n"}) { t.Fatalf("underpromotion must be legal") }
}

func TestBrokenHistoryRejected(t *testing.T) {
	_, err := NewChessEngine().Load("", []string{"e2e4", "e2e4"})
	if domain.KindOf(err) != domain.KindIllegalMove { t.Fatalf("expected illegal move kind, got %v", err) }
}

func TestParseMove(t *testing.T) {
	if _, err := ParseMove("e2", "e4", ""); err != nil { t.Fatalf("ParseMove: %v", err) }
	if _, err := ParseMove("i9", "e4", ""); domain.KindOf(err) != domain.KindValidation { t.Fatalf("expected validation error, got %v", err) }
	if _, err := ParseMove("e7", "e8", "k"); domain.KindOf(err) != domain.KindValidation { t.Fatalf("expected validation error for king promotion") }
	m, err := ParseUCI("A7A8Q")
	if err != nil || m.UCI() != "a7a8q" { t.Fatalf("ParseUCI: %v %q", err, m.UCI()) }
	if _, err := ParseUCI("e2"); err == nil { t.Fatalf("expected error for short move") }
}
