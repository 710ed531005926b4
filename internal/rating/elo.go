package rating

import (
	"math"

	"github.com/park285/cheese-arena/internal/domain"
)

// K is the Elo development coefficient.
const K = 32

// Expected is the logistic expectation of own scoring against opp.
func Expected(own, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-own)/400))
}

// Delta is the rating change for a player who scored actual (1, 0.5 or 0).
func Delta(own, opp int, actual float64) int {
	return int(math.Round(K * (actual - Expected(own, opp))))
}

func scores(o domain.Outcome) (white, black float64, ok bool) {
	switch o {
	case domain.OutcomeWhiteWin:
		return 1, 0, true
	case domain.OutcomeBlackWin:
		return 0, 1, true
	case domain.OutcomeDraw:
		return 0.5, 0.5, true
	default:
		return 0, 0, false
	}
}

// Apply updates both players' rating in discipline d and their aggregate
// counters for outcome o. It returns the applied deltas after the floor.
// Outcomes other than a win or a draw leave both players untouched.
func Apply(white, black *domain.Player, d domain.Discipline, o domain.Outcome) (dw, db int) {
	ws, bs, ok := scores(o)
	if !ok || white == nil || black == nil {
		return 0, 0
	}
	wr, br := white.Rating(d), black.Rating(d)
	white.SetRating(d, wr+Delta(wr, br, ws))
	black.SetRating(d, br+Delta(br, wr, bs))

	count(white, ws)
	count(black, bs)
	return white.Rating(d) - wr, black.Rating(d) - br
}

func count(p *domain.Player, score float64) {
	p.Played++
	switch score {
	case 1:
		p.Won++
	case 0:
		p.Lost++
	default:
		p.Drawn++
	}
}
