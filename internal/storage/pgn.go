package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// PGNResult maps a game outcome to the PGN result token.
func PGNResult(o domain.Outcome) string {
	switch o {
	case domain.OutcomeWhiteWin:
		return "1-0"
	case domain.OutcomeBlackWin:
		return "0-1"
	case domain.OutcomeDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders g as a PGN document. Names fall back to player ids.
func BuildPGN(g *domain.Game, whiteName, blackName string) string {
	if g == nil {
		return ""
	}
	result := PGNResult(g.Outcome)
	date := g.StartedAt
	if date.IsZero() {
		date = g.CreatedAt
	}
	if date.IsZero() {
		date = time.Now()
	}
	if strings.TrimSpace(whiteName) == "" {
		whiteName = orUnknown(g.WhiteID)
	}
	if strings.TrimSpace(blackName) == "" {
		blackName = orUnknown(g.BlackID)
	}

	var b strings.Builder
	b.WriteString("[Event \"Cheese Arena\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(whiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(blackName)))
	b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", g.TimeControl, g.Increment))
	if g.InitialFEN != "" && g.InitialFEN != domain.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(g.InitialFEN)))
	}
	if strings.TrimSpace(g.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(g.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	turn, blackFirst := fenMoveNumber(g.InitialFEN)
	for i, m := range g.Moves {
		san := strings.TrimSpace(m.SAN)
		if san == "" {
			san = m.UCI
		}
		whiteToMove := (i%2 == 0) != blackFirst
		switch {
		case whiteToMove:
			b.WriteString(strconv.Itoa(turn) + ". " + san + " ")
		case i == 0:
			b.WriteString(strconv.Itoa(turn) + "... " + san + " ")
			turn++
		default:
			b.WriteString(san + " ")
			turn++
		}
	}
	b.WriteString(result)
	return b.String()
}

// fenMoveNumber reads the fullmove number and side to move of a FEN.
func fenMoveNumber(fen string) (int, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1, false
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		n = 1
	}
	return n, fields[1] == "b"
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
