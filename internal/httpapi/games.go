package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/render"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/storage"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func (h *Handler) createGame(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CreateGameRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := domain.ParseDiscipline(req.Discipline)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	g, err := h.games.CreateGame(r.Context(), session.CreateRequest{
		CreatorID:   userFromContext(r.Context()),
		Discipline:  d,
		TimeControl: req.TimeControl,
		Increment:   req.Increment,
		OpponentID:  req.OpponentID,
		Color:       session.Color(strings.ToLower(strings.TrimSpace(req.Color))),
		InitialFEN:  req.InitialFEN,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameDTO(g))
}

// listGames serves ?filter=all|waiting|active|history. active and history
// default to the caller's games.
func (h *Handler) listGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.ListFilter(strings.ToLower(strings.TrimSpace(q.Get("filter"))))
	player := strings.TrimSpace(q.Get("player"))
	if player == "" && (filter == session.ListActive || filter == session.ListHistory) {
		player = strings.TrimSpace(r.Header.Get(UserHeader))
	}
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	games, err := h.games.ListGames(r.Context(), session.ListQuery{Filter: filter, PlayerID: player, Limit: limit, Offset: offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chessdto.ListResponse[*chessdto.Game]{Items: gamesDTO(games)})
}

func (h *Handler) getGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameDTO(g))
}

func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.JoinGame(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameDTO(g))
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req chessdto.MoveRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.games.ApplyMove(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()), session.MoveRequest{
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chessdto.MoveResponse{Game: gameDTO(res.Game), Move: moveDTO(res.Move), Finished: res.Finished})
}

type gameTransition func(ctx context.Context, id, player string) (*domain.Game, error)

// transition adapts the single-actor game operations (resign, draw, pause,
// abort) to a handler.
func (h *Handler) transition(op gameTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := op(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, gameDTO(g))
	}
}

func (h *Handler) listMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := h.games.Moves(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]chessdto.Move, 0, len(moves))
	for _, m := range moves {
		out = append(out, moveDTO(m))
	}
	writeJSON(w, http.StatusOK, chessdto.ListResponse[chessdto.Move]{Items: out})
}

func (h *Handler) legalMoves(w http.ResponseWriter, r *http.Request) {
	square := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("square")))
	moves, err := h.games.LegalMoves(r.Context(), chi.URLParam(r, "id"), square)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := chessdto.LegalMoves{Square: square, Moves: make([]string, 0, len(moves))}
	for _, m := range moves {
		out.Moves = append(out.Moves, m.UCI())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) timeLeft(w http.ResponseWriter, r *http.Request) {
	t, err := h.games.TimeLeft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chessdto.TimeLeft{WhiteMs: t.WhiteMs, BlackMs: t.BlackMs})
}

func (h *Handler) pgn(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := storage.BuildPGN(g, h.handleOf(r.Context(), g.WhiteID), h.handleOf(r.Context(), g.BlackID))
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", `attachment; filename="`+g.ID+`.pgn"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleOf prefers the registered handle and falls back to the raw id.
func (h *Handler) handleOf(ctx context.Context, id string) string {
	if id == "" || h.players == nil {
		return id
	}
	if p, err := h.players.Player(ctx, id); err == nil && p.Handle != "" {
		return p.Handle
	}
	return id
}

func (h *Handler) boardPNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := queryInt(q.Get("size"), "size")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	flip := false
	if v := strings.TrimSpace(q.Get("flip")); v != "" {
		if flip, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, r, domain.Validation("invalid_request", "flip must be a boolean"))
			return
		}
	}
	g, err := h.games.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts := render.Options{Size: size, Flip: flip}
	if n := len(g.Moves); n > 0 {
		opts.LastFrom, opts.LastTo = g.Moves[n-1].From, g.Moves[n-1].To
	}
	img, err := h.renderer.PNG(r.Context(), g.CurrentFEN, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func queryInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validation("invalid_request", name+" must be a non-negative integer")
	}
	return n, nil
}
