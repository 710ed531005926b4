package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

// registerPlayer takes the id from the body, or from X-User-Id when the body
// leaves it empty.
func (h *Handler) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var req chessdto.RegisterPlayerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strings.TrimSpace(r.Header.Get(UserHeader))
	}
	p, err := h.players.Register(r.Context(), id, strings.TrimSpace(req.Handle))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, playerDTO(p))
}

func (h *Handler) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.players.Player(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playerDTO(p))
}

func (h *Handler) topPlayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := domain.Blitz
	if raw := q.Get("discipline"); strings.TrimSpace(raw) != "" {
		parsed, err := domain.ParseDiscipline(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		d = parsed
	}
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit > 100 {
		limit = 100
	}
	players, err := h.players.TopPlayers(r.Context(), d, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]chessdto.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		out = append(out, chessdto.LeaderboardEntry{Rank: i + 1, PlayerID: p.ID, Handle: p.Handle, Rating: p.Rating(d)})
	}
	writeJSON(w, http.StatusOK, chessdto.ListResponse[chessdto.LeaderboardEntry]{Items: out})
}
