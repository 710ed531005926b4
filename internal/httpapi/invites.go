package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/invite"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func (h *Handler) sendInvite(w http.ResponseWriter, r *http.Request) {
	var req chessdto.SendInviteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := domain.ParseDiscipline(req.Discipline)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.invites.Send(r.Context(), invite.SendRequest{
		SenderID:    userFromContext(r.Context()),
		ReceiverID:  req.ReceiverID,
		Discipline:  d,
		TimeControl: req.TimeControl,
		Increment:   req.Increment,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inviteDTO(inv))
}

// listInvites serves ?direction=received|sent&status=PENDING,EXPIRED&limit=.
func (h *Handler) listInvites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var statuses []domain.InviteStatus
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			statuses = append(statuses, domain.InviteStatus(s))
		}
	}
	dir := invite.Direction(strings.ToLower(strings.TrimSpace(q.Get("direction"))))
	list, err := h.invites.ListForPlayer(r.Context(), userFromContext(r.Context()), dir, statuses, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]*chessdto.Invite, 0, len(list))
	for _, inv := range list {
		out = append(out, inviteDTO(inv))
	}
	writeJSON(w, http.StatusOK, chessdto.ListResponse[*chessdto.Invite]{Items: out})
}

// getInvite shows an invite to its sender and receiver only.
func (h *Handler) getInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invites.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user := userFromContext(r.Context()); user != inv.SenderID && user != inv.ReceiverID {
		h.writeError(w, r, domain.ErrInviteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inviteDTO(inv))
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	inv, g, err := h.invites.Accept(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chessdto.AcceptInviteResponse{Invite: inviteDTO(inv), Game: gameDTO(g)})
}

type inviteTransition func(ctx context.Context, id, player string) (*domain.Invite, error)

func (h *Handler) resolveInvite(op inviteTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := op(r.Context(), chi.URLParam(r, "id"), userFromContext(r.Context()))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteDTO(inv))
	}
}
