// Package httpapi exposes games, invites and players over REST.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/invite"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/render"
	"github.com/park285/cheese-arena/internal/session"
	"go.uber.org/zap"
)

type Deps struct {
	Games    *session.Service
	Invites  *invite.Ledger
	Players  *rating.Settler
	Renderer *render.Renderer
	// Feed serves /ws/games/{id} when set.
	Feed    http.Handler
	Catalog *msgcat.Catalog
	Logger  *zap.Logger
}

type Handler struct {
	games    *session.Service
	invites  *invite.Ledger
	players  *rating.Settler
	renderer *render.Renderer
	cat      *msgcat.Catalog
	log      *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	h := &Handler{
		games:    d.Games,
		invites:  d.Invites,
		players:  d.Players,
		renderer: d.Renderer,
		cat:      d.Catalog,
		log:      d.Logger,
	}
	if h.log == nil {
		h.log = obslog.L()
	}
	if h.cat == nil {
		h.cat = msgcat.MustDefault()
	}
	if h.renderer == nil {
		h.renderer = render.New(0)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}) })
	if d.Feed != nil {
		r.Get("/ws/games/{id}", d.Feed.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.listGames)
			r.With(h.requireUser).Post("/", h.createGame)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getGame)
				r.Get("/moves", h.listMoves)
				r.Get("/legal-moves", h.legalMoves)
				r.Get("/time-left", h.timeLeft)
				r.Get("/pgn", h.pgn)
				r.Get("/board.png", h.boardPNG)

				r.Group(func(r chi.Router) {
					r.Use(h.requireUser)
					r.Post("/join", h.joinGame)
					r.Post("/move", h.move)
					r.Post("/resign", h.transition(h.games.Resign))
					r.Post("/draw-offer", h.transition(h.games.OfferDraw))
					r.Post("/draw-accept", h.transition(h.games.AcceptDraw))
					r.Post("/draw-decline", h.transition(h.games.DeclineDraw))
					r.Post("/pause", h.transition(h.games.Pause))
					r.Post("/resume", h.transition(h.games.Resume))
					r.Post("/abort", h.transition(h.games.Abort))
				})
			})
		})

		r.Route("/invites", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Post("/", h.sendInvite)
			r.Get("/", h.listInvites)
			r.Get("/{id}", h.getInvite)
			r.Post("/{id}/accept", h.acceptInvite)
			r.Post("/{id}/reject", h.resolveInvite(h.invites.Reject))
			r.Post("/{id}/cancel", h.resolveInvite(h.invites.Cancel))
		})

		r.Route("/players", func(r chi.Router) {
			r.Post("/", h.registerPlayer)
			r.Get("/top", h.topPlayers)
			r.Get("/{id}", h.getPlayer)
		})
	})
	return r
}
