package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/invite"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/storage"
	"github.com/park285/cheese-arena/pkg/chessdto"
)

func newAPI(t *testing.T) http.Handler {
	t.Helper()
	repo := storage.NewMemoryRepository()
	sched := clock.NewScheduler(clock.Config{Interval: time.Second, ExpiryBuffer: 64, Workers: 1})
	t.Cleanup(func() { _ = sched.Close(context.Background()) })
	settler := rating.NewSettler(repo, nil, nil)
	svc, err := session.New(session.Options{Repo: repo, Scheduler: sched, Settler: settler})
	if err != nil { t.Fatalf("session.New: %v", err) }
	ledger, err := invite.New(invite.Options{Repo: repo, Starter: svc})
	if err != nil { t.Fatalf("invite.New: %v", err) }
	return NewRouter(Deps{Games: svc, Invites: ledger, Players: settler})
}

func call(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil { t.Fatalf("encode: %v", err) }
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil { t.Fatalf("decode %q: %v", rec.Body.String(), err) }
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) chessdto.DomainError {
	t.Helper()
	if rec.Code != status { t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body.String()) }
	body := decode[chessdto.ErrorResponse](t, rec)
	if body.Error.Code != code { t.Fatalf("code = %q, want %q", body.Error.Code, code) }
	return body.Error
}

func TestHealthAndIdentity(t *testing.T) {
	api := newAPI(t)
	if rec := call(t, api, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK { t.Fatalf("healthz = %d", rec.Code) }
	if rec := call(t, api, http.MethodGet, "/healthz", "", nil); rec.Header().Get("X-Request-Id") == "" { t.Fatalf("missing request id") }
	expectError(t, call(t, api, http.MethodPost, "/api/games", "", chessdto.CreateGameRequest{Discipline: "BLITZ"}), http.StatusUnauthorized, "unauthenticated")
	e := expectError(t, call(t, api, http.MethodGet, "/api/games/nope", "", nil), http.StatusNotFound, "game_not_found")
	if e.Message != "No game with that id exists." { t.Fatalf("message = %q", e.Message) }
}

func TestGameLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)
	rec := call(t, api, http.MethodPost, "/api/games", "alice", chessdto.CreateGameRequest{Discipline: "blitz"})
	if rec.Code != http.StatusCreated { t.Fatalf("create = %d %s", rec.Code, rec.Body.String()) }
	g := decode[chessdto.Game](t, rec)
	if g.Status != "WAITING" || g.WhiteID != "alice" || g.WhiteMs != 180000 { t.Fatalf("created = %+v", g) }
	base := "/api/games/" + g.ID

	waiting := decode[chessdto.ListResponse[*chessdto.Game]](t, call(t, api, http.MethodGet, "/api/games?filter=waiting", "", nil))
	if len(waiting.Items) != 1 { t.Fatalf("waiting = %d", len(waiting.Items)) }
	expectError(t, call(t, api, http.MethodGet, "/api/games?filter=bogus", "", nil), http.StatusBadRequest, "invalid_filter")

	rec = call(t, api, http.MethodPost, base+"/join", "bob", nil)
	if g = decode[chessdto.Game](t, rec); g.Status != "ACTIVE" || g.BlackID != "bob" || g.SideToMove != "white" { t.Fatalf("joined = %+v", g) }

	rec = call(t, api, http.MethodPost, base+"/move", "alice", chessdto.MoveRequest{From: "e2", To: "e4"})
	if rec.Code != http.StatusOK { t.Fatalf("move = %d %s", rec.Code, rec.Body.String()) }
	mr := decode[chessdto.MoveResponse](t, rec)
	if mr.Move.SAN != "e4" || mr.Game.SideToMove != "black" || mr.Finished { t.Fatalf("move response = %+v", mr) }

	expectError(t, call(t, api, http.MethodPost, base+"/move", "alice", chessdto.MoveRequest{From: "d2", To: "d4"}), http.StatusConflict, "not_your_turn")
	expectError(t, call(t, api, http.MethodPost, base+"/move", "bob", chessdto.MoveRequest{From: "e7", To: "e4"}), http.StatusUnprocessableEntity, "illegal_move")
	expectError(t, call(t, api, http.MethodPost, base+"/move", "bob", chessdto.MoveRequest{From: "z9", To: "e5"}), http.StatusBadRequest, "invalid_square")
	expectError(t, call(t, api, http.MethodPost, base+"/move", "bob", map[string]string{"form": "e7"}), http.StatusBadRequest, "invalid_request")

	moves := decode[chessdto.ListResponse[chessdto.Move]](t, call(t, api, http.MethodGet, base+"/moves", "", nil))
	if len(moves.Items) != 1 || moves.Items[0].UCI != "e2e4" { t.Fatalf("moves = %+v", moves.Items) }

	legal := decode[chessdto.LegalMoves](t, call(t, api, http.MethodGet, base+"/legal-moves?square=e7", "", nil))
	if !strings.Contains(strings.Join(legal.Moves, ","), "e7e5") || len(legal.Moves) != 2 { t.Fatalf("legal = %+v", legal) }

	left := decode[chessdto.TimeLeft](t, call(t, api, http.MethodGet, base+"/time-left", "", nil))
	if left.WhiteMs <= 0 || left.BlackMs <= 0 { t.Fatalf("time left = %+v", left) }

	rec = call(t, api, http.MethodGet, base+"/board.png?size=256&flip=true", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" { t.Fatalf("board = %d %s", rec.Code, rec.Header().Get("Content-Type")) }
	expectError(t, call(t, api, http.MethodGet, base+"/board.png?flip=maybe", "", nil), http.StatusBadRequest, "invalid_request")

	rec = call(t, api, http.MethodPost, base+"/resign", "bob", nil)
	if g = decode[chessdto.Game](t, rec); g.Status != "WHITE_WON" || g.Method != "resignation" || g.SideToMove != "" { t.Fatalf("resigned = %+v", g) }
	expectError(t, call(t, api, http.MethodPost, base+"/draw-offer", "alice", nil), http.StatusConflict, "game_finished")

	rec = call(t, api, http.MethodGet, base+"/pgn", "", nil)
	pgn := rec.Body.String()
	if !strings.Contains(pgn, "1. e4") || !strings.Contains(pgn, `[Result "1-0"]`) { t.Fatalf("pgn = %s", pgn) }

	history := decode[chessdto.ListResponse[*chessdto.Game]](t, call(t, api, http.MethodGet, "/api/games?filter=history", "bob", nil))
	if len(history.Items) != 1 { t.Fatalf("history = %d", len(history.Items)) }
}

func TestInvitesOverHTTP(t *testing.T) {
	api := newAPI(t)
	rec := call(t, api, http.MethodPost, "/api/invites", "ann", chessdto.SendInviteRequest{ReceiverID: "bo", Discipline: "RAPID"})
	if rec.Code != http.StatusCreated { t.Fatalf("send = %d %s", rec.Code, rec.Body.String()) }
	inv := decode[chessdto.Invite](t, rec)
	expectError(t, call(t, api, http.MethodPost, "/api/invites", "ann", chessdto.SendInviteRequest{ReceiverID: "bo", Discipline: "RAPID"}), http.StatusConflict, "invite_already_pending")
	expectError(t, call(t, api, http.MethodGet, "/api/invites/"+inv.ID, "eve", nil), http.StatusNotFound, "invite_not_found")

	received := decode[chessdto.ListResponse[*chessdto.Invite]](t, call(t, api, http.MethodGet, "/api/invites?direction=received&status=pending", "bo", nil))
	if len(received.Items) != 1 || received.Items[0].ID != inv.ID { t.Fatalf("received = %+v", received.Items) }

	expectError(t, call(t, api, http.MethodPost, "/api/invites/"+inv.ID+"/accept", "ann", nil), http.StatusConflict, "not_invite_receiver")
	rec = call(t, api, http.MethodPost, "/api/invites/"+inv.ID+"/accept", "bo", nil)
	if rec.Code != http.StatusOK { t.Fatalf("accept = %d %s", rec.Code, rec.Body.String()) }
	acc := decode[chessdto.AcceptInviteResponse](t, rec)
	if acc.Invite.Status != "ACCEPTED" || acc.Game.Status != "ACTIVE" || acc.Game.WhiteID != "ann" || acc.Game.WhiteMs != 600000 { t.Fatalf("accepted = %+v / %+v", acc.Invite, acc.Game) }
	expectError(t, call(t, api, http.MethodPost, "/api/invites/"+inv.ID+"/cancel", "ann", nil), http.StatusConflict, "invite_not_pending")

	rec = call(t, api, http.MethodPost, "/api/invites", "cy", chessdto.SendInviteRequest{ReceiverID: "bo", Discipline: "BLITZ"})
	second := decode[chessdto.Invite](t, rec)
	if inv2 := decode[chessdto.Invite](t, call(t, api, http.MethodPost, "/api/invites/"+second.ID+"/reject", "bo", nil)); inv2.Status != "REJECTED" { t.Fatalf("rejected = %+v", inv2) }
}

func TestPlayersOverHTTP(t *testing.T) {
	api := newAPI(t)
	rec := call(t, api, http.MethodPost, "/api/players", "u1", chessdto.RegisterPlayerRequest{Handle: "magnus"})
	if rec.Code != http.StatusCreated { t.Fatalf("register = %d %s", rec.Code, rec.Body.String()) }
	if p := decode[chessdto.Player](t, rec); p.ID != "u1" || p.Ratings["BLITZ"] != 1200 { t.Fatalf("player = %+v", p) }
	expectError(t, call(t, api, http.MethodPost, "/api/players", "", chessdto.RegisterPlayerRequest{ID: "u2", Handle: "magnus"}), http.StatusConflict, "handle_taken")
	expectError(t, call(t, api, http.MethodGet, "/api/players/ghost", "", nil), http.StatusNotFound, "player_not_found")

	call(t, api, http.MethodPost, "/api/players", "", chessdto.RegisterPlayerRequest{ID: "u3", Handle: "hikaru"})
	top := decode[chessdto.ListResponse[chessdto.LeaderboardEntry]](t, call(t, api, http.MethodGet, "/api/players/top?discipline=classical&limit=5", "", nil))
	if len(top.Items) != 2 || top.Items[0].Rank != 1 || top.Items[0].Rating != 1200 { t.Fatalf("top = %+v", top.Items) }
	expectError(t, call(t, api, http.MethodGet, "/api/players/top?discipline=bullet", "", nil), http.StatusBadRequest, "invalid_discipline")
}
