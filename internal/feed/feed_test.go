package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fakeGames struct {
	mu    sync.Mutex
	game  *domain.Game
	moves []session.MoveRequest
	sink  events.Sink
}

func (f *fakeGames) GetGame(_ context.Context, id string) (*domain.Game, error) {
	if id != f.game.ID {
		return nil, domain.ErrGameNotFound
	}
	return f.game, nil
}

func (f *fakeGames) ApplyMove(ctx context.Context, id, player string, req session.MoveRequest) (*session.MoveResult, error) {
	if player != f.game.WhiteID {
		return nil, domain.ErrNotYourTurn
	}
	f.mu.Lock()
	f.moves = append(f.moves, req)
	f.mu.Unlock()
	mv := domain.Move{GameID: id, From: req.From, To: req.To, UCI: req.From + req.To}
	_ = f.sink.Publish(ctx, events.Event{Type: events.MovePlayed, GameID: id, Move: &mv})
	return &session.MoveResult{Game: f.game, Move: mv}, nil
}

type frame struct {
	Type string       `json:"type"`
	Code string       `json:"code"`
	Text string       `json:"text"`
	Move *domain.Move `json:"move"`
	Game *domain.Game `json:"game"`
}

func startFeed(t *testing.T) (*httptest.Server, *fakeGames) {
	t.Helper()
	hub := NewHub(nil)
	games := &fakeGames{game: &domain.Game{ID: "g1", WhiteID: "w", BlackID: "b", Status: domain.StatusActive}, sink: hub}
	r := chi.NewRouter()
	r.Get("/ws/games/{id}", NewHandler(hub, games, msgcat.MustDefault(), nil).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, games
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil { t.Fatalf("dial %s: %v", path, err) }
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil { t.Fatalf("read: %v", err) }
	return f
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil { t.Fatalf("write: %v", err) }
}

func TestSocketStreamsMovesAndChat(t *testing.T) {
	srv, games := startFeed(t)
	player := dial(t, srv, "/ws/games/g1?user=w")
	viewer := dial(t, srv, "/ws/games/g1")

	if f := readFrame(t, player); f.Type != string(Snapshot) || f.Game == nil || f.Game.ID != "g1" { t.Fatalf("player snapshot = %+v", f) }
	if f := readFrame(t, viewer); f.Type != string(Snapshot) { t.Fatalf("viewer snapshot = %+v", f) }

	send(t, player, map[string]string{"type": "move", "from": "e2", "to": "e4"})
	for _, c := range []*websocket.Conn{player, viewer} {
		f := readFrame(t, c)
		if f.Type != string(events.MovePlayed) || f.Move == nil || f.Move.UCI != "e2e4" { t.Fatalf("move frame = %+v", f) }
	}
	games.mu.Lock()
	if len(games.moves) != 1 { t.Fatalf("moves = %d", len(games.moves)) }
	games.mu.Unlock()

	send(t, player, map[string]string{"type": "chat", "text": "  good luck  "})
	if f := readFrame(t, viewer); f.Type != string(events.ChatPosted) || f.Text != "good luck" { t.Fatalf("chat frame = %+v", f) }
}

func TestSocketRejectsSpectatorActions(t *testing.T) {
	srv, _ := startFeed(t)
	viewer := dial(t, srv, "/ws/games/g1")
	readFrame(t, viewer)

	send(t, viewer, map[string]string{"type": "move", "from": "e2", "to": "e4"})
	if f := readFrame(t, viewer); f.Type != "error" || f.Code != "unauthenticated" { t.Fatalf("spectator move = %+v", f) }

	stranger := dial(t, srv, "/ws/games/g1?user=zed")
	readFrame(t, stranger)
	send(t, stranger, map[string]string{"type": "chat", "text": "hi"})
	if f := readFrame(t, stranger); f.Code != "not_participant" { t.Fatalf("stranger chat = %+v", f) }
	send(t, stranger, map[string]string{"type": "dance"})
	if f := readFrame(t, stranger); f.Code != "invalid_frame" { t.Fatalf("unknown frame = %+v", f) }

	black := dial(t, srv, "/ws/games/g1?user=b")
	readFrame(t, black)
	send(t, black, map[string]string{"type": "move", "from": "e7", "to": "e5"})
	if f := readFrame(t, black); f.Code != "not_your_turn" { t.Fatalf("out of turn = %+v", f) }
}

func TestSocketUnknownGame(t *testing.T) {
	srv, _ := startFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/games/nope", nil)
	if err == nil { t.Fatalf("dial unknown game succeeded") }
	if resp == nil || resp.StatusCode != 404 { t.Fatalf("response = %+v", resp) }
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel, _ := hub.Subscribe(context.Background(), "g")
	_ = hub.Publish(context.Background(), events.Event{Type: events.GamePaused, GameID: "g"})
	if ev := <-ch; ev.Type != events.GamePaused { t.Fatalf("event = %+v", ev) }
	cancel()
	cancel()
	if _, ok := <-ch; ok { t.Fatalf("channel still open") }
	if err := hub.Publish(context.Background(), events.Event{Type: events.GameResumed, GameID: "g"}); err != nil { t.Fatalf("publish after cancel: %v", err) }
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := NewRedis(rdb, nil)
	ctx := context.Background()

	ch, cancel, err := b.Subscribe(ctx, "g9")
	if err != nil { t.Fatalf("Subscribe: %v", err) }
	defer cancel()

	g := &domain.Game{ID: "g9", WhiteID: "w", Status: domain.StatusActive}
	if err := b.Publish(ctx, events.Event{Type: events.GameStarted, GameID: "g9", Game: g}); err != nil { t.Fatalf("Publish: %v", err) }
	if err := b.Publish(ctx, events.Event{Type: events.InviteSent}); err != nil { t.Fatalf("gameless publish: %v", err) }

	select {
	case ev := <-ch:
		if ev.Type != events.GameStarted || ev.Game == nil || ev.Game.WhiteID != "w" { t.Fatalf("event = %+v", ev) }
	case <-time.After(5 * time.Second):
		t.Fatalf("no event received")
	}
}
