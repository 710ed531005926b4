package feed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Snapshot is the first frame a viewer receives: the game as it is now.
const Snapshot events.Type = "game.snapshot"

const (
	maxChatRunes = 500
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Games is what the socket needs from the session service.
type Games interface {
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	ApplyMove(ctx context.Context, id, player string, req session.MoveRequest) (*session.MoveResult, error)
}

type inbound struct {
	Type      string `json:"type"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Text      string `json:"text,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler upgrades GET /ws/games/{id}. Every viewer receives the game's
// events; participants may also send move and chat frames. The player id
// comes from X-User-Id or the user query parameter.
type Handler struct {
	broker Broker
	games  Games
	cat    *msgcat.Catalog
	log    *zap.Logger
	now    func() time.Time
}

func NewHandler(broker Broker, games Games, cat *msgcat.Catalog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = obslog.L()
	}
	return &Handler{broker: broker, games: games, cat: cat, log: logger, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	player := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if player == "" {
		player = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	g, err := h.games.GetGame(r.Context(), gameID)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.KindOf(err) == domain.KindNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover})
	if err != nil {
		h.log.Warn("feed_accept_error", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub, unsubscribe, err := h.broker.Subscribe(ctx, gameID)
	if err != nil {
		h.log.Warn("feed_subscribe_error", zap.String("game_id", gameID), zap.Error(err))
		conn.Close(websocket.StatusTryAgainLater, "subscribe failed")
		return
	}
	defer unsubscribe()

	h.log.Info("feed_join", zap.String("game_id", gameID), zap.String("player_id", player))
	replies := make(chan any, 8)
	go h.writeLoop(ctx, cancel, conn, sub, replies, events.Event{Type: Snapshot, GameID: gameID, Game: g, At: h.now()})

	for {
		var in inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.log.Debug("feed_read_end", zap.String("game_id", gameID), zap.Error(err))
			}
			break
		}
		if reply := h.handle(ctx, gameID, player, in); reply != nil {
			select {
			case replies <- reply:
			case <-ctx.Done():
			}
		}
	}
	h.log.Info("feed_leave", zap.String("game_id", gameID), zap.String("player_id", player))
	conn.Close(websocket.StatusNormalClosure, "")
}

// handle processes one inbound frame and returns an error frame, or nil when
// the result reaches the viewer through the event stream.
func (h *Handler) handle(ctx context.Context, gameID, player string, in inbound) any {
	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case "move":
		if player == "" {
			return h.errorFrame("unauthenticated", "a player id is required")
		}
		if _, err := h.games.ApplyMove(ctx, gameID, player, session.MoveRequest{From: in.From, To: in.To, Promotion: in.Promotion}); err != nil {
			return h.errorFrame(domain.CodeOf(err), err.Error())
		}
		return nil
	case "chat":
		if player == "" {
			return h.errorFrame("unauthenticated", "a player id is required")
		}
		g, err := h.games.GetGame(ctx, gameID)
		if err != nil {
			return h.errorFrame(domain.CodeOf(err), err.Error())
		}
		if g.SideOf(player) == "" {
			return h.errorFrame(domain.ErrNotParticipant.Code, domain.ErrNotParticipant.Message)
		}
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil
		}
		if utf8.RuneCountInString(text) > maxChatRunes {
			text = string([]rune(text)[:maxChatRunes])
		}
		if err := h.broker.Publish(ctx, events.Event{Type: events.ChatPosted, GameID: gameID, Actor: player, Text: text, At: h.now()}); err != nil {
			h.log.Warn("feed_chat_error", zap.String("game_id", gameID), zap.Error(err))
			return h.errorFrame("internal", "chat message was not delivered")
		}
		return nil
	default:
		return h.errorFrame("invalid_frame", "unknown frame type: "+in.Type)
	}
}

func (h *Handler) errorFrame(code, fallback string) errorFrame {
	return errorFrame{Type: "error", Code: code, Message: h.cat.ErrorMessage(code, fallback)}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub <-chan events.Event, replies <-chan any, first events.Event) {
	defer cancel()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	if err := h.write(ctx, conn, first); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
		case reply := <-replies:
			if err := h.write(ctx, conn, reply); err != nil {
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}
