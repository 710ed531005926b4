// Package notify delivers invite and game-result notifications to an external
// webhook.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/storage"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Publish when the delivery queue is saturated.
var ErrQueueFull = errors.New("notify: queue full")

// Notification is the webhook body.
type Notification struct {
	Kind     string    `json:"kind"`
	Text     string    `json:"text"`
	GameID   string    `json:"game_id,omitempty"`
	InviteID string    `json:"invite_id,omitempty"`
	Players  []string  `json:"players"`
	At       time.Time `json:"at"`
}

type poster interface {
	Post(ctx context.Context, v any) error
}

// Notifier is an events.Sink. Publish only renders and enqueues; Run delivers.
type Notifier struct {
	client poster
	cat    *msgcat.Catalog
	log    *zap.Logger
	queue  chan Notification
}

func New(client *Client, cat *msgcat.Catalog, logger *zap.Logger, queueSize int) *Notifier {
	if logger == nil {
		logger = obslog.L()
	}
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Notifier{client: client, cat: cat, log: logger, queue: make(chan Notification, queueSize)}
}

func (n *Notifier) Publish(_ context.Context, ev events.Event) error {
	note, ok := n.build(ev)
	if !ok {
		return nil
	}
	select {
	case n.queue <- note:
		return nil
	default:
		n.log.Warn("notify_queue_full", zap.String("kind", note.Kind))
		return ErrQueueFull
	}
}

// Run delivers queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case note := <-n.queue:
			if err := n.client.Post(ctx, note); err != nil {
				n.log.Warn("notify_deliver_error", zap.String("kind", note.Kind), zap.String("game_id", note.GameID), zap.String("invite_id", note.InviteID), zap.Error(err))
				continue
			}
			n.log.Debug("notify_delivered", zap.String("kind", note.Kind))
		}
	}
}

func (n *Notifier) build(ev events.Event) (Notification, bool) {
	note := Notification{GameID: ev.GameID, At: ev.At}
	var data map[string]any
	switch {
	case ev.Type == events.InviteSent && ev.Invite != nil:
		note.Kind = "invite_sent"
		data = inviteData(ev.Invite)
	case ev.Type == events.InviteResolved && ev.Invite != nil:
		switch ev.Invite.Status {
		case domain.InviteAccepted:
			note.Kind = "invite_accepted"
		case domain.InviteRejected:
			note.Kind = "invite_rejected"
		case domain.InviteCancelled:
			note.Kind = "invite_cancelled"
		case domain.InviteExpired:
			note.Kind = "invite_expired"
		default:
			return note, false
		}
		data = inviteData(ev.Invite)
	case ev.Type == events.GameFinished && ev.Game != nil:
		g := ev.Game
		note.Kind = "game_finished"
		if g.Outcome == domain.OutcomeAborted {
			note.Kind = "game_aborted"
		}
		note.GameID = g.ID
		note.Players = seated(g.WhiteID, g.BlackID)
		data = map[string]any{
			"GameID": g.ID,
			"Result": storage.PGNResult(g.Outcome),
			"Method": g.Method,
			"White":  orDash(g.WhiteID),
			"Black":  orDash(g.BlackID),
		}
	default:
		return note, false
	}
	if ev.Invite != nil {
		note.InviteID = ev.Invite.ID
		note.Players = seated(ev.Invite.SenderID, ev.Invite.ReceiverID)
		if note.GameID == "" {
			note.GameID = ev.Invite.GameID
		}
	}
	text, err := n.cat.Render("notify."+note.Kind, data)
	if err != nil {
		n.log.Warn("notify_render_error", zap.String("kind", note.Kind), zap.Error(err))
		text = note.Kind
	}
	note.Text = text
	return note, true
}

func inviteData(inv *domain.Invite) map[string]any {
	return map[string]any{
		"Sender":      inv.SenderID,
		"Receiver":    inv.ReceiverID,
		"Discipline":  string(inv.Discipline),
		"TimeControl": inv.TimeControl,
		"Increment":   inv.Increment,
		"GameID":      inv.GameID,
	}
}

func seated(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
