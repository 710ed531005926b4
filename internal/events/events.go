package events

import (
	"context"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

type Type string

const (
	GameCreated    Type = "game.created"
	GameStarted    Type = "game.started"
	MovePlayed     Type = "game.move"
	DrawOffered    Type = "game.draw_offered"
	DrawDeclined   Type = "game.draw_declined"
	GamePaused     Type = "game.paused"
	GameResumed    Type = "game.resumed"
	GameFinished   Type = "game.finished"
	InviteSent     Type = "invite.sent"
	InviteResolved Type = "invite.resolved"
	RatingsSettled Type = "rating.settled"
	ChatPosted     Type = "game.chat"
)

// Event is a state change observers may react to. Game and Invite are
// snapshots taken after the change was persisted.
type Event struct {
	Type   Type           `json:"type"`
	GameID string         `json:"game_id,omitempty"`
	Game   *domain.Game   `json:"game,omitempty"`
	Move   *domain.Move   `json:"move,omitempty"`
	Invite *domain.Invite `json:"invite,omitempty"`
	Actor  string         `json:"actor,omitempty"`
	Text   string         `json:"text,omitempty"`
	At     time.Time      `json:"at"`
}

// Sink receives published events. Implementations must not block the caller
// for long and must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }

// Nop discards every event.
func Nop() Sink { return nop{} }

type multi []Sink

// Multi fans an event out to every sink. A failing sink is logged and does
// not stop delivery to the rest.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			obslog.L().Warn("event_publish_failed", zap.String("type", string(ev.Type)), zap.String("game_id", ev.GameID), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Recorder keeps published events in memory.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder { return &Recorder{ch: make(chan Event, size)} }

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	select {
	case r.ch <- ev:
	default:
	}
	return nil
}

// C returns the recorded events in publish order.
func (r *Recorder) C() <-chan Event { return r.ch }
