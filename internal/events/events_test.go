package events

import (
	"context"
	"errors"
	"testing"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestMultiDeliversPastFailures(t *testing.T) {
	rec := NewRecorder(4)
	sink := Multi(failing{}, nil, rec)
	err := sink.Publish(context.Background(), Event{Type: MovePlayed, GameID: "g1"})
	if err == nil { t.Fatalf("expected first error to surface") }
	select {
	case ev := <-rec.C():
		if ev.GameID != "g1" { t.Fatalf("game id = %q", ev.GameID) }
	default:
		t.Fatalf("recorder missed the event")
	}
}

func TestNopAcceptsEverything(t *testing.T) {
	if err := Nop().Publish(context.Background(), Event{Type: GameFinished}); err != nil { t.Fatalf("Nop: %v", err) }
}
