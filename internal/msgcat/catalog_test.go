package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbedded(t *testing.T) {
	c, err := New("")
	if err != nil { t.Fatalf("New: %v", err) }
	out, err := c.Render("notify.invite_sent", map[string]any{
		"Sender": "ann", "Receiver": "bo", "Discipline": "BLITZ", "TimeControl": 180, "Increment": 2,
	})
	if err != nil { t.Fatalf("Render: %v", err) }
	if out != "ann challenged bo to a BLITZ game (180+2)." { t.Fatalf("rendered %q", out) }

	if _, err := c.Render("notify.invite_sent", map[string]any{"Sender": "ann"}); err == nil { t.Fatalf("missing field must fail") }
	if _, err := c.Render("nope", nil); err == nil { t.Fatalf("unknown key must fail") }
}

func TestErrorMessageFallback(t *testing.T) {
	c := MustDefault()
	if msg := c.ErrorMessage("not_your_turn", "x"); !strings.Contains(msg, "not your turn") { t.Fatalf("message = %q", msg) }
	if msg := c.ErrorMessage("made_up", "fallback"); msg != "fallback" { t.Fatalf("fallback = %q", msg) }
	var nilCat *Catalog
	if msg := nilCat.ErrorMessage("not_your_turn", "fb"); msg != "fb" { t.Fatalf("nil catalog = %q", msg) }
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("errors:\n  not_your_turn: \"Wait.\"\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
	c, err := New(dir)
	if err != nil { t.Fatalf("New: %v", err) }
	if msg := c.ErrorMessage("not_your_turn", ""); msg != "Wait." { t.Fatalf("override = %q", msg) }

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("errors:\n  not_your_turn: \"Again.\"\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
	if _, err := New(dir); err == nil { t.Fatalf("duplicate override keys must fail") }
}
