package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/storage"
)

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type harness struct {
	svc   *Service
	repo  storage.Repository
	sched *clock.Scheduler
	ft    *fakeTime
	rec   *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ft := &fakeTime{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	repo := storage.NewMemoryRepository()
	return newHarnessWith(t, repo, ft)
}

func newHarnessWith(t *testing.T, repo storage.Repository, ft *fakeTime) *harness {
	t.Helper()
	sched := clock.NewScheduler(clock.Config{Interval: time.Second, ExpiryBuffer: 64, Workers: 2, Now: ft.Now})
	t.Cleanup(func() { _ = sched.Close(context.Background()) })
	settler := rating.NewSettler(repo, nil, nil)
	settler.SetNow(ft.Now)
	rec := events.NewRecorder(256)
	svc, err := New(Options{Repo: repo, Scheduler: sched, Settler: settler, Sink: rec, Now: ft.Now})
	if err != nil { t.Fatalf("New: %v", err) }
	return &harness{svc: svc, repo: repo, sched: sched, ft: ft, rec: rec}
}

// started creates a Blitz game for alice (white) joined by bob (black).
func (h *harness) started(t *testing.T) *domain.Game {
	t.Helper()
	ctx := context.Background()
	g, err := h.svc.CreateGame(ctx, CreateRequest{CreatorID: "alice", Discipline: domain.Blitz})
	if err != nil { t.Fatalf("CreateGame: %v", err) }
	g, err = h.svc.JoinGame(ctx, g.ID, "bob")
	if err != nil { t.Fatalf("JoinGame: %v", err) }
	return g
}

func (h *harness) move(t *testing.T, id, player, uci string) *MoveResult {
	t.Helper()
	res, err := h.svc.ApplyMove(context.Background(), id, player, MoveRequest{From: uci[0:2], To: uci[2:4], Promotion: uci[4:]})
	if err != nil { t.Fatalf("move %s by %s: %v", uci, player, err) }
	return res
}

func (h *harness) nextExpiry(t *testing.T) clock.Expiry {
	t.Helper()
	select {
	case ev := <-h.sched.Expired():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no expiry emitted")
		return clock.Expiry{}
	}
}

func TestBlitzDefaultsAndIncrement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g, err := h.svc.CreateGame(ctx, CreateRequest{CreatorID: "alice", Discipline: domain.Blitz})
	if err != nil { t.Fatalf("CreateGame: %v", err) }
	if g.WhiteMs != 180000 || g.BlackMs != 180000 || g.Increment != 2 { t.Fatalf("defaults = %d/%d +%d", g.WhiteMs, g.BlackMs, g.Increment) }
	if g.Status != domain.StatusWaiting || g.Outcome != domain.OutcomeNone { t.Fatalf("new game state %s/%s", g.Status, g.Outcome) }

	g, err = h.svc.JoinGame(ctx, g.ID, "bob")
	if err != nil { t.Fatalf("JoinGame: %v", err) }
	if g.Status != domain.StatusActive || g.BlackID != "bob" || g.StartedAt.IsZero() { t.Fatalf("joined game = %+v", g) }

	h.ft.Advance(3 * time.Second)
	res := h.move(t, g.ID, "alice", "e2e4")
	if res.Move.Number != 1 || res.Move.SAN != "e4" { t.Fatalf("move = %+v", res.Move) }
	if res.Move.WhiteMs != 179000 || res.Move.BlackMs != 180000 { t.Fatalf("times after move = %d/%d", res.Move.WhiteMs, res.Move.BlackMs) }
	if len(res.Game.Moves) != 1 { t.Fatalf("move log length %d", len(res.Game.Moves)) }

	h.ft.Advance(4 * time.Second)
	res = h.move(t, g.ID, "bob", "e7e5")
	if res.Move.Number != 2 || res.Move.WhiteMs != 179000 || res.Move.BlackMs != 178000 { t.Fatalf("second move = %+v", res.Move) }
}

func TestExplicitTimeControl(t *testing.T) {
	h := newHarness(t)
	zero := 0
	g, err := h.svc.CreateGame(context.Background(), CreateRequest{CreatorID: "a", Discipline: domain.Rapid, TimeControl: 300, Increment: &zero})
	if err != nil { t.Fatalf("CreateGame: %v", err) }
	if g.WhiteMs != 300000 || g.Increment != 0 || g.TimeControl != 300 { t.Fatalf("time control = %+v", g) }
	if _, err := h.svc.CreateGame(context.Background(), CreateRequest{CreatorID: "a", Discipline: "BULLET"}); domain.KindOf(err) != domain.KindValidation { t.Fatalf("unknown discipline: %v", err) }
}

func TestTimeForfeit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)

	h.ft.Advance(181 * time.Second)
	if n := h.sched.Sweep(h.ft.Now()); n != 1 { t.Fatalf("sweep fired %d expiries", n) }
	ev := h.nextExpiry(t)
	if ev.Side != domain.White { t.Fatalf("expired side = %s", ev.Side) }

	applied, err := h.svc.HandleExpiry(ctx, ev)
	if err != nil || !applied { t.Fatalf("HandleExpiry = %v, %v", applied, err) }
	got, _ := h.svc.GetGame(ctx, g.ID)
	if got.Status != domain.StatusBlackWon || got.Outcome != domain.OutcomeBlackWin || got.Method != domain.MethodTime { t.Fatalf("after forfeit %s/%s/%s", got.Status, got.Outcome, got.Method) }
	if got.WhiteMs != 0 || got.FinishedAt.IsZero() { t.Fatalf("white ms %d finished %v", got.WhiteMs, got.FinishedAt) }
	if h.svc.Registry().Len() != 0 || h.sched.Running() != 0 { t.Fatalf("clock still registered") }

	_, err = h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "e2", To: "e4"})
	if !errors.Is(err, domain.ErrGameFinished) { t.Fatalf("move after forfeit: %v", err) }

	bob, _ := h.repo.GetPlayer(ctx, "bob")
	if bob == nil || bob.Won != 1 || bob.Rating(domain.Blitz) != 1216 { t.Fatalf("bob after forfeit = %+v", bob) }

	if again, _ := h.svc.HandleExpiry(ctx, ev); again { t.Fatalf("second expiry must be a no-op") }
}

func TestMoveAfterFlagFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)

	h.ft.Advance(180 * time.Second)
	_, err := h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "e2", To: "e4"})
	if !errors.Is(err, domain.ErrTimeExpired) { t.Fatalf("flagged move: %v", err) }
	if domain.KindOf(err) != domain.KindPrecondition { t.Fatalf("kind = %s", domain.KindOf(err)) }

	if _, err := h.svc.Resign(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrTimeExpired) { t.Fatalf("resign after flag: %v", err) }

	applied, err := h.svc.HandleExpiry(ctx, h.nextExpiry(t))
	if err != nil || !applied { t.Fatalf("HandleExpiry = %v, %v", applied, err) }
	got, _ := h.svc.GetGame(ctx, g.ID)
	if got.Status != domain.StatusBlackWon || len(got.Moves) != 0 { t.Fatalf("after race %s moves=%d", got.Status, len(got.Moves)) }
}

func TestMoveAndForfeitRace(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.svc.Run(ctx) }()

	const rounds = 20
	for i := 0; i < rounds; i++ {
		g := h.started(t)
		h.ft.Advance(181 * time.Second)

		var wg sync.WaitGroup
		var moveErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, moveErr = h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "e2", To: "e4"})
		}()
		go func() {
			defer wg.Done()
			h.sched.Sweep(h.ft.Now())
		}()
		wg.Wait()
		if domain.KindOf(moveErr) != domain.KindPrecondition { t.Fatalf("round %d: move err = %v", i, moveErr) }

		deadline := time.Now().Add(2 * time.Second)
		for {
			got, _ := h.svc.GetGame(ctx, g.ID)
			if got.Status.Terminal() {
				if got.Status != domain.StatusBlackWon || len(got.Moves) != 0 { t.Fatalf("round %d: %s moves=%d", i, got.Status, len(got.Moves)) }
				break
			}
			if time.Now().After(deadline) { t.Fatalf("round %d: game never finished", i) }
			time.Sleep(5 * time.Millisecond)
		}
	}
	// settlement runs after the terminal write becomes visible
	deadline := time.Now().Add(2 * time.Second)
	for {
		bob, _ := h.repo.GetPlayer(context.Background(), "bob")
		if bob != nil && bob.Played == rounds {
			if bob.Won != rounds { t.Fatalf("bob won %d of %d", bob.Won, rounds) }
			break
		}
		if time.Now().After(deadline) { t.Fatalf("bob settled %+v, want %d games", bob, rounds) }
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDrawFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)

	if _, err := h.svc.AcceptDraw(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrNoDrawOffer) { t.Fatalf("accept without offer: %v", err) }
	got, err := h.svc.OfferDraw(ctx, g.ID, "alice")
	if err != nil || got.Status != domain.StatusDrawProposed || got.DrawOfferedBy != domain.White { t.Fatalf("OfferDraw = %+v, %v", got, err) }
	if _, err := h.svc.OfferDraw(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrDrawPending) { t.Fatalf("second offer: %v", err) }
	if _, err := h.svc.AcceptDraw(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrOwnDrawOffer) { t.Fatalf("own accept: %v", err) }

	got, err = h.svc.DeclineDraw(ctx, g.ID, "bob")
	if err != nil || got.Status != domain.StatusActive || got.DrawOfferedBy != "" { t.Fatalf("DeclineDraw = %+v, %v", got, err) }

	if _, err := h.svc.OfferDraw(ctx, g.ID, "bob"); err != nil { t.Fatalf("OfferDraw: %v", err) }
	got, err = h.svc.AcceptDraw(ctx, g.ID, "alice")
	if err != nil { t.Fatalf("AcceptDraw: %v", err) }
	if got.Status != domain.StatusDraw || got.Outcome != domain.OutcomeDraw || got.Method != domain.MethodAgreement { t.Fatalf("after accept %s/%s/%s", got.Status, got.Outcome, got.Method) }
	if h.svc.Registry().Len() != 0 { t.Fatalf("clock not detached") }

	for _, id := range []string{"alice", "bob"} {
		p, _ := h.repo.GetPlayer(ctx, id)
		if p.Drawn != 1 || p.Played != 1 || p.Rating(domain.Blitz) != domain.DefaultRating { t.Fatalf("%s after draw = %+v", id, p) }
	}
	if _, err := h.svc.OfferDraw(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrGameFinished) { t.Fatalf("offer after finish: %v", err) }
}

func TestMoveDeclinesPendingOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	if _, err := h.svc.OfferDraw(ctx, g.ID, "bob"); err != nil { t.Fatalf("OfferDraw: %v", err) }
	res := h.move(t, g.ID, "alice", "d2d4")
	if res.Game.Status != domain.StatusActive || res.Game.DrawOfferedBy != "" { t.Fatalf("offer survived a move: %+v", res.Game) }
}

func TestResign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	if _, err := h.svc.Resign(ctx, g.ID, "mallory"); !errors.Is(err, domain.ErrNotParticipant) { t.Fatalf("outsider resign: %v", err) }

	got, err := h.svc.Resign(ctx, g.ID, "bob")
	if err != nil { t.Fatalf("Resign: %v", err) }
	if got.Status != domain.StatusWhiteWon || got.Outcome != domain.OutcomeWhiteWin || got.Method != domain.MethodResignation { t.Fatalf("after resign %s/%s/%s", got.Status, got.Outcome, got.Method) }
	if _, err := h.svc.Resign(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrGameFinished) { t.Fatalf("second resign: %v", err) }

	alice, _ := h.repo.GetPlayer(ctx, "alice")
	if alice.Won != 1 || alice.Rating(domain.Blitz) != 1216 { t.Fatalf("alice = %+v", alice) }
}

func TestResignRequiresActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)

	if _, err := h.svc.Pause(ctx, g.ID, "alice"); err != nil { t.Fatalf("Pause: %v", err) }
	if _, err := h.svc.Resign(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrGameNotActive) { t.Fatalf("resign while paused: %v", err) }
	if _, err := h.svc.Resume(ctx, g.ID, "alice"); err != nil { t.Fatalf("Resume: %v", err) }

	if _, err := h.svc.OfferDraw(ctx, g.ID, "bob"); err != nil { t.Fatalf("OfferDraw: %v", err) }
	if _, err := h.svc.Resign(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrGameNotActive) { t.Fatalf("resign with pending offer: %v", err) }
	got, _ := h.svc.GetGame(ctx, g.ID)
	if got.Status != domain.StatusDrawProposed || got.Outcome != domain.OutcomeNone { t.Fatalf("game changed: %s/%s", got.Status, got.Outcome) }

	if _, err := h.svc.DeclineDraw(ctx, g.ID, "alice"); err != nil { t.Fatalf("DeclineDraw: %v", err) }
	if got, err := h.svc.Resign(ctx, g.ID, "alice"); err != nil || got.Status != domain.StatusBlackWon { t.Fatalf("Resign = %+v, %v", got, err) }
}

func TestPauseFreezesClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	h.ft.Advance(time.Second)
	h.move(t, g.ID, "alice", "e2e4")

	if _, err := h.svc.Resume(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrNotPaused) { t.Fatalf("resume active: %v", err) }
	paused, err := h.svc.Pause(ctx, g.ID, "bob")
	if err != nil || paused.Status != domain.StatusPaused { t.Fatalf("Pause = %+v, %v", paused, err) }

	h.ft.Advance(10 * time.Minute)
	if n := h.sched.Sweep(h.ft.Now()); n != 0 { t.Fatalf("paused clock expired") }
	tl, _ := h.svc.TimeLeft(ctx, g.ID)
	if tl.BlackMs != 180000 || tl.WhiteMs != 181000 { t.Fatalf("time moved while paused: %+v", tl) }
	if _, err := h.svc.ApplyMove(ctx, g.ID, "bob", MoveRequest{From: "e7", To: "e5"}); !errors.Is(err, domain.ErrGameNotActive) { t.Fatalf("move while paused: %v", err) }

	if _, err := h.svc.Resume(ctx, g.ID, "alice"); err != nil { t.Fatalf("Resume: %v", err) }
	h.ft.Advance(2 * time.Second)
	res := h.move(t, g.ID, "bob", "e7e5")
	if res.Move.BlackMs != 180000 { t.Fatalf("black after resume = %d", res.Move.BlackMs) }
}

func TestFoolsMateSettles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	h.move(t, g.ID, "alice", "f2f3")
	h.move(t, g.ID, "bob", "e7e5")
	h.move(t, g.ID, "alice", "g2g4")
	res := h.move(t, g.ID, "bob", "d8h4")
	if !res.Finished || res.Move.SAN != "Qh4#" { t.Fatalf("mate = %+v", res.Move) }
	if res.Game.Status != domain.StatusBlackWon || res.Game.Method != domain.MethodCheckmate || res.Game.FinishedAt.IsZero() { t.Fatalf("after mate %+v", res.Game) }
	if h.svc.Registry().Len() != 0 || h.sched.Running() != 0 { t.Fatalf("clock left running") }

	alice, _ := h.repo.GetPlayer(ctx, "alice")
	bob, _ := h.repo.GetPlayer(ctx, "bob")
	if alice.Rating(domain.Blitz) != 1184 || bob.Rating(domain.Blitz) != 1216 { t.Fatalf("ratings %d/%d", alice.Rating(domain.Blitz), bob.Rating(domain.Blitz)) }
	if alice.Lost != 1 || bob.Won != 1 { t.Fatalf("counters alice=%+v bob=%+v", alice, bob) }

	if _, err := h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "a2", To: "a3"}); !errors.Is(err, domain.ErrGameFinished) { t.Fatalf("move after mate: %v", err) }

	finished := 0
	for {
		select {
		case ev := <-h.rec.C():
			if ev.Type == events.GameFinished { finished++ }
			continue
		default:
		}
		break
	}
	if finished != 1 { t.Fatalf("finished events = %d", finished) }
}

func TestRejectedMovesLeaveNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	before, _ := h.repo.GetGame(ctx, g.ID)

	_, err := h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "e2", To: "e5"})
	if domain.KindOf(err) != domain.KindIllegalMove { t.Fatalf("illegal move err = %v", err) }
	if _, err := h.svc.ApplyMove(ctx, g.ID, "bob", MoveRequest{From: "e7", To: "e5"}); !errors.Is(err, domain.ErrNotYourTurn) { t.Fatalf("wrong turn: %v", err) }
	if _, err := h.svc.ApplyMove(ctx, g.ID, "alice", MoveRequest{From: "z9", To: "e4"}); domain.KindOf(err) != domain.KindValidation { t.Fatalf("bad square: %v", err) }
	if _, err := h.svc.ApplyMove(ctx, g.ID, "carol", MoveRequest{From: "e2", To: "e4"}); !errors.Is(err, domain.ErrNotParticipant) { t.Fatalf("outsider: %v", err) }
	if _, err := h.svc.ApplyMove(ctx, "missing", "alice", MoveRequest{From: "e2", To: "e4"}); !errors.Is(err, domain.ErrGameNotFound) { t.Fatalf("missing game: %v", err) }

	after, _ := h.repo.GetGame(ctx, g.ID)
	if after.Version != before.Version || len(after.Moves) != 0 || after.CurrentFEN != before.CurrentFEN { t.Fatalf("state changed by rejected moves") }
	tl, _ := h.svc.TimeLeft(ctx, g.ID)
	if tl.WhiteMs != 180000 || tl.BlackMs != 180000 { t.Fatalf("clock changed: %+v", tl) }
}

func TestSeatingRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, _ := h.svc.CreateGame(ctx, CreateRequest{CreatorID: "alice", Discipline: domain.Rapid, OpponentID: "carol", Color: ColorBlack})
	if g.BlackID != "alice" || g.WhiteID != "" { t.Fatalf("creator seat = %+v", g) }
	if _, err := h.svc.JoinGame(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrAlreadySeated) { t.Fatalf("self join: %v", err) }
	if _, err := h.svc.JoinGame(ctx, g.ID, "bob"); !errors.Is(err, domain.ErrSeatReserved) { t.Fatalf("reserved: %v", err) }
	joined, err := h.svc.JoinGame(ctx, g.ID, "carol")
	if err != nil || joined.WhiteID != "carol" { t.Fatalf("JoinGame = %+v, %v", joined, err) }
	if _, err := h.svc.JoinGame(ctx, g.ID, "dave"); !errors.Is(err, domain.ErrGameNotWaiting) { t.Fatalf("join active: %v", err) }
	h.move(t, g.ID, "carol", "e2e4")

	w, _ := h.svc.CreateGame(ctx, CreateRequest{CreatorID: "alice", Discipline: domain.Blitz})
	if _, err := h.svc.Abort(ctx, w.ID, "bob"); !errors.Is(err, domain.ErrNotCreator) { t.Fatalf("outsider abort: %v", err) }
	aborted, err := h.svc.Abort(ctx, w.ID, "alice")
	if err != nil || aborted.Status != domain.StatusAborted || aborted.Outcome != domain.OutcomeAborted { t.Fatalf("Abort = %+v, %v", aborted, err) }
	if _, err := h.svc.JoinGame(ctx, w.ID, "bob"); !errors.Is(err, domain.ErrGameFinished) { t.Fatalf("join aborted: %v", err) }
	if _, err := h.svc.Abort(ctx, g.ID, "alice"); !errors.Is(err, domain.ErrGameNotWaiting) { t.Fatalf("abort active: %v", err) }
}

func TestListGamesFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	active := h.started(t)
	waiting, _ := h.svc.CreateGame(ctx, CreateRequest{CreatorID: "carol", Discipline: domain.Classical})
	done := h.started(t)
	if _, err := h.svc.Resign(ctx, done.ID, "alice"); err != nil { t.Fatalf("Resign: %v", err) }

	check := func(q ListQuery, want ...string) {
		t.Helper()
		games, err := h.svc.ListGames(ctx, q)
		if err != nil { t.Fatalf("ListGames(%+v): %v", q, err) }
		got := map[string]bool{}
		for _, g := range games {
			got[g.ID] = true
		}
		if len(games) != len(want) { t.Fatalf("ListGames(%+v) returned %d games, want %d", q, len(games), len(want)) }
		for _, id := range want {
			if !got[id] { t.Fatalf("ListGames(%+v) missing %s", q, id) }
		}
	}
	check(ListQuery{Filter: ListAll}, active.ID, waiting.ID, done.ID)
	check(ListQuery{Filter: ListWaiting}, waiting.ID)
	check(ListQuery{Filter: ListActive, PlayerID: "bob"}, active.ID)
	check(ListQuery{Filter: ListHistory, PlayerID: "alice"}, done.ID)
	if _, err := h.svc.ListGames(ctx, ListQuery{Filter: "weird"}); domain.KindOf(err) != domain.KindValidation { t.Fatalf("bad filter: %v", err) }
}

func TestLegalMovesAndMoves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.started(t)
	moves, err := h.svc.LegalMoves(ctx, g.ID, "g1")
	if err != nil || len(moves) != 2 { t.Fatalf("LegalMoves(g1) = %v, %v", moves, err) }
	if _, err := h.svc.LegalMoves(ctx, g.ID, "k9"); domain.KindOf(err) != domain.KindValidation { t.Fatalf("bad square: %v", err) }

	h.move(t, g.ID, "alice", "g1f3")
	log, err := h.svc.Moves(ctx, g.ID)
	if err != nil || len(log) != 1 || log[0].SAN != "Nf3" { t.Fatalf("Moves = %+v, %v", log, err) }
}

func TestRestoreReattachesClocks(t *testing.T) {
	ft := &fakeTime{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	repo := storage.NewMemoryRepository()
	first := newHarnessWith(t, repo, ft)
	g := first.started(t)
	ft.Advance(5 * time.Second)
	first.move(t, g.ID, "alice", "e2e4")
	paused := first.started(t)
	if _, err := first.svc.Pause(context.Background(), paused.ID, "alice"); err != nil { t.Fatalf("Pause: %v", err) }

	second := newHarnessWith(t, repo, ft)
	n, err := second.svc.Restore(context.Background())
	if err != nil || n != 2 { t.Fatalf("Restore = %d, %v", n, err) }
	tl, _ := second.svc.TimeLeft(context.Background(), g.ID)
	if tl.WhiteMs != 177000 || tl.BlackMs != 180000 { t.Fatalf("restored times = %+v", tl) }

	ft.Advance(10 * time.Second)
	second.sched.Sweep(ft.Now())
	tl, _ = second.svc.TimeLeft(context.Background(), paused.ID)
	if tl.WhiteMs != 180000 { t.Fatalf("restored paused clock ran: %+v", tl) }
	tl, _ = second.svc.TimeLeft(context.Background(), g.ID)
	if tl.BlackMs != 170000 { t.Fatalf("restored running clock = %+v", tl) }
}
