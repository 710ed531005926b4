// Package invite tracks challenges between two players. An accepted invite
// becomes an Active game exactly once.
package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/storage"
	"go.uber.org/zap"
)

// DefaultTTL is how long an invite stays Pending.
const DefaultTTL = 7 * 24 * time.Hour

// Starter attaches a clock to a game created Active by Accept.
type Starter interface {
	StartGame(ctx context.Context, g *domain.Game) error
}

type Options struct {
	Repo    storage.Repository
	Starter Starter
	Sink    events.Sink
	Logger  *zap.Logger
	TTL     time.Duration
	Now     func() time.Time
	NewID   func() string
}

type Ledger struct {
	repo    storage.Repository
	starter Starter
	sink    events.Sink
	log     *zap.Logger
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
}

func New(opts Options) (*Ledger, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("invite: repository required")
	}
	l := &Ledger{
		repo:    opts.Repo,
		starter: opts.Starter,
		sink:    opts.Sink,
		log:     opts.Logger,
		ttl:     opts.TTL,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if l.sink == nil {
		l.sink = events.Nop()
	}
	if l.log == nil {
		l.log = obslog.L()
	}
	if l.ttl <= 0 {
		l.ttl = DefaultTTL
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l, nil
}

type SendRequest struct {
	SenderID   string
	ReceiverID string
	Discipline domain.Discipline
	// TimeControl in seconds; zero uses the discipline default.
	TimeControl int
	// Increment in seconds; nil uses the discipline default.
	Increment *int
}

// Send creates a Pending invite. Only one Pending invite may exist per
// ordered (sender, receiver) pair.
func (l *Ledger) Send(ctx context.Context, req SendRequest) (*domain.Invite, error) {
	sender, receiver := strings.TrimSpace(req.SenderID), strings.TrimSpace(req.ReceiverID)
	if sender == "" || receiver == "" {
		return nil, domain.Validation("invalid_player", "sender and receiver are required")
	}
	if sender == receiver {
		return nil, domain.ErrSelfInvite
	}
	if !req.Discipline.Valid() {
		return nil, domain.Validation("invalid_discipline", "unknown discipline: "+string(req.Discipline))
	}
	tc, inc := req.Discipline.BaseSeconds(), req.Discipline.IncrementSeconds()
	if req.TimeControl < 0 || (req.Increment != nil && *req.Increment < 0) {
		return nil, domain.Validation("invalid_time_control", "time control must not be negative")
	}
	if req.TimeControl > 0 {
		tc = req.TimeControl
	}
	if req.Increment != nil {
		inc = *req.Increment
	}

	now := l.now()
	inv := &domain.Invite{
		ID:          l.newID(),
		SenderID:    sender,
		ReceiverID:  receiver,
		Discipline:  req.Discipline,
		TimeControl: tc,
		Increment:   inc,
		Status:      domain.InvitePending,
		SentAt:      now,
		ExpiresAt:   now.Add(l.ttl),
	}
	err := l.repo.InsertInvite(ctx, inv)
	if errors.Is(err, storage.ErrDuplicatePendingInvite) {
		// a stale pending invite for the pair does not block a new one
		if n, xerr := l.repo.ExpireInvites(ctx, now); xerr == nil && n > 0 {
			err = l.repo.InsertInvite(ctx, inv)
		}
	}
	switch {
	case errors.Is(err, storage.ErrDuplicatePendingInvite):
		return nil, domain.ErrInvitePending
	case err != nil:
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	l.log.Info("invite_send",
		zap.String("invite_id", inv.ID),
		zap.String("sender_id", sender),
		zap.String("receiver_id", receiver),
		zap.String("discipline", string(inv.Discipline)),
	)
	l.publish(ctx, events.InviteSent, inv, sender, "")
	return inv, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*domain.Invite, error) {
	inv, err := l.repo.GetInvite(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load invite %s: %w", id, err)
	}
	if inv == nil {
		return nil, domain.ErrInviteNotFound
	}
	return inv, nil
}

// Accept turns a Pending invite into an Active game. The game insert and the
// invite transition commit together; a lost race reports the invite as no
// longer pending.
func (l *Ledger) Accept(ctx context.Context, id, receiver string) (*domain.Invite, *domain.Game, error) {
	inv, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if inv.ReceiverID != receiver {
		return nil, nil, domain.ErrNotReceiver
	}
	if inv.Status != domain.InvitePending {
		return nil, nil, domain.ErrInviteNotPending
	}
	now := l.now()
	if inv.ExpiredAt(now) {
		l.expire(ctx, inv, now)
		return nil, nil, domain.ErrInviteExpired
	}

	start := domain.StartFEN
	g := &domain.Game{
		ID:          l.newID(),
		WhiteID:     inv.SenderID,
		BlackID:     inv.ReceiverID,
		CreatorID:   inv.SenderID,
		Discipline:  inv.Discipline,
		Status:      domain.StatusActive,
		Outcome:     domain.OutcomeNone,
		TimeControl: inv.TimeControl,
		Increment:   inv.Increment,
		WhiteMs:     int64(inv.TimeControl) * 1000,
		BlackMs:     int64(inv.TimeControl) * 1000,
		InitialFEN:  start,
		CurrentFEN:  start,
		InviteID:    inv.ID,
		CreatedAt:   now,
		StartedAt:   now,
	}
	accepted := inv.Clone()
	accepted.Status = domain.InviteAccepted
	accepted.GameID = g.ID
	accepted.RespondedAt = now

	switch err := l.repo.AcceptInvite(ctx, accepted, g); {
	case errors.Is(err, storage.ErrInviteStatusChanged):
		return nil, nil, domain.ErrInviteNotPending
	case err != nil:
		return nil, nil, fmt.Errorf("accept invite: %w", err)
	}
	if l.starter != nil {
		if err := l.starter.StartGame(ctx, g); err != nil {
			l.log.Error("invite_start_game_error", zap.String("invite_id", inv.ID), zap.String("game_id", g.ID), zap.Error(err))
		}
	}
	l.log.Info("invite_accept", zap.String("invite_id", inv.ID), zap.String("game_id", g.ID))
	l.publish(ctx, events.InviteResolved, accepted, receiver, g.ID)
	return accepted, g, nil
}

func (l *Ledger) Reject(ctx context.Context, id, receiver string) (*domain.Invite, error) {
	return l.resolve(ctx, id, domain.InviteRejected, func(inv *domain.Invite) error {
		if inv.ReceiverID != receiver {
			return domain.ErrNotReceiver
		}
		return nil
	}, receiver)
}

func (l *Ledger) Cancel(ctx context.Context, id, sender string) (*domain.Invite, error) {
	return l.resolve(ctx, id, domain.InviteCancelled, func(inv *domain.Invite) error {
		if inv.SenderID != sender {
			return domain.ErrNotSender
		}
		return nil
	}, sender)
}

func (l *Ledger) resolve(ctx context.Context, id string, to domain.InviteStatus, allowed func(*domain.Invite) error, actor string) (*domain.Invite, error) {
	inv, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := allowed(inv); err != nil {
		return nil, err
	}
	if inv.Status != domain.InvitePending {
		return nil, domain.ErrInviteNotPending
	}
	now := l.now()
	if inv.ExpiredAt(now) {
		l.expire(ctx, inv, now)
		return nil, domain.ErrInviteExpired
	}
	next := inv.Clone()
	next.Status = to
	next.RespondedAt = now
	switch err := l.repo.TransitionInvite(ctx, next, domain.InvitePending); {
	case errors.Is(err, storage.ErrInviteStatusChanged):
		return nil, domain.ErrInviteNotPending
	case err != nil:
		return nil, fmt.Errorf("update invite: %w", err)
	}
	l.log.Info("invite_resolve", zap.String("invite_id", id), zap.String("status", string(to)))
	l.publish(ctx, events.InviteResolved, next, actor, "")
	return next, nil
}

// expire moves a Pending invite past its expiry to Expired. Losing the race
// to another transition is fine.
func (l *Ledger) expire(ctx context.Context, inv *domain.Invite, now time.Time) {
	next := inv.Clone()
	next.Status = domain.InviteExpired
	next.RespondedAt = now
	if err := l.repo.TransitionInvite(ctx, next, domain.InvitePending); err != nil {
		if !errors.Is(err, storage.ErrInviteStatusChanged) {
			l.log.Warn("invite_expire_error", zap.String("invite_id", inv.ID), zap.Error(err))
		}
		return
	}
	l.publish(ctx, events.InviteResolved, next, "", "")
}

// ExpireStale sweeps every Pending invite past its expiry.
func (l *Ledger) ExpireStale(ctx context.Context) (int, error) {
	n, err := l.repo.ExpireInvites(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("expire invites: %w", err)
	}
	if n > 0 {
		l.log.Info("invite_expire_sweep", zap.Int("expired", n))
	}
	return n, nil
}

// Direction selects received or sent invites.
type Direction string

const (
	Received Direction = "received"
	Sent     Direction = "sent"
)

func (l *Ledger) ListForPlayer(ctx context.Context, player string, dir Direction, statuses []domain.InviteStatus, limit int) ([]*domain.Invite, error) {
	if strings.TrimSpace(player) == "" {
		return nil, domain.Validation("invalid_player", "player id is required")
	}
	f := storage.InviteFilter{Statuses: statuses, Limit: limit}
	switch dir {
	case "", Received:
		f.ReceiverID = player
	case Sent:
		f.SenderID = player
	default:
		return nil, domain.Validation("invalid_direction", "unknown direction: "+string(dir))
	}
	out, err := l.repo.ListInvites(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return out, nil
}

// Run sweeps stale invites every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := l.ExpireStale(ctx); err != nil {
				l.log.Warn("invite_expire_sweep_error", zap.Error(err))
			}
		}
	}
}

func (l *Ledger) publish(ctx context.Context, typ events.Type, inv *domain.Invite, actor, gameID string) {
	_ = l.sink.Publish(ctx, events.Event{Type: typ, GameID: gameID, Invite: inv.Clone(), Actor: actor, At: l.now()})
}
