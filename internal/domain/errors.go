package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindIllegalMove  Kind = "illegal_move"
	KindPrecondition Kind = "precondition_failed"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is the typed failure returned by session, invite and rating operations.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func Validation(code, msg string) *Error   { return &Error{Kind: KindValidation, Code: code, Message: msg} }
func Illegal(code, msg string) *Error      { return &Error{Kind: KindIllegalMove, Code: code, Message: msg} }
func Precondition(code, msg string) *Error { return &Error{Kind: KindPrecondition, Code: code, Message: msg} }
func NotFound(code, msg string) *Error     { return &Error{Kind: KindNotFound, Code: code, Message: msg} }

// Illegalf builds an IllegalMove error with a formatted message.
func Illegalf(format string, args ...any) *Error {
	return &Error{Kind: KindIllegalMove, Code: "illegal_move", Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of a typed error, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

var (
	ErrGameNotFound     = NotFound("game_not_found", "game not found")
	ErrInviteNotFound   = NotFound("invite_not_found", "invite not found")
	ErrPlayerNotFound   = NotFound("player_not_found", "player not found")
	ErrNotParticipant   = Precondition("not_participant", "player is not a participant of this game")
	ErrNotYourTurn      = Precondition("not_your_turn", "it is not your turn")
	ErrGameNotActive    = Precondition("game_not_active", "game is not active")
	ErrGameNotWaiting   = Precondition("game_not_waiting", "game is not waiting for an opponent")
	ErrGameFinished     = Precondition("game_finished", "game is already finished")
	ErrSeatTaken        = Precondition("seat_taken", "both seats are already filled")
	ErrAlreadySeated    = Precondition("already_seated", "player already holds a seat in this game")
	ErrSeatReserved     = Precondition("seat_reserved", "the open seat is reserved for another player")
	ErrNotPaused        = Precondition("game_not_paused", "game is not paused")
	ErrNoDrawOffer      = Precondition("no_draw_offer", "no draw has been offered")
	ErrDrawPending      = Precondition("draw_already_offered", "a draw offer is already pending")
	ErrOwnDrawOffer     = Precondition("own_draw_offer", "a draw offer must be accepted by the opponent")
	ErrTimeExpired      = Precondition("time_expired", "time has expired")
	ErrNotCreator       = Precondition("not_creator", "only the creator may abort a waiting game")
	ErrSelfInvite       = Validation("self_invite", "cannot invite yourself")
	ErrInvitePending    = Precondition("invite_already_pending", "an invite to this player is already pending")
	ErrInviteNotPending = Precondition("invite_not_pending", "invite is no longer pending")
	ErrInviteExpired    = Precondition("invite_expired", "invite has expired")
	ErrNotReceiver      = Precondition("not_invite_receiver", "invite is not addressed to this player")
	ErrNotSender        = Precondition("not_invite_sender", "only the sender may cancel this invite")
	ErrConcurrentWrite  = Precondition("concurrent_update", "game was updated concurrently, retry")
)
