package domain

import "time"

type InviteStatus string

const (
	InvitePending   InviteStatus = "PENDING"
	InviteAccepted  InviteStatus = "ACCEPTED"
	InviteRejected  InviteStatus = "REJECTED"
	InviteCancelled InviteStatus = "CANCELLED"
	InviteExpired   InviteStatus = "EXPIRED"
)

// Invite is a challenge from Sender to Receiver.
type Invite struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	ReceiverID  string       `json:"receiver_id"`
	Discipline  Discipline   `json:"discipline"`
	TimeControl int          `json:"time_control"`
	Increment   int          `json:"increment"`
	Status      InviteStatus `json:"status"`
	GameID      string       `json:"game_id,omitempty"`
	SentAt      time.Time    `json:"sent_at"`
	RespondedAt time.Time    `json:"responded_at,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

func (i *Invite) ExpiredAt(now time.Time) bool { return !now.Before(i.ExpiresAt) }

func (i *Invite) Clone() *Invite {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}
