package chessdto

import "time"

type Game struct {
	ID            string     `json:"id"`
	WhiteID       string     `json:"white_id,omitempty"`
	BlackID       string     `json:"black_id,omitempty"`
	CreatorID     string     `json:"creator_id"`
	ReservedID    string     `json:"reserved_id,omitempty"`
	Discipline    string     `json:"discipline"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome"`
	Method        string     `json:"method,omitempty"`
	TimeControl   int        `json:"time_control"`
	Increment     int        `json:"increment"`
	WhiteMs       int64      `json:"white_ms"`
	BlackMs       int64      `json:"black_ms"`
	InitialFEN    string     `json:"initial_fen"`
	FEN           string     `json:"fen"`
	MoveCount     int        `json:"move_count"`
	SideToMove    string     `json:"side_to_move,omitempty"`
	DrawOfferedBy string     `json:"draw_offered_by,omitempty"`
	InviteID      string     `json:"invite_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type Move struct {
	Number    int       `json:"number"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FEN       string    `json:"fen"`
	WhiteMs   int64     `json:"white_ms"`
	BlackMs   int64     `json:"black_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type TimeLeft struct {
	WhiteMs int64 `json:"white_ms"`
	BlackMs int64 `json:"black_ms"`
}

type LegalMoves struct {
	Square string   `json:"square"`
	Moves  []string `json:"moves"`
}

type Invite struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	ReceiverID  string     `json:"receiver_id"`
	Discipline  string     `json:"discipline"`
	TimeControl int        `json:"time_control"`
	Increment   int        `json:"increment"`
	Status      string     `json:"status"`
	GameID      string     `json:"game_id,omitempty"`
	SentAt      time.Time  `json:"sent_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

type Player struct {
	ID      string         `json:"id"`
	Handle  string         `json:"handle"`
	Ratings map[string]int `json:"ratings"`
	Played  int            `json:"played"`
	Won     int            `json:"won"`
	Drawn   int            `json:"drawn"`
	Lost    int            `json:"lost"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Handle   string `json:"handle"`
	Rating   int    `json:"rating"`
}
