package chessdto

type CreateGameRequest struct {
	Discipline  string `json:"discipline"`
	TimeControl int    `json:"time_control,omitempty"`
	Increment   *int   `json:"increment,omitempty"`
	OpponentID  string `json:"opponent_id,omitempty"`
	Color       string `json:"color,omitempty"`
	InitialFEN  string `json:"initial_fen,omitempty"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type MoveResponse struct {
	Game     *Game `json:"game"`
	Move     Move  `json:"move"`
	Finished bool  `json:"finished"`
}

type SendInviteRequest struct {
	ReceiverID  string `json:"receiver_id"`
	Discipline  string `json:"discipline"`
	TimeControl int    `json:"time_control,omitempty"`
	Increment   *int   `json:"increment,omitempty"`
}

type AcceptInviteResponse struct {
	Invite *Invite `json:"invite"`
	Game   *Game   `json:"game"`
}

type RegisterPlayerRequest struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}
