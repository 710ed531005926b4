package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/park285/cheese-arena/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type pgrepo struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) Repository {
	return &pgrepo{db: db}
}

// OpenPostgres opens a pooled connection and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *pgrepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *pgrepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const gameColumns = `id, white_id, black_id, creator_id, reserved_id, discipline, status, outcome, method,
	time_control, increment, white_ms, black_ms, initial_fen, current_fen, draw_offered_by, invite_id,
	version, created_at, started_at, finished_at`

func scanGame(s rowScanner) (*domain.Game, error) {
	var (
		g                                 domain.Game
		white, black, reserved, inviteID sql.NullString
		discipline, status, outcome      string
		drawBy                            string
		started, finished                 sql.NullTime
	)
	if err := s.Scan(
		&g.ID, &white, &black, &g.CreatorID, &reserved, &discipline, &status, &outcome, &g.Method,
		&g.TimeControl, &g.Increment, &g.WhiteMs, &g.BlackMs, &g.InitialFEN, &g.CurrentFEN, &drawBy, &inviteID,
		&g.Version, &g.CreatedAt, &started, &finished,
	); err != nil {
		return nil, err
	}
	g.WhiteID, g.BlackID, g.ReservedID, g.InviteID = white.String, black.String, reserved.String, inviteID.String
	g.Discipline = domain.Discipline(discipline)
	g.Status = domain.Status(status)
	g.Outcome = domain.Outcome(outcome)
	g.DrawOfferedBy = domain.Side(drawBy)
	g.StartedAt = started.Time
	g.FinishedAt = finished.Time
	return &g, nil
}

func insertGame(ctx context.Context, q queryer, g *domain.Game) error {
	const query = `
		INSERT INTO games (` + gameColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := q.ExecContext(ctx, query,
		g.ID, nullString(g.WhiteID), nullString(g.BlackID), g.CreatorID, nullString(g.ReservedID),
		string(g.Discipline), string(g.Status), string(g.Outcome), g.Method,
		g.TimeControl, g.Increment, g.WhiteMs, g.BlackMs, g.InitialFEN, g.CurrentFEN,
		string(g.DrawOfferedBy), nullString(g.InviteID), g.Version, g.CreatedAt,
		nullTime(g.StartedAt), nullTime(g.FinishedAt),
	)
	if _, dup := uniqueViolation(err); dup {
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func updateGame(ctx context.Context, q queryer, g *domain.Game) error {
	const query = `
		UPDATE games SET
			white_id = $2,
			black_id = $3,
			reserved_id = $4,
			status = $5,
			outcome = $6,
			method = $7,
			white_ms = $8,
			black_ms = $9,
			current_fen = $10,
			draw_offered_by = $11,
			started_at = $12,
			finished_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $14`
	res, err := q.ExecContext(ctx, query,
		g.ID, nullString(g.WhiteID), nullString(g.BlackID), nullString(g.ReservedID),
		string(g.Status), string(g.Outcome), g.Method, g.WhiteMs, g.BlackMs, g.CurrentFEN,
		string(g.DrawOfferedBy), nullTime(g.StartedAt), nullTime(g.FinishedAt), g.Version,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	g.Version++
	return nil
}

func (r *pgrepo) InsertGame(ctx context.Context, g *domain.Game) error {
	return insertGame(ctx, r.db, g)
}

func (r *pgrepo) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	moves, err := r.ListMoves(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Moves = moves
	return g, nil
}

func (r *pgrepo) UpdateGame(ctx context.Context, g *domain.Game) error {
	return updateGame(ctx, r.db, g)
}

func (r *pgrepo) AppendMove(ctx context.Context, g *domain.Game, m domain.Move) error {
	const query = `
		INSERT INTO moves (id, game_id, number, from_sq, to_sq, promotion, uci, san, fen, white_ms, black_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			m.ID, g.ID, m.Number, m.From, m.To, m.Promotion, m.UCI, m.SAN, m.FEN, m.WhiteMs, m.BlackMs, m.CreatedAt,
		)
		if _, dup := uniqueViolation(err); dup {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert move: %w", err)
		}
		return updateGame(ctx, tx, g)
	})
}

func (r *pgrepo) ListGames(ctx context.Context, f GameFilter) ([]*domain.Game, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.PlayerID != "" {
		args = append(args, f.PlayerID)
		where = append(where, fmt.Sprintf("(white_id = $%d OR black_id = $%d)", len(args), len(args)))
	}
	if f.Open {
		where = append(where, "(white_id IS NULL OR black_id IS NULL)")
	}
	query := `SELECT ` + gameColumns + ` FROM games`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *pgrepo) ListMoves(ctx context.Context, gameID string) ([]domain.Move, error) {
	const query = `
		SELECT id, game_id, number, from_sq, to_sq, promotion, uci, san, fen, white_ms, black_ms, created_at
		FROM moves
		WHERE game_id = $1
		ORDER BY number ASC`
	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()
	var out []domain.Move
	for rows.Next() {
		var m domain.Move
		if err := rows.Scan(&m.ID, &m.GameID, &m.Number, &m.From, &m.To, &m.Promotion, &m.UCI, &m.SAN, &m.FEN,
			&m.WhiteMs, &m.BlackMs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgrepo) InsertPlayer(ctx context.Context, p *domain.Player) error {
	const query = `
		INSERT INTO players (id, handle, played, won, drawn, lost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, p.ID, p.Handle, p.Played, p.Won, p.Drawn, p.Lost, p.CreatedAt, p.UpdatedAt)
		if constraint, dup := uniqueViolation(err); dup {
			if constraint == "players_handle_uq" {
				return ErrDuplicateHandle
			}
			return ErrDuplicateID
		}
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		return upsertRatings(ctx, tx, p)
	})
}

func upsertRatings(ctx context.Context, q queryer, p *domain.Player) error {
	const query = `
		INSERT INTO player_ratings (player_id, discipline, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, discipline) DO UPDATE SET rating = EXCLUDED.rating`
	for _, d := range domain.Disciplines {
		if _, err := q.ExecContext(ctx, query, p.ID, string(d), p.Rating(d)); err != nil {
			return fmt.Errorf("upsert rating %s: %w", d, err)
		}
	}
	return nil
}

const playerColumns = `id, handle, played, won, drawn, lost, created_at, updated_at`

func scanPlayer(s rowScanner) (*domain.Player, error) {
	var p domain.Player
	if err := s.Scan(&p.ID, &p.Handle, &p.Played, &p.Won, &p.Drawn, &p.Lost, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Ratings = make(map[domain.Discipline]int, len(domain.Disciplines))
	return &p, nil
}

func (r *pgrepo) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	p, err := scanPlayer(r.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	if err := r.loadRatings(ctx, map[string]*domain.Player{p.ID: p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgrepo) loadRatings(ctx context.Context, byID map[string]*domain.Player) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, discipline, rating FROM player_ratings WHERE player_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, discipline string
			rating         int
		)
		if err := rows.Scan(&id, &discipline, &rating); err != nil {
			return fmt.Errorf("scan rating: %w", err)
		}
		if p, ok := byID[id]; ok {
			p.Ratings[domain.Discipline(discipline)] = rating
		}
	}
	return rows.Err()
}

func (r *pgrepo) UpdatePlayers(ctx context.Context, players ...*domain.Player) error {
	const query = `
		UPDATE players SET played = $2, won = $3, drawn = $4, lost = $5, updated_at = $6
		WHERE id = $1`
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range players {
			res, err := tx.ExecContext(ctx, query, p.ID, p.Played, p.Won, p.Drawn, p.Lost, p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("update player %s: %w", p.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrConflict
			}
			if err := upsertRatings(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *pgrepo) RenamePlayer(ctx context.Context, id, handle string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE players SET handle = $2, updated_at = $3 WHERE id = $1`, id, handle, at)
	if _, dup := uniqueViolation(err); dup {
		return ErrDuplicateHandle
	}
	if err != nil {
		return fmt.Errorf("rename player %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (r *pgrepo) TopPlayers(ctx context.Context, d domain.Discipline, limit int) ([]*domain.Player, error) {
	const query = `
		SELECT p.id, p.handle, p.played, p.won, p.drawn, p.lost, p.created_at, p.updated_at
		FROM player_ratings r
		JOIN players p ON p.id = r.player_id
		WHERE r.discipline = $1
		ORDER BY r.rating DESC, p.handle ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, string(d), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("select top players: %w", err)
	}
	out := make([]*domain.Player, 0)
	byID := make(map[string]*domain.Player)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := r.loadRatings(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

const inviteColumns = `id, sender_id, receiver_id, discipline, time_control, increment, status, game_id, sent_at, responded_at, expires_at`

func scanInvite(s rowScanner) (*domain.Invite, error) {
	var (
		inv                domain.Invite
		discipline, status string
		gameID             sql.NullString
		responded          sql.NullTime
	)
	if err := s.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &discipline, &inv.TimeControl, &inv.Increment,
		&status, &gameID, &inv.SentAt, &responded, &inv.ExpiresAt); err != nil {
		return nil, err
	}
	inv.Discipline = domain.Discipline(discipline)
	inv.Status = domain.InviteStatus(status)
	inv.GameID = gameID.String
	inv.RespondedAt = responded.Time
	return &inv, nil
}

func (r *pgrepo) InsertInvite(ctx context.Context, inv *domain.Invite) error {
	const query = `
		INSERT INTO invites (` + inviteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.SenderID, inv.ReceiverID, string(inv.Discipline), inv.TimeControl, inv.Increment,
		string(inv.Status), nullString(inv.GameID), inv.SentAt, nullTime(inv.RespondedAt), inv.ExpiresAt,
	)
	if constraint, dup := uniqueViolation(err); dup {
		if constraint == "invites_one_pending_uq" {
			return ErrDuplicatePendingInvite
		}
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (r *pgrepo) GetInvite(ctx context.Context, id string) (*domain.Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select invite: %w", err)
	}
	return inv, nil
}

func transitionInvite(ctx context.Context, q queryer, inv *domain.Invite, from domain.InviteStatus) error {
	const query = `
		UPDATE invites SET status = $2, game_id = $3, responded_at = $4
		WHERE id = $1 AND status = $5`
	res, err := q.ExecContext(ctx, query, inv.ID, string(inv.Status), nullString(inv.GameID), nullTime(inv.RespondedAt), string(from))
	if err != nil {
		return fmt.Errorf("update invite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInviteStatusChanged
	}
	return nil
}

func (r *pgrepo) TransitionInvite(ctx context.Context, inv *domain.Invite, from domain.InviteStatus) error {
	return transitionInvite(ctx, r.db, inv, from)
}

func (r *pgrepo) AcceptInvite(ctx context.Context, inv *domain.Invite, g *domain.Game) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		// the conditional update takes the row lock first so a racing accept fails here
		if err := transitionInvite(ctx, tx, inv, domain.InvitePending); err != nil {
			return err
		}
		return insertGame(ctx, tx, g)
	})
}

func (r *pgrepo) ListInvites(ctx context.Context, f InviteFilter) ([]*domain.Invite, error) {
	var (
		where []string
		args  []any
	)
	if f.SenderID != "" {
		args = append(args, f.SenderID)
		where = append(where, fmt.Sprintf("sender_id = $%d", len(args)))
	}
	if f.ReceiverID != "" {
		args = append(args, f.ReceiverID)
		where = append(where, fmt.Sprintf("receiver_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	query := `SELECT ` + inviteColumns + ` FROM invites`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY sent_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invites: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *pgrepo) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	const query = `
		UPDATE invites SET status = 'EXPIRED', responded_at = $1
		WHERE status = 'PENDING' AND expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire invites: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
