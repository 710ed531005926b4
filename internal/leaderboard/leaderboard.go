package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arena:leaderboard:"

type Entry struct {
	PlayerID string `json:"player_id"`
	Rating   int    `json:"rating"`
	Rank     int64  `json:"rank"`
}

// Board keeps one sorted set per discipline scored by rating.
type Board struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *Board {
	return &Board{rdb: rdb}
}

func key(d domain.Discipline) string { return keyPrefix + string(d) }

// Record stores the player's current rating for the discipline.
func (b *Board) Record(ctx context.Context, d domain.Discipline, playerID string, rating int) error {
	if b == nil || b.rdb == nil {
		return nil
	}
	if err := b.rdb.ZAdd(ctx, key(d), redis.Z{Score: float64(rating), Member: playerID}).Err(); err != nil {
		return fmt.Errorf("leaderboard zadd: %w", err)
	}
	return nil
}

// RecordPlayer stores every discipline rating of p in one pipeline.
func (b *Board) RecordPlayer(ctx context.Context, p *domain.Player) error {
	if b == nil || b.rdb == nil || p == nil {
		return nil
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range domain.Disciplines {
			pipe.ZAdd(ctx, key(d), redis.Z{Score: float64(p.Rating(d)), Member: p.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaderboard record player: %w", err)
	}
	return nil
}

// Top returns up to limit entries ordered by rating, highest first.
func (b *Board) Top(ctx context.Context, d domain.Discipline, limit int) ([]Entry, error) {
	if b == nil || b.rdb == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, key(d), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Entry{PlayerID: id, Rating: int(z.Score), Rank: int64(i) + 1})
	}
	return out, nil
}

// Rank returns the 1-based position of playerID, or ok=false when absent.
func (b *Board) Rank(ctx context.Context, d domain.Discipline, playerID string) (rank int64, ok bool, err error) {
	if b == nil || b.rdb == nil {
		return 0, false, nil
	}
	r, err := b.rdb.ZRevRank(ctx, key(d), playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("leaderboard rank: %w", err)
	}
	return r + 1, true, nil
}

// Len reports how many players are ranked in the discipline.
func (b *Board) Len(ctx context.Context, d domain.Discipline) (int64, error) {
	if b == nil || b.rdb == nil {
		return 0, nil
	}
	return b.rdb.ZCard(ctx, key(d)).Result()
}
