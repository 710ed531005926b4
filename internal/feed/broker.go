// Package feed streams game events to live viewers. Events travel over Redis
// pub/sub when Redis is configured and through an in-process hub otherwise.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriberBuffer = 64

// Broker publishes events per game and lets viewers subscribe to one game.
type Broker interface {
	events.Sink
	Subscribe(ctx context.Context, gameID string) (<-chan events.Event, func(), error)
}

// ChannelFor is the pub/sub channel carrying events of one game.
func ChannelFor(gameID string) string { return "arena:game:" + gameID }

// Hub is the in-process Broker.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan events.Event]struct{}
	log  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = obslog.L()
	}
	return &Hub{subs: make(map[string]map[chan events.Event]struct{}), log: logger}
}

// Publish delivers ev to every subscriber of its game. Slow subscribers drop
// events instead of blocking the publisher.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	if ev.GameID == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.GameID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("feed_subscriber_slow", zap.String("game_id", ev.GameID), zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, gameID string) (<-chan events.Event, func(), error) {
	ch := make(chan events.Event, subscriberBuffer)
	h.mu.Lock()
	set := h.subs[gameID]
	if set == nil {
		set = make(map[chan events.Event]struct{})
		h.subs[gameID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[gameID], ch)
			if len(h.subs[gameID]) == 0 {
				delete(h.subs, gameID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Redis is the Broker backed by Redis pub/sub, shared by every server
// instance attached to the same Redis.
type Redis struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = obslog.L()
	}
	return &Redis{rdb: rdb, log: logger}
}

func (r *Redis) Publish(ctx context.Context, ev events.Event) error {
	if ev.GameID == "" {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, ChannelFor(ev.GameID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, gameID string) (<-chan events.Event, func(), error) {
	ps := r.rdb.Subscribe(ctx, ChannelFor(gameID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}
	out := make(chan events.Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev events.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.log.Warn("feed_decode_error", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					r.log.Warn("feed_subscriber_slow", zap.String("game_id", gameID), zap.String("type", string(ev.Type)))
				}
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
