// Package arenabuilder wires the arena services from configuration.
package arenabuilder

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/feed"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/invite"
	"github.com/park285/cheese-arena/internal/leaderboard"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/notify"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/render"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Repo      storage.Repository
	DB        *sql.DB
	Redis     *redis.Client
	Scheduler *clock.Scheduler
	Settler   *rating.Settler
	Sessions  *session.Service
	Invites   *invite.Ledger
	Broker    feed.Broker
	// Notifier is nil unless WEBHOOK_URL is set.
	Notifier *notify.Notifier
	Catalog  *msgcat.Catalog
	Router   http.Handler
}

// New builds every dependency. Postgres and Redis are optional: without
// DATABASE_URL games live in memory, without REDIS_URL the leaderboard is
// skipped and the feed runs in-process.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = cat

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		d.DB = db
		d.Repo = storage.NewPostgresRepository(db)
	} else {
		logger.Warn("storage_memory", zap.String("reason", "DATABASE_URL not set"))
		d.Repo = storage.NewMemoryRepository()
	}

	var board *leaderboard.Board
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := parseRedisURL(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		d.Redis = rdb
		board = leaderboard.New(rdb)
		d.Broker = feed.NewRedis(rdb, logger)
	} else {
		d.Broker = feed.NewHub(logger)
	}

	sinks := []events.Sink{d.Broker}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		client := notify.NewClient(cfg.WebhookURL, notify.WithRetry(cfg.WebhookRetry))
		d.Notifier = notify.New(client, cat, logger, 0)
		sinks = append(sinks, d.Notifier)
	}
	sink := events.Multi(sinks...)

	d.Scheduler = clock.NewScheduler(clock.Config{
		Interval:     cfg.ClockTickInterval,
		Resolution:   cfg.ClockResolution,
		Workers:      cfg.ClockWorkers,
		ExpiryBuffer: cfg.ClockExpiryBuffer,
	})
	d.Settler = rating.NewSettler(d.Repo, board, logger)
	d.Sessions, err = session.New(session.Options{
		Repo:      d.Repo,
		Scheduler: d.Scheduler,
		Settler:   d.Settler,
		Sink:      sink,
		Logger:    logger,
		ListLimit: cfg.ListLimit,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Invites, err = invite.New(invite.Options{
		Repo:    d.Repo,
		Starter: d.Sessions,
		Sink:    sink,
		Logger:  logger,
		TTL:     cfg.InviteTTL,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Router = httpapi.NewRouter(httpapi.Deps{
		Games:    d.Sessions,
		Invites:  d.Invites,
		Players:  d.Settler,
		Renderer: render.New(cfg.BoardImageSize),
		Feed:     feed.NewHandler(d.Broker, d.Sessions, cat, logger),
		Catalog:  cat,
		Logger:   logger,
	})
	return d, nil
}

// Close releases the scheduler and the external connections.
func (d *Deps) Close() error {
	var errs []error
	if d.Scheduler != nil {
		errs = append(errs, d.Scheduler.Close(context.Background()))
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid db %q", p)
		}
		db = n
	}
	opts := &redis.Options{Addr: host + ":" + portStr, DB: db}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
