package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prodpro/prodpro/internal/config"
	"github.com/prodpro/prodpro/internal/session"
)

// redisPingTimeout bounds the connectivity check when the CLI starts
const redisPingTimeout = 3 * time.Second

// openSessionStore returns the session store configured for the context.
// The closer releases backend connections.
func openSessionStore(ctx context.Context, settings *config.Settings) (session.Store, io.Closer, error) {
	log := slog.Default().With(slog.String("component", "cli-session"))

	switch settings.Session.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     settings.Session.RedisAddr,
			Password: settings.Session.RedisPassword,
			DB:       settings.Session.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", settings.Session.RedisAddr, err)
		}

		prefix := settings.Session.RedisPrefix
		if prefix == "" {
			prefix = session.DefaultRedisPrefix
		}
		store := session.NewRedisStore(rdb, prefix, settings.Name)
		log.Debug("using redis session store",
			slog.String("addr", settings.Session.RedisAddr),
			slog.String("key", store.Key()))
		return store, rdb, nil

	case config.BackendFile, "":
		path := settings.Session.File
		if path == "" {
			var err error
			if path, err = session.DefaultPath(settings.Name); err != nil {
				return nil, nil, err
			}
		}
		log.Debug("using file session store", slog.String("path", path))
		return session.NewFileStore(path), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", settings.Session.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
