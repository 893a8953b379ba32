package config

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/repository/redis"
	"github.com/finseer-lab/mnemosyne/pkg/utils/logging"
)

// Redis holds CLI flags for session cache configuration
type Redis struct {
	addr     string
	password string
	db       int
	ttl      time.Duration
}

// Flags returns CLI flags for session cache configuration
func (r *Redis) Flags() []cli.Flag {
	defaults := redis.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis server address",
			Value:       defaults.Addr,
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_ADDR"),
			Destination: &r.addr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_PASSWORD"),
			Destination: &r.password,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Value:       defaults.DB,
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_DB"),
			Destination: &r.db,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Session cache expiration",
			Value:       defaults.TTL,
			Sources:     cli.EnvVars("MNEMOSYNE_SESSION_TTL"),
			Destination: &r.ttl,
		},
	}
}

// Configure connects to Redis and returns the session cache. The caller
// is responsible for calling Close() on the returned cache.
func (r *Redis) Configure(ctx context.Context) (interfaces.SessionCache, error) {
	cache, err := redis.New(ctx, redis.Config{
		Addr:     r.addr,
		Password: r.password,
		DB:       r.db,
		TTL:      r.ttl,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect session cache", goerr.V("addr", r.addr))
	}

	logging.Default().Info("Connected session cache",
		"addr", r.addr,
		"db", r.db,
		"ttl", r.ttl,
	)

	return cache, nil
}
