// Package redis implements the session cache over Redis. Conversation
// turns are kept per user in a capped-by-TTL list; nothing here is
// durable by design.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds configuration for the Redis session cache
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		TTL:  24 * time.Hour,
	}
}

// SessionCache implements interfaces.SessionCache over Redis
type SessionCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ interfaces.SessionCache = &SessionCache{}

// New creates a Redis session cache and verifies connectivity
func New(ctx context.Context, cfg Config) (*SessionCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", cfg.Addr))
	}

	return &SessionCache{
		client: client,
		ttl:    cfg.TTL,
	}, nil
}

// NewWithClient wraps an existing Redis client, used by tests
func NewWithClient(client goredis.UniversalClient, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{client: client, ttl: ttl}
}

func conversationKey(user types.UserID) string {
	return fmt.Sprintf("conversation:%s", user)
}

func sessionKey(user types.UserID) string {
	return fmt.Sprintf("session:%s", user)
}

func (c *SessionCache) Append(ctx context.Context, user types.UserID, turn *model.ConversationTurn) error {
	if user.IsEmpty() {
		return goerr.New("user is required")
	}
	if turn == nil {
		return goerr.New("turn is required")
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal turn")
	}

	key := conversationKey(user)
	if err := c.client.LPush(ctx, key, data).Err(); err != nil {
		return goerr.Wrap(err, "failed to append turn", goerr.V("user", user))
	}
	if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to refresh ttl", goerr.V("user", user))
	}

	return nil
}

func (c *SessionCache) Recent(ctx context.Context, user types.UserID, limit int) ([]*model.ConversationTurn, error) {
	if user.IsEmpty() {
		return nil, goerr.New("user is required")
	}
	if limit <= 0 {
		return []*model.ConversationTurn{}, nil
	}

	raw, err := c.client.LRange(ctx, conversationKey(user), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read recent turns", goerr.V("user", user))
	}

	turns := make([]*model.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn model.ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal turn", goerr.V("user", user))
		}
		turns = append(turns, &turn)
	}

	return turns, nil
}

func (c *SessionCache) Clear(ctx context.Context, user types.UserID) error {
	if user.IsEmpty() {
		return goerr.New("user is required")
	}

	if err := c.client.Del(ctx, conversationKey(user), sessionKey(user)).Err(); err != nil {
		return goerr.Wrap(err, "failed to clear session", goerr.V("user", user))
	}

	return nil
}

func (c *SessionCache) Stats(ctx context.Context) (*interfaces.SessionStats, error) {
	keys, err := c.client.Keys(ctx, "conversation:*").Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count conversations")
	}

	return &interfaces.SessionStats{
		ActiveConversations: len(keys),
		TTLHours:            int(c.ttl / time.Hour),
	}, nil
}

func (c *SessionCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
