package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/gt"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/repository/redis"
)

func newTestCache(t *testing.T, ttl time.Duration) (*redis.SessionCache, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	cache := redis.NewWithClient(client, ttl)
	t.Cleanup(func() {
		_ = cache.Close()
	})

	return cache, srv
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, time.Hour)

	gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("first question", "first answer")))
	gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("second question", "second answer")))
	gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("third question", "third answer")))

	t.Run("newest first", func(t *testing.T) {
		turns := gt.R1(cache.Recent(ctx, "u1", 10)).NoError(t)
		gt.Array(t, turns).Length(3).Required()
		gt.Value(t, turns[0].UserMessage).Equal("third question")
		gt.Value(t, turns[1].UserMessage).Equal("second question")
		gt.Value(t, turns[2].UserMessage).Equal("first question")
		gt.Value(t, turns[0].AssistantResponse).Equal("third answer")
		gt.Bool(t, turns[0].Timestamp.IsZero()).False()
	})

	t.Run("limit truncates", func(t *testing.T) {
		turns := gt.R1(cache.Recent(ctx, "u1", 2)).NoError(t)
		gt.Array(t, turns).Length(2).Required()
		gt.Value(t, turns[0].UserMessage).Equal("third question")
		gt.Value(t, turns[1].UserMessage).Equal("second question")
	})

	t.Run("other user is isolated", func(t *testing.T) {
		turns := gt.R1(cache.Recent(ctx, "u2", 10)).NoError(t)
		gt.Array(t, turns).Length(0)
	})

	t.Run("non-positive limit yields nothing", func(t *testing.T) {
		turns := gt.R1(cache.Recent(ctx, "u1", 0)).NoError(t)
		gt.Array(t, turns).Length(0)
	})
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, time.Hour)

	gt.Error(t, cache.Append(ctx, "", model.NewConversationTurn("q", "a")))
	gt.Error(t, cache.Append(ctx, "u1", nil))

	_, err := cache.Recent(ctx, "", 10)
	gt.Error(t, err)

	gt.Error(t, cache.Clear(ctx, ""))
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	cache, srv := newTestCache(t, time.Hour)

	gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q1", "a1")))

	t.Run("entries expire", func(t *testing.T) {
		srv.FastForward(2 * time.Hour)

		turns := gt.R1(cache.Recent(ctx, "u1", 10)).NoError(t)
		gt.Array(t, turns).Length(0)
	})

	t.Run("append refreshes ttl", func(t *testing.T) {
		gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q2", "a2")))
		srv.FastForward(45 * time.Minute)
		gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q3", "a3")))
		srv.FastForward(45 * time.Minute)

		// 90 minutes since the first append, but the TTL was reset
		turns := gt.R1(cache.Recent(ctx, "u1", 10)).NoError(t)
		gt.Array(t, turns).Length(2)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	cache, srv := newTestCache(t, time.Hour)

	gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q1", "a1")))
	gt.NoError(t, cache.Append(ctx, "u2", model.NewConversationTurn("q2", "a2")))
	srv.Set("session:u1", "state")

	gt.NoError(t, cache.Clear(ctx, "u1"))

	gt.Bool(t, srv.Exists("conversation:u1")).False()
	gt.Bool(t, srv.Exists("session:u1")).False()
	gt.Bool(t, srv.Exists("conversation:u2")).True()

	turns := gt.R1(cache.Recent(ctx, "u1", 10)).NoError(t)
	gt.Array(t, turns).Length(0)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	cache, srv := newTestCache(t, 24*time.Hour)

	t.Run("empty cache", func(t *testing.T) {
		stats := gt.R1(cache.Stats(ctx)).NoError(t)
		gt.Number(t, stats.ActiveConversations).Equal(0)
		gt.Number(t, stats.TTLHours).Equal(24)
	})

	t.Run("counts conversation keys only", func(t *testing.T) {
		gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q", "a")))
		gt.NoError(t, cache.Append(ctx, "u1", model.NewConversationTurn("q", "a")))
		gt.NoError(t, cache.Append(ctx, "u2", model.NewConversationTurn("q", "a")))
		srv.Set("session:u3", "state")

		stats := gt.R1(cache.Stats(ctx)).NoError(t)
		gt.Number(t, stats.ActiveConversations).Equal(2)
	})
}
