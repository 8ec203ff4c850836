package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts   map[string]int64
	expireAt map[string]time.Time
	err      error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd {
	f.expireAt[key] = tm
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestDailyQuotaTake(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}, expireAt: map[string]time.Time{}}
	q := &dailyQuota{client: counter, prefix: "asset_upload", limit: 2}
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, err := q.Take(context.Background(), "10.0.0.1", now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.Take(context.Background(), "10.0.0.1", now)
	require.NoError(t, err)
	assert.False(t, ok, "third upload exceeds the limit")

	key := "asset_upload:10.0.0.1:20260314"
	assert.Equal(t, int64(3), counter.counts[key])
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), counter.expireAt[key])

	// 新的一天重新计数。
	ok, err = q.Take(context.Background(), "10.0.0.1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDailyQuotaPropagatesRedisErrors(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}, expireAt: map[string]time.Time{}, err: errors.New("redis down")}
	q := &dailyQuota{client: counter, prefix: "p", limit: 1}

	_, err := q.Take(context.Background(), "ip", time.Now())
	assert.Error(t, err)
}
