package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

// dailyQuota 按主体（例如客户端 IP）与 UTC 自然日计数，计数键在当天结束后过期。
type dailyQuota struct {
	client redisRateCounter
	prefix string
	limit  int64
}

func (q *dailyQuota) key(subject string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", q.prefix, subject, now.UTC().Format("20060102"))
}

// Take 计入一次使用，返回本次是否仍在配额内。
func (q *dailyQuota) Take(ctx context.Context, subject string, now time.Time) (bool, error) {
	key := q.key(subject, now)
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		endOfDay := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = q.client.ExpireAt(ctx, key, endOfDay).Err()
	}
	return count <= q.limit, nil
}
