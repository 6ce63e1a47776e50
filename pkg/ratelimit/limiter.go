package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const KeyPrefix = "printgate:ratelimit"

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so a client that waits the advertised time is
// never rejected again for the same window.
func (d *Decision) RetryAfterSeconds() int {
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

//go:generate mockery --name=Limiter --dir=. --output=./mocks --filename=limiter_mock.go --case=underscore
type Limiter interface {
	// Allow records a hit for key if it fits in the window.
	Allow(ctx context.Context, scope, key string) (*Decision, error)
}

type Opts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

// slidingWindowLimiter keeps one sorted set per client: members are request
// ids scored by their arrival time in milliseconds.
type slidingWindowLimiter struct {
	redis        *redis.Client
	limit        int
	window       time.Duration
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

func NewSlidingWindowLimiter(redisClient *redis.Client, limit int, window time.Duration, opts *Opts) Limiter {
	l := &slidingWindowLimiter{
		redis:        redisClient,
		limit:        limit,
		window:       window,
		timeProvider: time.Now,
		uuidProvider: uuid.New,
	}
	if opts != nil && opts.TimeProvider != nil {
		l.timeProvider = opts.TimeProvider
	}
	if opts != nil && opts.UuidProvider != nil {
		l.uuidProvider = opts.UuidProvider
	}
	return l
}

func Key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, scope, key)
}

func (l *slidingWindowLimiter) Allow(ctx context.Context, scope, clientKey string) (*Decision, error) {
	key := Key(scope, clientKey)
	now := l.timeProvider()
	windowStart := now.Add(-l.window).UnixMilli()

	currentCount, err := l.redis.ZCount(ctx, key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(now.UnixMilli(), 10)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get count for %s: %w", key, err)
	}

	decision := &Decision{
		Limit:   l.limit,
		ResetAt: now.Add(l.window),
	}

	if currentCount >= int64(l.limit) {
		decision.RetryAfter = l.window
		oldest, err := l.redis.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read window start for %s: %w", key, err)
		}
		if len(oldest) == 1 {
			expires := time.UnixMilli(int64(oldest[0].Score)).Add(l.window)
			decision.ResetAt = expires
			decision.RetryAfter = expires.Sub(now)
		}
		return decision, nil
	}

	requestID := fmt.Sprintf("%d:%s", now.UnixMilli(), l.uuidProvider().String())
	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: requestID,
	})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	decision.Allowed = true
	decision.Remaining = l.limit - int(currentCount) - 1
	return decision, nil
}
