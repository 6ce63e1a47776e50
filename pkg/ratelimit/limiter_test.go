package ratelimit_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/NeuralTrust/PrintGate/pkg/ratelimit"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "printgate:ratelimit:print:203.0.113.7", ratelimit.Key("print", "203.0.113.7"))
}

func TestSlidingWindowLimiter_Allow_UnderLimit(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)

	key := ratelimit.Key("print", "127.0.0.1")
	window := 30 * time.Second
	fixedTime := time.UnixMilli(1740730536000)
	windowStart := fixedTime.Add(-window).UnixMilli()
	uid := uuid.New()

	mock.ExpectZCount(key, strconv.FormatInt(windowStart, 10), strconv.FormatInt(fixedTime.UnixMilli(), 10)).SetVal(0)
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "0", strconv.FormatInt(windowStart, 10)).SetVal(0)
	mock.ExpectZAdd(key, &redis.Z{
		Score:  float64(fixedTime.UnixMilli()),
		Member: strconv.FormatInt(fixedTime.UnixMilli(), 10) + ":" + uid.String(),
	}).SetVal(1)
	mock.ExpectExpire(key, window).SetVal(true)
	mock.ExpectTxPipelineExec()

	limiter := ratelimit.NewSlidingWindowLimiter(redisMock, 1, window, &ratelimit.Opts{
		TimeProvider: func() time.Time { return fixedTime },
		UuidProvider: func() uuid.UUID { return uid },
	})

	decision, err := limiter.Allow(context.Background(), "print", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Limit)
	assert.Equal(t, 0, decision.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlidingWindowLimiter_Allow_LimitExceeded(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()

	key := ratelimit.Key("print", "127.0.0.1")
	window := 30 * time.Second
	fixedTime := time.UnixMilli(1740730536000)
	windowStart := fixedTime.Add(-window).UnixMilli()
	firstHit := fixedTime.Add(-10 * time.Second)

	mock.ExpectZCount(key, strconv.FormatInt(windowStart, 10), strconv.FormatInt(fixedTime.UnixMilli(), 10)).SetVal(1)
	mock.ExpectZRangeWithScores(key, 0, 0).SetVal([]redis.Z{
		{Score: float64(firstHit.UnixMilli()), Member: "first"},
	})

	limiter := ratelimit.NewSlidingWindowLimiter(redisMock, 1, window, &ratelimit.Opts{
		TimeProvider: func() time.Time { return fixedTime },
	})

	decision, err := limiter.Allow(context.Background(), "print", "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 20*time.Second, decision.RetryAfter)
	assert.Equal(t, 20, decision.RetryAfterSeconds())
	assert.Equal(t, firstHit.Add(window), decision.ResetAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlidingWindowLimiter_Allow_RedisError(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()

	key := ratelimit.Key("print", "127.0.0.1")
	fixedTime := time.UnixMilli(1740730536000)
	windowStart := fixedTime.Add(-time.Minute).UnixMilli()
	mock.ExpectZCount(key, strconv.FormatInt(windowStart, 10), strconv.FormatInt(fixedTime.UnixMilli(), 10)).
		SetErr(errors.New("connection refused"))

	limiter := ratelimit.NewSlidingWindowLimiter(redisMock, 1, time.Minute, &ratelimit.Opts{
		TimeProvider: func() time.Time { return fixedTime },
	})

	decision, err := limiter.Allow(context.Background(), "print", "127.0.0.1")
	assert.Nil(t, decision)
	assert.ErrorContains(t, err, "connection refused")
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, (&ratelimit.Decision{RetryAfter: 0}).RetryAfterSeconds())
	assert.Equal(t, 2, (&ratelimit.Decision{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 30, (&ratelimit.Decision{RetryAfter: 30 * time.Second}).RetryAfterSeconds())
}
