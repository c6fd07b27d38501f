package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redissrv "PPInbox/service/storage/redis"
)

// RateLimitResult is the admission decision for one source within the
// current window.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// key: inbox:rl:<source>:<windowStartUnix>
func rateKey(source string, winStart int64) string {
	return "inbox:rl:" + source + ":" + strconv.FormatInt(winStart, 10)
}

// WindowStart aligns now down to the start of the fixed window.
func WindowStart(now time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = time.Minute
	}
	sec := int64(window / time.Second)
	if sec <= 0 {
		sec = 1
	}
	return time.Unix((now.Unix()/sec)*sec, 0)
}

// Allow counts one request for the source against a fixed (limit, window)
// quota. INCR + EXPIRE run in one pipeline so concurrent callers never see
// a key without a TTL.
func Allow(ctx context.Context, source string, limit int64, window time.Duration) (RateLimitResult, error) {
	rdb, ok := redissrv.TryGetRedis()
	if !ok {
		return RateLimitResult{}, fmt.Errorf("redis not initialized")
	}

	now := time.Now()
	ws := WindowStart(now, window)
	key := rateKey(source, ws.Unix())

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimitResult{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   ws.Add(window),
	}, nil
}
