package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrLimiterOffline = errors.New("upload limiter has no redis connection")

// uploadWindow is one sliding window an upload must fit into.
type uploadWindow struct {
	scope string
	limit int
	span  time.Duration
}

// UploadLimiter throttles resume uploads with Redis sorted-set windows: one
// per client IP, one per job.
type UploadLimiter struct {
	client *goredis.Client
	perIP  uploadWindow
	perJob uploadWindow
	now    func() time.Time
}

// slidingWindow drops members older than the window, then admits the new
// member if the set is still under the limit. Returns 1 when admitted.
var slidingWindow = goredis.NewScript(`
local key, limit, span, now = KEYS[1], tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - span)
if redis.call('ZCARD', key) >= limit then
    return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('EXPIRE', key, span)
return 1
`)

// NewUploadLimiter allows perMin uploads per IP each minute and perDay
// uploads per job each day. A nil client admits everything.
func NewUploadLimiter(client *goredis.Client, perMin, perDay int) *UploadLimiter {
	if perMin <= 0 {
		perMin = 10
	}
	if perDay <= 0 {
		perDay = 200
	}
	return &UploadLimiter{
		client: client,
		perIP:  uploadWindow{scope: "ip", limit: perMin, span: time.Minute},
		perJob: uploadWindow{scope: "job", limit: perDay, span: 24 * time.Hour},
		now:    time.Now,
	}
}

// AllowUpload reports whether the upload fits both windows and, if not, how
// many seconds to wait. Redis failures reject the upload; a missing client
// admits it and returns ErrLimiterOffline.
func (ul *UploadLimiter) AllowUpload(ctx context.Context, ip string, jobID int64) (bool, int, error) {
	if ul.client == nil {
		return true, 0, ErrLimiterOffline
	}
	now := ul.now()
	checks := []struct {
		w     uploadWindow
		id    string
		retry int
	}{
		{ul.perIP, ip, 60},
		{ul.perJob, fmt.Sprint(jobID), 3600},
	}
	for _, ch := range checks {
		ok, err := ul.admit(ctx, ch.w, ch.id, now)
		if err != nil {
			return false, ch.retry, fmt.Errorf("upload window %s: %w", ch.w.scope, err)
		}
		if !ok {
			return false, ch.retry, nil
		}
	}
	return true, 0, nil
}

func (ul *UploadLimiter) admit(ctx context.Context, w uploadWindow, id string, now time.Time) (bool, error) {
	key := fmt.Sprintf("ratelimit:upload:%s:%s", w.scope, id)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), id)
	n, err := slidingWindow.Run(ctx, ul.client, []string{key},
		w.limit, int(w.span.Seconds()), now.Unix(), member).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
