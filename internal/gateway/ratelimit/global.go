package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/promptwire/gateway/internal/gateway/configuration"
	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
)

const (
	redisReadTimeout  = 5 * time.Second
	redisWriteTimeout = 5 * time.Second
	redisPoolSize     = 10

	globalWindowKey  = "gw:ratelimit:global"
	globalWindowSpan = time.Minute
)

// globalWindowScript implements a fixed 60-second counting window in one
// atomic Redis operation: initialize with TTL on first hit, increment while
// under the ceiling, otherwise deny and return the window's remaining TTL.
var globalWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		redis.call('SET', key, 1, 'PX', window)
		return {1, limit - 1}
	end

	local count = tonumber(current)
	if count < limit then
		local newCount = redis.call('INCR', key)
		local ttl = redis.call('PTTL', key)
		if ttl == -1 then
			redis.call('PEXPIRE', key, window)
		end
		return {1, limit - newCount}
	end

	return {0, redis.call('PTTL', key)}
`)

// remoteWindow enforces the process-wide ceiling in Redis so multiple
// gateway instances share one budget. Redis failures flip the degraded
// flag and enforcement falls back to a local token bucket sized to the
// same ceiling; the limiter never blocks traffic on Redis availability.
type remoteWindow struct {
	client   *redis.Client
	degraded atomic.Bool
	fallback *rate.Limiter
	logger   *slog.Logger
}

func newRemoteWindow(cfg configuration.RateLimitConfig, logger *slog.Logger) *remoteWindow {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
		PoolSize:     redisPoolSize,
	})

	w := &remoteWindow{
		client: client,
		logger: logger,
	}

	perSecond := float64(cfg.GlobalCeiling) / globalWindowSpan.Seconds()
	if perSecond <= 0 {
		perSecond = 1
	}
	w.fallback = rate.NewLimiter(rate.Limit(perSecond), cfg.GlobalCeiling)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis connection failed, global window degraded to local", "error", err)
		w.degraded.Store(true)
	}

	return w
}

// check enforces the shared ceiling. Redis infrastructure errors switch to
// degraded mode and the local fallback answers instead; only a genuine
// over-ceiling verdict rejects the request.
func (w *remoteWindow) check(ctx context.Context, callerID string, ceiling int) error {
	if ceiling <= 0 {
		return nil
	}

	if w.degraded.Load() {
		return w.checkFallback(callerID, ceiling)
	}

	result, err := globalWindowScript.Run(ctx, w.client, []string{globalWindowKey},
		globalWindowSpan.Milliseconds(), int64(ceiling)).Result()
	if err != nil {
		if w.isInfraError(err) {
			w.logger.Warn("Redis error, global window degraded to local", "error", err)
			w.degraded.Store(true)
			return w.checkFallback(callerID, ceiling)
		}
		return err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		w.logger.Warn("unexpected Redis response, global window degraded", "response", result)
		w.degraded.Store(true)
		return w.checkFallback(callerID, ceiling)
	}

	allowed, ok := res[0].(int64)
	if !ok {
		w.degraded.Store(true)
		return w.checkFallback(callerID, ceiling)
	}

	if allowed == 0 {
		retryMs, _ := res[1].(int64)
		retry := int(retryMs / 1000)
		if retry < 1 {
			retry = 1
		}
		return &gwerrors.RateLimitError{
			CallerID:   callerID,
			Scope:      "global",
			Limit:      ceiling,
			RetryAfter: retry,
		}
	}

	return nil
}

// checkFallback enforces the ceiling with the local token bucket while
// Redis is unavailable.
func (w *remoteWindow) checkFallback(callerID string, ceiling int) error {
	if w.fallback.Allow() {
		return nil
	}

	reservation := w.fallback.Reserve()
	delay := reservation.Delay()
	reservation.Cancel() // Hint only, do not consume capacity

	return &gwerrors.RateLimitError{
		CallerID:   callerID,
		Scope:      "global",
		Limit:      ceiling,
		RetryAfter: ceilSeconds(delay),
	}
}

// isInfraError distinguishes Redis connectivity problems, which warrant
// degraded mode, from verdicts and application errors, which do not.
func (w *remoteWindow) isInfraError(err error) bool {
	if err == nil {
		return false
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
