package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter admits or rejects a request. A rejection carries the wait
// before a retry could succeed.
type rateLimiter interface {
	Admit() (bool, time.Duration)
}

// WithRateLimit configures the token bucket shared by every route.
// A zero rate and burst disables limiting.
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if ratePerSecond <= 0 && burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucket(ratePerSecond, burst)
	}
}

type tokenBucket struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func newTokenBucket(ratePerSecond float64, burst int) *tokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		now:     time.Now,
	}
}

// Admit takes a token when one is available. Otherwise the reservation is
// returned to the bucket and its delay reported.
func (b *tokenBucket) Admit() (bool, time.Duration) {
	now := b.now()
	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	reservation.CancelAt(now)
	return false, delay
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := limiter.Admit()
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		metricThrottled.Inc()
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeError(w, http.StatusTooManyRequests, "Too many requests",
			"rate limit exceeded for "+r.URL.Path, "retry after the interval in the Retry-After header")
	})
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) string {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
