// Package ratelimit implements a Redis fixed-window limiter for HTTP routes.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/metrics"
)

const (
	DefaultWindow = time.Minute
	DefaultMax    = 60
	keyPrefix     = "rate:"
)

// Options tunes the limiter. Zero values fall back to defaults.
type Options struct {
	Window time.Duration
	Max    int
	Now    func() time.Time
}

// Result describes the state of one window after a hit.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts hits per client and route in Redis.
type Limiter struct {
	client  redis.Cmdable
	window  time.Duration
	max     int
	now     func() time.Time
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New returns a Limiter.
func New(client redis.Cmdable, opts Options, rec *metrics.Recorder, logger *zap.Logger) *Limiter {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		client:  client,
		window:  opts.Window,
		max:     opts.Max,
		now:     opts.Now,
		metrics: rec,
		logger:  logger.Named("ratelimit"),
	}
}

// Key builds the counter key for a client, method and path.
func Key(client, method, path string) string {
	return keyPrefix + client + ":" + strings.ToUpper(method) + ":" + path
}

// Hit counts one request against key.
func (l *Limiter) Hit(ctx context.Context, key string) (Result, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: pttl: %w", err)
	}
	if ttl < 0 {
		// key lost its expiry, start a fresh window
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: expire: %w", err)
		}
		ttl = l.window
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetIn:   ttl,
	}, nil
}

// Middleware limits requests per client. clientID returns the authenticated
// identity or "" to fall back to the remote IP. Redis failures let requests through.
func (l *Limiter) Middleware(clientID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ""
			if clientID != nil {
				client = clientID(r)
			}
			if client == "" {
				client = "ip:" + remoteIP(r)
			} else {
				client = "user:" + client
			}

			res, err := l.Hit(r.Context(), Key(client, r.Method, r.URL.Path))
			if err != nil {
				l.logger.Warn("rate limit unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			// reset is a unix timestamp in seconds
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(ceilSeconds(l.now().Add(res.ResetIn).UnixMilli()), 10))

			if !res.Allowed {
				l.metrics.RateLimited()
				w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(res.ResetIn.Milliseconds()), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Too many requests, please try again later."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ceilSeconds(ms int64) int64 {
	return int64(math.Ceil(float64(ms) / 1000))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
