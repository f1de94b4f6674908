package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	httprateredis "github.com/go-chi/httprate-redis"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	RequestLimit   int
	WindowDuration time.Duration
	RedisURL       string
}

// RateLimiter wraps the rate limiting middleware with a cleanup function.
type RateLimiter struct {
	Handler     func(next http.Handler) http.Handler
	redisClient *redis.Client
}

// RateLimit returns a per-IP rate limiter. When RedisURL is set the counter
// is shared across instances via Redis.
func RateLimit(config RateLimitConfig) (*RateLimiter, error) {
	if config.RequestLimit == 0 {
		config.RequestLimit = 100
	}
	if config.WindowDuration == 0 {
		config.WindowDuration = time.Minute
	}

	limitHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`))
	}

	options := []httprate.Option{
		httprate.WithLimitHandler(limitHandler),
		httprate.WithKeyByRealIP(),
	}

	var redisClient *redis.Client
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, err
		}
		redisClient = redis.NewClient(opts)

		options = append(options, httprateredis.WithRedisLimitCounter(&httprateredis.Config{
			Client:    redisClient,
			PrefixKey: "docsurf:ratelimit",
		}))
	}

	rateLimiter := httprate.NewRateLimiter(config.RequestLimit, config.WindowDuration, options...)

	return &RateLimiter{
		Handler:     rateLimiter.Handler,
		redisClient: redisClient,
	}, nil
}

// Close releases resources held by the rate limiter (e.g., Redis connection).
func (rl *RateLimiter) Close() error {
	if rl.redisClient != nil {
		return rl.redisClient.Close()
	}
	return nil
}

// recoverer converts handler panics into the JSON error envelope instead of
// a dropped connection. Stack exposure is gated by configuration.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				return
			}

			stack := string(debug.Stack())
			s.logger.Error("panic in handler", "panic", rec, "stack", stack)

			body := errorBody{Code: "INTERNAL_ERROR", Message: "internal error"}
			if s.cfg.ExposeErrorStack {
				body.Stack = stack
			}
			s.sendJSON(w, errorResponse{
				Success:   false,
				RequestID: middleware.GetReqID(r.Context()),
				Error:     body,
			}, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
