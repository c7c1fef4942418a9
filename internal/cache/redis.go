package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Redis is a Cache backed by a Redis server. Calls go through a circuit
// breaker; while it is open, Get reports a miss and Set is skipped.
type Redis struct {
	client  redis.Cmdable
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// RedisOption configures NewRedis
type RedisOption func(*Redis)

// WithLogger sets the logger used for breaker state changes
func WithLogger(l zerolog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// WithBreakerSettings replaces the default breaker settings
func WithBreakerSettings(st gobreaker.Settings) RedisOption {
	return func(r *Redis) { r.breaker = newBreaker(st, r) }
}

// NewRedis wraps client; keys are prefixed with prefix
func NewRedis(client redis.Cmdable, prefix string, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: prefix,
		logger: log.Logger,
	}
	r.breaker = newBreaker(DefaultBreakerSettings("redis"), r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultBreakerSettings trips after three consecutive failures or a 5%
// failure rate over at least 20 requests.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
}

func newBreaker(st gobreaker.Settings, r *Redis) *gobreaker.CircuitBreaker {
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, redis.Nil)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("cache breaker state changed")
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Get implements Cache
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Get(ctx, r.prefix+key).Bytes()
	})
	switch {
	case err == nil:
		return res.([]byte), true, nil
	case errors.Is(err, redis.Nil), isOpen(err):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
}

// Set implements Cache
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.prefix+key, val, ttl).Err()
	})
	if err != nil && !isOpen(err) {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements Cache. Unlike Get and Set, an open breaker is reported
// so callers know the entry may survive.
func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, r.prefix+key).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// State reports the breaker state
func (r *Redis) State() gobreaker.State {
	return r.breaker.State()
}

func isOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
