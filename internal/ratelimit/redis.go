package ratelimit

import (
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

// RedisLimiter shares the fixed-window budget across instances via Redis
// INCR+EXPIRE. Redis failures fail open: a broken limiter must not take the
// API down.
type RedisLimiter struct {
	pool   *redis.Pool
	limit  int
	period time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter for the given URL
// (redis://...).
func NewRedisLimiter(url string, limit int, period time.Duration) *RedisLimiter {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
	}
	return &RedisLimiter{pool: pool, limit: limit, period: period}
}

// Allow increments the key's window counter and checks the budget.
func (l *RedisLimiter) Allow(key string) bool {
	conn := l.pool.Get()
	defer conn.Close()

	redisKey := "ratelimit:" + key
	count, err := redis.Int(conn.Do("INCR", redisKey))
	if err != nil {
		log.Warn().Err(err).Msg("rate limiter redis INCR failed, failing open")
		return true
	}
	if count == 1 {
		if _, err := conn.Do("EXPIRE", redisKey, int(l.period.Seconds())); err != nil {
			log.Warn().Err(err).Msg("rate limiter redis EXPIRE failed")
		}
	}
	return count <= l.limit
}

// Close releases the connection pool.
func (l *RedisLimiter) Close() error {
	return l.pool.Close()
}
