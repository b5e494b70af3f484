package config

import (
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// NewRedis returns nil when REDIS_URL is unset; callers fall back to the database.
func NewRedis(c RedisConfig, log *slog.Logger) *redis.Client {
	if c.URL == "" {
		log.Warn("REDIS_URL not set, typing state kept in the database")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.URL,
		Password: c.Password,
		DB:       c.DB,
	})
	log.Info("redis initialized", "addr", c.URL)
	return client
}
