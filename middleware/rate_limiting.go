package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinic_backend/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Requests     int                       // Количество запросов
	Window       time.Duration             // Временное окно
	KeyGenerator func(*gin.Context) string // Генератор ключей
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit создает middleware для ограничения частоты запросов.
// Без Redis или при его ошибках запросы пропускаются.
func RateLimit(client *redis.Client, config RateLimitConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}

	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "rate_limit:" + config.KeyGenerator(c)

		current, err := client.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("rate limit недоступен", "error", err)
			c.Next()
			return
		}

		resetAt := strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10)

		if current >= config.Requests {
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", resetAt)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       fmt.Sprintf("Слишком много запросов. Лимит: %d за %v", config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			return
		}

		pipe := client.Pipeline()
		pipe.Incr(ctx, key)
		if current == 0 {
			// TTL только для первого запроса в окне
			pipe.Expire(ctx, key, config.Window)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.Next()
			return
		}

		remaining := config.Requests - current - 1
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetAt)

		c.Next()
	}
}

// AuthRateLimit ограничение для входа и регистрации
func AuthRateLimit(client *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(client, RateLimitConfig{
		Requests:     requests,
		Window:       window,
		KeyGenerator: func(c *gin.Context) string { return "auth:" + c.ClientIP() },
	})
}
