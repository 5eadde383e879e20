package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"clinic_backend/config"

	"github.com/go-redis/redis/v8"
)

// Redis клиент; nil, если Redis отключен или недоступен
var Redis *redis.Client

// InitRedis инициализирует подключение к Redis
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Println("⚠️ Redis отключен конфигурацией")
		return nil, nil
	}

	addr := cfg.URL
	if addr == "" {
		addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConns,
		MinIdleConns: 2,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  300 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	Redis = client
	log.Println("✅ Успешно подключено к Redis")
	return client, nil
}

// CacheSetJSON сохраняет JSON объект в кэш
func CacheSetJSON(ctx context.Context, client *redis.Client, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	return client.Set(ctx, key, jsonData, ttl).Err()
}

// CacheGetJSON получает JSON объект из кэша; при отсутствии ключа возвращает redis.Nil
func CacheGetJSON(ctx context.Context, client *redis.Client, key string, dest interface{}) error {
	jsonData, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("ошибка десериализации JSON: %w", err)
	}
	return nil
}

// CacheDel удаляет значения из кэша
func CacheDel(ctx context.Context, client *redis.Client, keys ...string) error {
	return client.Del(ctx, keys...).Err()
}
