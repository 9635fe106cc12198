package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(addr, password string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func GetTemplate(ctx context.Context, rdb *redis.Client, id string) ([]byte, error) {
	key := fmt.Sprintf("template:%s", id)
	return rdb.Get(ctx, key).Bytes()
}

func SetTemplate(ctx context.Context, rdb *redis.Client, id string, template interface{}, ttl time.Duration) error {
	key := fmt.Sprintf("template:%s", id)
	data, err := json.Marshal(template)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

func DeleteTemplate(ctx context.Context, rdb *redis.Client, id string) error {
	key := fmt.Sprintf("template:%s", id)
	return rdb.Del(ctx, key).Err()
}
