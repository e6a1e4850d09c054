package database

import (
	"context"

	"chat-dumper-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// InitRedis 初始化响应缓存使用的 Redis 客户端。
func InitRedis(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
	return rdb
}
