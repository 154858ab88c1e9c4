package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"crediario/internal/config"

	"github.com/go-redis/redis/v8"
)

func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	log.Println("Redis 连接成功")
	return client
}

// JSONCache 以 JSON 形式缓存报表等只读数据。client 为 nil 时所有操作都是空操作
type JSONCache struct {
	client *redis.Client
	prefix string
}

func NewJSONCache(client *redis.Client, prefix string) *JSONCache {
	return &JSONCache{client: client, prefix: prefix}
}

// Get 命中返回 true；未命中或 Redis 出错都返回 false，调用方回源
func (c *JSONCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Cache] 读取缓存失败: key=%s, err=%v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("[Cache] 解析缓存失败: key=%s, err=%v", key, err)
		return false
	}
	return true
}

func (c *JSONCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil || c.client == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[Cache] 序列化失败: key=%s, err=%v", key, err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		log.Printf("[Cache] 写入缓存失败: key=%s, err=%v", key, err)
	}
}
