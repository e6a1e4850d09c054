// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-dumper-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// PayloadCacheRepository 按 (会话, 角色) 缓存拦截到的两类响应。
// 所有数据只在会话期内有效，Clear 或 TTL 到期后即丢弃。
type PayloadCacheRepository interface {
	Record(ctx context.Context, sessionID, entity string, slot model.Slot, payload json.RawMessage) (*model.CacheEntry, error)
	Get(ctx context.Context, sessionID, entity string) (*model.CacheEntry, error)
	IsComplete(ctx context.Context, sessionID, entity string) (bool, error)
	// MarkExported 为角色设置导出标记，只有第一次调用返回 true。
	MarkExported(ctx context.Context, sessionID, entity string) (bool, error)
	Entities(ctx context.Context, sessionID string) ([]string, error)
	Clear(ctx context.Context, sessionID string) error
}

type redisPayloadCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisPayloadCache 创建一个基于 Redis 的 PayloadCacheRepository。
func NewRedisPayloadCache(redisClient *redis.Client, ttl time.Duration) PayloadCacheRepository {
	return &redisPayloadCache{redisClient: redisClient, ttl: ttl}
}

func entryKey(sessionID, entity string) string {
	return fmt.Sprintf("chatdump:%s:entry:%s", sessionID, entity)
}

func entitiesKey(sessionID string) string {
	return fmt.Sprintf("chatdump:%s:entities", sessionID)
}

func exportedKey(sessionID, entity string) string {
	return fmt.Sprintf("chatdump:%s:exported:%s", sessionID, entity)
}

// Record 用 HSET 写入单个槽位，另一个槽位不受影响。
func (r *redisPayloadCache) Record(ctx context.Context, sessionID, entity string, slot model.Slot, payload json.RawMessage) (*model.CacheEntry, error) {
	key := entryKey(sessionID, entity)
	now := time.Now()
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, string(slot), []byte(payload), "updated_at", now.UnixMilli())
	pipe.SAdd(ctx, entitiesKey(sessionID), entity)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, entitiesKey(sessionID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record %s for %s: %w", slot, entity, err)
	}
	return r.Get(ctx, sessionID, entity)
}

// Get 读取缓存条目，不存在时返回 model.ErrEntryNotFound。
func (r *redisPayloadCache) Get(ctx context.Context, sessionID, entity string) (*model.CacheEntry, error) {
	fields, err := r.redisClient.HGetAll(ctx, entryKey(sessionID, entity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, model.ErrEntryNotFound
	}
	entry := &model.CacheEntry{Entity: entity}
	if v, ok := fields[string(model.SlotInfo)]; ok {
		entry.Info = json.RawMessage(v)
	}
	if v, ok := fields[string(model.SlotHistories)]; ok {
		entry.Histories = json.RawMessage(v)
	}
	var ms int64
	if _, scanErr := fmt.Sscanf(fields["updated_at"], "%d", &ms); scanErr == nil {
		entry.UpdatedAt = time.UnixMilli(ms)
	}
	return entry, nil
}

// IsComplete 只检查两个字段是否存在，避免把整个 payload 读回来。
func (r *redisPayloadCache) IsComplete(ctx context.Context, sessionID, entity string) (bool, error) {
	key := entryKey(sessionID, entity)
	pipe := r.redisClient.Pipeline()
	info := pipe.HExists(ctx, key, string(model.SlotInfo))
	histories := pipe.HExists(ctx, key, string(model.SlotHistories))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check cache entry: %w", err)
	}
	return info.Val() && histories.Val(), nil
}

func (r *redisPayloadCache) MarkExported(ctx context.Context, sessionID, entity string) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, exportedKey(sessionID, entity), time.Now().UnixMilli(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set export marker: %w", err)
	}
	return ok, nil
}

func (r *redisPayloadCache) Entities(ctx context.Context, sessionID string) ([]string, error) {
	members, err := r.redisClient.SMembers(ctx, entitiesKey(sessionID)).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// Clear 删除会话下的所有条目与导出标记。
func (r *redisPayloadCache) Clear(ctx context.Context, sessionID string) error {
	entities, err := r.Entities(ctx, sessionID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(entities)*2+1)
	for _, e := range entities {
		keys = append(keys, entryKey(sessionID, e), exportedKey(sessionID, e))
	}
	keys = append(keys, entitiesKey(sessionID))
	if err := r.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear session cache: %w", err)
	}
	return nil
}
