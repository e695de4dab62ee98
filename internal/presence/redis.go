package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry keeps connection sets in Redis so any instance can answer
// presence lookups. Keys:
//   <prefix>:conn:<userID>      set of connection ids
//   <prefix>:presence:<userID>  status json
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", r.prefix, userID)
}

func (r *RedisRegistry) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", r.prefix, userID)
}

func (r *RedisRegistry) Register(ctx context.Context, userID, connID string) error {
	if err := r.client.SAdd(ctx, r.connKey(userID), connID).Err(); err != nil {
		return err
	}
	_ = r.client.Expire(ctx, r.connKey(userID), r.ttl).Err()

	b, _ := json.Marshal(Status{Status: "online", LastSeen: time.Now().UTC()})
	return r.client.Set(ctx, r.presenceKey(userID), b, r.ttl).Err()
}

func (r *RedisRegistry) Unregister(ctx context.Context, userID, connID string) error {
	if err := r.client.SRem(ctx, r.connKey(userID), connID).Err(); err != nil {
		return err
	}
	cnt, err := r.client.SCard(ctx, r.connKey(userID)).Result()
	if err != nil {
		return err
	}
	if cnt == 0 {
		b, _ := json.Marshal(Status{Status: "offline", LastSeen: time.Now().UTC()})
		return r.client.Set(ctx, r.presenceKey(userID), b, 0).Err()
	}
	return nil
}

func (r *RedisRegistry) Connections(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, r.connKey(userID)).Result()
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	cnt, err := r.client.SCard(ctx, r.connKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return cnt > 0, nil
}
