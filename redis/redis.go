package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EquiSaddles/config"

	"github.com/redis/go-redis/v9"
)

const (
	adminsKey    = "chat:presence:admins"
	customersKey = "chat:presence:customers"
	presenceTTL  = 24 * time.Hour
)

type RedisClient struct {
	Client *redis.Client
}

// NewRedisClient 初始化并返回一个新的 RedisClient 实例
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// PING 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis client connection test failed: %w", err)
	}
	return &RedisClient{Client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// PresenceInfo is stored per connection id in the presence hashes.
type PresenceInfo struct {
	SessionID   string    `json:"session_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

type Presence struct {
	Admins    map[string]PresenceInfo `json:"admins"`
	Customers map[string]PresenceInfo `json:"customers"`
}

func (r *RedisClient) MarkAdminOnline(ctx context.Context, connID string, info PresenceInfo) error {
	return r.markOnline(ctx, adminsKey, connID, info)
}

func (r *RedisClient) MarkCustomerOnline(ctx context.Context, connID string, info PresenceInfo) error {
	return r.markOnline(ctx, customersKey, connID, info)
}

func (r *RedisClient) markOnline(ctx context.Context, key, connID string, info PresenceInfo) error {
	value, err := json.Marshal(info)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key, connID, value)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark %s online in %s: %w", connID, key, err)
	}
	return nil
}

// MarkOffline removes connID from both presence hashes.
func (r *RedisClient) MarkOffline(ctx context.Context, connID string) error {
	pipe := r.Client.TxPipeline()
	pipe.HDel(ctx, adminsKey, connID)
	pipe.HDel(ctx, customersKey, connID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark %s offline: %w", connID, err)
	}
	return nil
}

// GetPresence returns every connection known across server instances.
// Entries that fail to decode are skipped.
func (r *RedisClient) GetPresence(ctx context.Context) (Presence, error) {
	admins, err := r.hgetPresence(ctx, adminsKey)
	if err != nil {
		return Presence{}, err
	}
	customers, err := r.hgetPresence(ctx, customersKey)
	if err != nil {
		return Presence{}, err
	}
	return Presence{Admins: admins, Customers: customers}, nil
}

func (r *RedisClient) hgetPresence(ctx context.Context, key string) (map[string]PresenceInfo, error) {
	raw, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presence for key %s: %w", key, err)
	}
	out := make(map[string]PresenceInfo, len(raw))
	for connID, value := range raw {
		var info PresenceInfo
		if json.Unmarshal([]byte(value), &info) == nil {
			out[connID] = info
		}
	}
	return out, nil
}
