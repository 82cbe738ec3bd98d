package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/matst80/unirelay/internal/obs"
	"github.com/redis/go-redis/v9"
)

const (
	identifierKey  = "unirelay:identifier"
	instancePrefix = "unirelay:instance:"
)

// redisStore shares the identifier and connection counts through Redis.
// Instance entries expire on their own when an instance stops refreshing them.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(opts Options) (Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword, DB: opts.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	ttl := opts.EntryTTL
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &redisStore{client: rdb, ttl: ttl}, nil
}

var _ Store = (*redisStore)(nil)

func (r *redisStore) Identifier(ctx context.Context, candidate string) (string, error) {
	if candidate != "" {
		if _, err := r.client.SetNX(ctx, identifierKey, candidate, 0).Result(); err != nil {
			return "", fmt.Errorf("redis setnx identifier: %w", err)
		}
	}
	id, err := r.client.Get(ctx, identifierKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return candidate, nil
		}
		return "", fmt.Errorf("redis get identifier: %w", err)
	}
	return id, nil
}

func (r *redisStore) Publish(ctx context.Context, instanceID string, connections int) error {
	if err := r.client.Set(ctx, instancePrefix+instanceID, connections, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *redisStore) Withdraw(ctx context.Context, instanceID string) error {
	if err := r.client.Del(ctx, instancePrefix+instanceID).Err(); err != nil {
		return fmt.Errorf("redis withdraw: %w", err)
	}
	return nil
}

func (r *redisStore) ClusterConnections(ctx context.Context) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, instancePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis mget: %w", err)
	}
	total := 0
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			obs.Error("redis.cluster.parse", obs.Fields{"key": keys[i], "err": err.Error()})
			continue
		}
		total += n
	}
	return total, nil
}

func (r *redisStore) Close() error { return r.client.Close() }
