package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
)

const (
	keyPrefix  = "contactkeeper:user:"
	entryTTL   = 5 * time.Minute
	callBudget = 250 * time.Millisecond
)

// RedisIdentity is a Redis-backed Identity cache.
type RedisIdentity struct {
	client *redis.Client
	logger logging.Logger
}

// NewRedisIdentity connects to Redis at addr and verifies the connection.
func NewRedisIdentity(addr string, logger logging.Logger) (*RedisIdentity, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisIdentity{
		client: client,
		logger: logger.With("module", "identity_cache"),
	}, nil
}

func (c *RedisIdentity) Get(ctx context.Context, userID string) (*models.User, bool) {
	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	raw, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn(ctx, "cache get failed", "error", err)
		}
		return nil, false
	}

	user := &models.User{}
	if err := json.Unmarshal(raw, user); err != nil {
		c.logger.Warn(ctx, "cache entry corrupted", "user_id", userID)
		_ = c.client.Del(ctx, keyPrefix+userID).Err()
		return nil, false
	}
	return user, true
}

func (c *RedisIdentity) Set(ctx context.Context, user *models.User) {
	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	raw, err := json.Marshal(user)
	if err != nil {
		c.logger.Warn(ctx, "cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+user.ID, raw, entryTTL).Err(); err != nil {
		c.logger.Warn(ctx, "cache set failed", "error", err)
	}
}

func (c *RedisIdentity) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	if err := c.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		c.logger.Warn(ctx, "cache invalidate failed", "error", err)
	}
}

// Close releases the underlying Redis connection.
func (c *RedisIdentity) Close() error {
	return c.client.Close()
}
