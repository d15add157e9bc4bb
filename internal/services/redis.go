package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/psv-academy/internal/models"
)

const (
	leaderboardKey    = "psv:leaderboard:xp"
	idempotencyPrefix = "psv:idem:"
	pendingClaim      = "pending"
)

// RedisProvider backs the XP leaderboard and idempotency-key claims
type RedisProvider struct {
	BaseProvider
	client *redis.Client
}

// NewRedisProvider creates a new Redis provider
func NewRedisProvider(address, password string, db int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisProviderFromClient(client), nil
}

// NewRedisProviderFromClient wraps an existing client
func NewRedisProviderFromClient(client *redis.Client) *RedisProvider {
	return &RedisProvider{
		BaseProvider: BaseProvider{serviceType: "redis"},
		client:       client,
	}
}

// SetXP records the profile's total XP in the leaderboard
func (p *RedisProvider) SetXP(ctx context.Context, profileID string, xp int) error {
	if err := p.client.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(xp), Member: profileID}).Err(); err != nil {
		return fmt.Errorf("failed to update leaderboard: %w", err)
	}
	return nil
}

// Remove drops a profile from the leaderboard
func (p *RedisProvider) Remove(ctx context.Context, profileID string) error {
	if err := p.client.ZRem(ctx, leaderboardKey, profileID).Err(); err != nil {
		return fmt.Errorf("failed to remove from leaderboard: %w", err)
	}
	return nil
}

// Top returns the limit highest-XP profiles
func (p *RedisProvider) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	members, err := p.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		id, _ := m.Member.(string)
		entries = append(entries, models.LeaderboardEntry{
			ProfileID: id,
			XP:        int(m.Score),
			Position:  i + 1,
		})
	}
	return entries, nil
}

// Position returns the 1-based leaderboard position of a profile, or 0 when unranked
func (p *RedisProvider) Position(ctx context.Context, profileID string) (int, error) {
	rank, err := p.client.ZRevRank(ctx, leaderboardKey, profileID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard position: %w", err)
	}
	return int(rank) + 1, nil
}

func idempotencyKey(profileID, key string) string {
	return idempotencyPrefix + profileID + ":" + key
}

// Claim reserves an idempotency key. When the key was already used it returns false together with
// the attempt id stored for it (empty while the first request is still in flight).
func (p *RedisProvider) Claim(ctx context.Context, profileID, key string, ttl time.Duration) (bool, string, error) {
	k := idempotencyKey(profileID, key)
	ok, err := p.client.SetNX(ctx, k, pendingClaim, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}

	existing, err := p.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls
		return p.Claim(ctx, profileID, key, ttl)
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if existing == pendingClaim {
		existing = ""
	}
	return false, existing, nil
}

// Complete binds a claimed key to the attempt it produced
func (p *RedisProvider) Complete(ctx context.Context, profileID, key, attemptID string, ttl time.Duration) error {
	if err := p.client.Set(ctx, idempotencyKey(profileID, key), attemptID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release frees a claimed key after a failed submission so the client can retry
func (p *RedisProvider) Release(ctx context.Context, profileID, key string) error {
	if err := p.client.Del(ctx, idempotencyKey(profileID, key)).Err(); err != nil {
		slog.Warn("failed to release idempotency key", "profile_id", profileID, "error", err)
		return err
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (p *RedisProvider) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
