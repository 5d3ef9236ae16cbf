package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// Key layout shared by every cache tier.
const (
	reviewPrefix    = "review:"
	localizedPrefix = "localized:"
	aliasPrefix     = "product:alias:"
	ratePrefix      = "rate-limit:"
	healthKey       = "health:ping"
)

// ReviewKey is the base-language cache key for a product.
func ReviewKey(slug string) string { return reviewPrefix + slug }

// LocalizedKey is the per-language cache key for a product.
func LocalizedKey(slug, languageCode string) string {
	return localizedPrefix + slug + ":" + languageCode
}

// AliasKey maps a transcript slug to its canonical product slug.
func AliasKey(transcriptSlug string) string { return aliasPrefix + transcriptSlug }

// RateKey is the counter key for one caller.
func RateKey(callerHash string) string { return ratePrefix + callerHash }

// Store implements the review cache, rate counter, and health probe on Redis.
type Store struct {
	client *redis.Client
	ttl    config.CacheConfig
	logger *slog.Logger
}

var (
	_ ports.ReviewCache   = (*Store)(nil)
	_ ports.RateCounter   = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// NewClient opens a Redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewStore wraps a Redis client.
func NewStore(client *redis.Client, ttl config.CacheConfig, logger *slog.Logger) *Store {
	return &Store{client: client, ttl: ttl, logger: logger}
}

// GetReview loads the base review for a slug.
func (s *Store) GetReview(ctx context.Context, slug string) (*domain.CachedReview, error) {
	var entry domain.CachedReview
	found, err := s.getJSON(ctx, ReviewKey(slug), &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

// SetReview stores the base review for a slug.
func (s *Store) SetReview(ctx context.Context, slug string, review domain.CachedReview) error {
	return s.setJSON(ctx, ReviewKey(slug), review, s.ttl.ReviewTTL)
}

// GetLocalized loads the localized review for a slug and language.
func (s *Store) GetLocalized(ctx context.Context, slug, languageCode string) (*domain.CachedLocalized, error) {
	var entry domain.CachedLocalized
	found, err := s.getJSON(ctx, LocalizedKey(slug, languageCode), &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

// SetLocalized stores the localized review for a slug and language.
func (s *Store) SetLocalized(ctx context.Context, slug, languageCode string, entry domain.CachedLocalized) error {
	return s.setJSON(ctx, LocalizedKey(slug, languageCode), entry, s.ttl.LocalizedTTL)
}

// GetAlias resolves a transcript slug to a product slug.
func (s *Store) GetAlias(ctx context.Context, transcriptSlug string) (string, error) {
	value, err := s.client.Get(ctx, AliasKey(transcriptSlug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get alias: %w", err)
	}
	return value, nil
}

// SetAlias records the canonical slug for a transcript slug.
func (s *Store) SetAlias(ctx context.Context, transcriptSlug, slug string) error {
	if err := s.client.Set(ctx, AliasKey(transcriptSlug), slug, s.ttl.AliasTTL).Err(); err != nil {
		return fmt.Errorf("set alias: %w", err)
	}
	return nil
}

// Increment bumps the caller counter. The window starts on the first hit.
func (s *Store) Increment(ctx context.Context, callerHash string, window time.Duration) (int64, time.Duration, error) {
	key := RateKey(callerHash)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// A key that lost its expiry would never reset.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
		ttl = window
	}
	return count, ttl, nil
}

// Ping writes, reads, and deletes a probe key.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Set(ctx, healthKey, "ok", 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if _, err := s.client.Get(ctx, healthKey).Result(); err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	if err := s.client.Del(ctx, healthKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.warn("drop undecodable cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
