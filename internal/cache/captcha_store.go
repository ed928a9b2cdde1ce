package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisCaptchaStore holds issued puzzles in Redis with a TTL matching the
// puzzle expiry, so abandoned challenges clean themselves up
type RedisCaptchaStore struct {
	client *redis.Client
}

// NewRedisCaptchaStore creates a Redis-backed captcha store
func NewRedisCaptchaStore(client *redis.Client) *RedisCaptchaStore {
	return &RedisCaptchaStore{client: client}
}

func captchaKey(id string) string {
	return "gatekeeper:captcha:" + id
}

func (s *RedisCaptchaStore) Put(ctx context.Context, puzzle *models.CaptchaPuzzle, ttl time.Duration) error {
	raw, err := json.Marshal(puzzle)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, captchaKey(puzzle.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *RedisCaptchaStore) Get(ctx context.Context, id string) (*models.CaptchaPuzzle, error) {
	raw, err := s.client.Get(ctx, captchaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	var puzzle models.CaptchaPuzzle
	if err := json.Unmarshal(raw, &puzzle); err != nil {
		return nil, err
	}
	return &puzzle, nil
}

func (s *RedisCaptchaStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, captchaKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}
