package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrAlreadyClaimed = errors.New("idempotency key already claimed")

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key identifies one consumed broker message.
func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// PaymentKey identifies one payment submission attempt of a session.
func (s *Store) PaymentKey(sessionID string, attempt int) string {
	return fmt.Sprintf("idem:payment:%s:%d", sessionID, attempt)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Release forgets a key so a later Seen or Claim succeeds again.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Claim records value under key unless the key is already held. It returns
// ErrAlreadyClaimed when another caller got there first.
func (s *Store) Claim(ctx context.Context, key, value string) error {
	ok, err := s.rdb.SetNX(ctx, key, value, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

// Holder returns the value a key was claimed with, or "" when unclaimed.
func (s *Store) Holder(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
