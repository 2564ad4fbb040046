package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedeemedTTL = 30 * 24 * time.Hour

// RedeemedCoupons keeps coupon codes an owner redeemed outside the checkout, such
// as from a promotional popup, in one set per owner.
type RedeemedCoupons struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedeemedCoupons(rdb *redis.Client, ttl time.Duration) *RedeemedCoupons {
	if ttl <= 0 {
		ttl = DefaultRedeemedTTL
	}
	return &RedeemedCoupons{rdb: rdb, ttl: ttl}
}

func key(owner string) string {
	return "coupons:redeemed:" + owner
}

func (s *RedeemedCoupons) Load(ctx context.Context, owner string) ([]string, error) {
	return s.rdb.SMembers(ctx, key(owner)).Result()
}

func (s *RedeemedCoupons) Remember(ctx context.Context, owner, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key(owner), code)
	pipe.Expire(ctx, key(owner), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedeemedCoupons) Forget(ctx context.Context, owner, code string) error {
	return s.rdb.SRem(ctx, key(owner), strings.ToUpper(strings.TrimSpace(code))).Err()
}
