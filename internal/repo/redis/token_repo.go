package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const revokedPrefix = "revoked_sid:"

// TokenRepo holds the set of revoked session identifiers. Access tokens carry
// a sid claim; a revoked sid invalidates every token minted for it.
type TokenRepo struct {
	client *goredis.Client
}

func NewTokenRepo(client *goredis.Client) *TokenRepo {
	return &TokenRepo{client: client}
}

func (r *TokenRepo) Revoke(ctx context.Context, sid string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(sid) == "" {
		return fmt.Errorf("sid is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if err := r.client.Set(ctx, revokedPrefix+sid, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke sid: %w", err)
	}
	return nil
}

func (r *TokenRepo) IsRevoked(ctx context.Context, sid string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(sid) == "" {
		return false, fmt.Errorf("sid is required")
	}

	_, err := r.client.Get(ctx, revokedPrefix+sid).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked sid: %w", err)
	}
	return true, nil
}
