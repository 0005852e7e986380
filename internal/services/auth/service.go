package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type RevocationStore interface {
	IsRevoked(ctx context.Context, sid string) (bool, error)
	Revoke(ctx context.Context, sid string, ttl time.Duration) error
}

type Service struct {
	jwt     *JWTManager
	revoked RevocationStore
	now     func() time.Time
}

func NewService(jwtManager *JWTManager, revoked RevocationStore) *Service {
	return &Service{
		jwt:     jwtManager,
		revoked: revoked,
		now:     time.Now,
	}
}

func (s *Service) ValidateAccessToken(ctx context.Context, raw string) (AccessClaims, error) {
	if s.jwt == nil {
		return AccessClaims{}, fmt.Errorf("jwt manager is nil")
	}

	claims, err := s.jwt.ParseAccessToken(raw)
	if err != nil {
		return AccessClaims{}, err
	}

	// Revocation check is best-effort: a dead redis must not lock everyone
	// out, an actually revoked sid still expires with the token.
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.SID)
		if err == nil && revoked {
			return AccessClaims{}, ErrUnauthorized
		}
	}

	return claims, nil
}

// RevokeSession invalidates every outstanding token carrying the sid.
func (s *Service) RevokeSession(ctx context.Context, sid string, expiresAt time.Time) error {
	if s.revoked == nil {
		return fmt.Errorf("revocation store is nil")
	}
	if strings.TrimSpace(sid) == "" {
		return ErrInvalidInput
	}

	ttl := time.Until(expiresAt)
	return s.revoked.Revoke(ctx, sid, ttl)
}
