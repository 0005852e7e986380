package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSwipeNotFound = errors.New("swipe not found")

type SwipeRepo struct {
	pool *pgxpool.Pool
}

func NewSwipeRepo(pool *pgxpool.Pool) *SwipeRepo {
	return &SwipeRepo{pool: pool}
}

type SwipeRecord struct {
	ID           int64
	SwiperUserID int64
	TargetUserID int64
	Direction    string
	CreatedAt    time.Time
}

func (r *SwipeRepo) Create(ctx context.Context, tx pgx.Tx, swiperUserID, targetUserID int64, direction string, now time.Time) (SwipeRecord, error) {
	if swiperUserID <= 0 || targetUserID <= 0 || strings.TrimSpace(direction) == "" {
		return SwipeRecord{}, fmt.Errorf("invalid swipe payload")
	}
	if tx == nil {
		return SwipeRecord{}, fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var rec SwipeRecord
	err := tx.QueryRow(ctx, `
INSERT INTO swipes (
	swiper_user_id,
	target_user_id,
	direction,
	created_at
) VALUES ($1, $2, $3, $4)
RETURNING id, swiper_user_id, target_user_id, direction, created_at
`, swiperUserID, targetUserID, strings.ToLower(strings.TrimSpace(direction)), now.UTC()).Scan(
		&rec.ID,
		&rec.SwiperUserID,
		&rec.TargetUserID,
		&rec.Direction,
		&rec.CreatedAt,
	)
	if err != nil {
		return SwipeRecord{}, fmt.Errorf("create swipe: %w", err)
	}

	return rec, nil
}

// HasReciprocalRight reports whether targetUserID has already right-swiped
// swiperUserID. Runs inside the caller's transaction so the mutual-like
// decision and the match insert observe the same snapshot.
func (r *SwipeRepo) HasReciprocalRight(ctx context.Context, tx pgx.Tx, swiperUserID, targetUserID int64) (bool, error) {
	if swiperUserID <= 0 || targetUserID <= 0 {
		return false, fmt.Errorf("invalid reciprocal lookup payload")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	var one int
	err := tx.QueryRow(ctx, `
SELECT 1
FROM swipes
WHERE swiper_user_id = $1 AND target_user_id = $2 AND direction = 'right'
LIMIT 1
`, targetUserID, swiperUserID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup reciprocal right swipe: %w", err)
	}

	return true, nil
}

// CountSince counts swipes made by the user at or after the given instant.
// Used for the trailing-24h daily cap.
func (r *SwipeRepo) CountSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM swipes
WHERE swiper_user_id = $1 AND created_at >= $2
`, userID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent swipes: %w", err)
	}

	return count, nil
}
