package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

type UserRecord struct {
	ID               int64
	IsPremium        bool
	ActiveMatchCount int
	CreatedAt        time.Time
}

func (r *UserRepo) Get(ctx context.Context, userID int64) (UserRecord, error) {
	if userID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var rec UserRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, is_premium, active_match_count, created_at
FROM users
WHERE id = $1
`, userID).Scan(
		&rec.ID,
		&rec.IsPremium,
		&rec.ActiveMatchCount,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}

	return rec, nil
}

// ReserveMatchSlot increments the user's active-match counter only while it
// is under the cap (premium users are unbounded). Check and increment are a
// single conditional update, so two concurrent match creations cannot both
// slip past the cap.
func (r *UserRepo) ReserveMatchSlot(ctx context.Context, tx pgx.Tx, userID int64, cap int) (bool, error) {
	if userID <= 0 || cap <= 0 {
		return false, fmt.Errorf("invalid match slot payload")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	var count int
	err := tx.QueryRow(ctx, `
UPDATE users
SET active_match_count = active_match_count + 1
WHERE id = $1 AND (is_premium OR active_match_count < $2)
RETURNING active_match_count
`, userID, cap).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var one int
			existsErr := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
			if existsErr != nil {
				if errors.Is(existsErr, pgx.ErrNoRows) {
					return false, ErrUserNotFound
				}
				return false, fmt.Errorf("check user exists: %w", existsErr)
			}
			return false, nil
		}
		return false, fmt.Errorf("reserve match slot: %w", err)
	}

	return count > 0, nil
}

func (r *UserRepo) ReleaseMatchSlot(ctx context.Context, tx pgx.Tx, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
UPDATE users
SET active_match_count = GREATEST(active_match_count - 1, 0)
WHERE id = $1
`, userID); err != nil {
		return fmt.Errorf("release match slot: %w", err)
	}

	return nil
}
