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

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchClosed   = errors.New("match is closed")
)

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

type MatchRecord struct {
	ID            int64
	UserAID       int64
	UserBID       int64
	MessageCount  int
	BlurPercent   float64
	WarningShown  bool
	ConsentA      bool
	ConsentB      bool
	IsActive      bool
	ChannelID     string
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}

const matchColumns = `
id, user_a_id, user_b_id, message_count, blur_percent, warning_shown,
consent_a, consent_b, is_active, COALESCE(channel_id, ''), created_at, deactivated_at`

func scanMatch(row pgx.Row) (MatchRecord, error) {
	var rec MatchRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserAID,
		&rec.UserBID,
		&rec.MessageCount,
		&rec.BlurPercent,
		&rec.WarningShown,
		&rec.ConsentA,
		&rec.ConsentB,
		&rec.IsActive,
		&rec.ChannelID,
		&rec.CreatedAt,
		&rec.DeactivatedAt,
	)
	return rec, err
}

func orderPair(userID, targetID int64) (int64, int64) {
	if userID > targetID {
		return targetID, userID
	}
	return userID, targetID
}

// Insert creates an active match for the pair, starting fully blurred. The
// partial unique index on (user_a_id, user_b_id) WHERE is_active makes
// duplicate creation impossible: on conflict the existing active match is
// returned and created is false.
func (r *MatchRepo) Insert(ctx context.Context, tx pgx.Tx, userID, targetID int64, now time.Time) (MatchRecord, bool, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return MatchRecord{}, false, fmt.Errorf("invalid match payload")
	}
	if tx == nil {
		return MatchRecord{}, false, fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userA, userB := orderPair(userID, targetID)

	rec, err := scanMatch(tx.QueryRow(ctx, `
INSERT INTO matches (
	user_a_id,
	user_b_id,
	message_count,
	blur_percent,
	warning_shown,
	consent_a,
	consent_b,
	is_active,
	created_at
) VALUES ($1, $2, 0, 100, FALSE, FALSE, FALSE, TRUE, $3)
ON CONFLICT (user_a_id, user_b_id) WHERE is_active DO NOTHING
RETURNING `+matchColumns, userA, userB, now.UTC()))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return MatchRecord{}, false, fmt.Errorf("insert match: %w", err)
	}

	existing, err := scanMatch(tx.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE user_a_id = $1 AND user_b_id = $2 AND is_active
`, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, ErrMatchNotFound
		}
		return MatchRecord{}, false, fmt.Errorf("load existing match: %w", err)
	}

	return existing, false, nil
}

func (r *MatchRepo) GetByID(ctx context.Context, matchID int64) (MatchRecord, error) {
	if matchID <= 0 {
		return MatchRecord{}, fmt.Errorf("invalid match id")
	}
	if r.pool == nil {
		return MatchRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec, err := scanMatch(r.pool.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE id = $1
`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, ErrMatchNotFound
		}
		return MatchRecord{}, fmt.Errorf("get match: %w", err)
	}

	return rec, nil
}

// GetByIDForUpdate loads the match row with a row lock so consent decisions
// and deactivation serialize per match.
func (r *MatchRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (MatchRecord, error) {
	if matchID <= 0 {
		return MatchRecord{}, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return MatchRecord{}, fmt.Errorf("transaction is required")
	}

	rec, err := scanMatch(tx.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE id = $1
FOR UPDATE
`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, ErrMatchNotFound
		}
		return MatchRecord{}, fmt.Errorf("get match for update: %w", err)
	}

	return rec, nil
}

// GetByChannelID resolves a messaging channel back to its match. Used by the
// provider webhook, which only knows the channel identifier.
func (r *MatchRepo) GetByChannelID(ctx context.Context, channelID string) (MatchRecord, error) {
	if strings.TrimSpace(channelID) == "" {
		return MatchRecord{}, fmt.Errorf("invalid channel id")
	}
	if r.pool == nil {
		return MatchRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec, err := scanMatch(r.pool.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE channel_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, ErrMatchNotFound
		}
		return MatchRecord{}, fmt.Errorf("get match by channel: %w", err)
	}

	return rec, nil
}

func (r *MatchRepo) ListActiveForUser(ctx context.Context, userID int64, limit int) ([]MatchRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 {
		limit = 100
	}
	if r.pool == nil {
		return []MatchRecord{}, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE (user_a_id = $1 OR user_b_id = $1) AND is_active
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	defer rows.Close()

	items := make([]MatchRecord, 0, limit)
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active match: %w", err)
		}
		items = append(items, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate active matches: %w", rows.Err())
	}

	return items, nil
}

// IncrementMessageCount bumps the counter on an active match and returns the
// resulting state. The WHERE is_active guard keeps closed matches immutable.
func (r *MatchRepo) IncrementMessageCount(ctx context.Context, tx pgx.Tx, matchID int64) (MatchRecord, error) {
	if matchID <= 0 {
		return MatchRecord{}, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return MatchRecord{}, fmt.Errorf("transaction is required")
	}

	rec, err := scanMatch(tx.QueryRow(ctx, `
UPDATE matches
SET message_count = message_count + 1
WHERE id = $1 AND is_active
RETURNING `+matchColumns, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, r.closedOrMissing(ctx, tx, matchID)
		}
		return MatchRecord{}, fmt.Errorf("increment message count: %w", err)
	}

	return rec, nil
}

// UpdateReveal persists a recomputed blur value and, when the warning fires,
// flips warning_shown and clears both consent flags in the same statement.
func (r *MatchRepo) UpdateReveal(ctx context.Context, tx pgx.Tx, matchID int64, blurPercent float64, warningShown, resetConsent bool) error {
	if matchID <= 0 || blurPercent < 0 || blurPercent > 100 {
		return fmt.Errorf("invalid reveal update payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	result, err := tx.Exec(ctx, `
UPDATE matches
SET
	blur_percent = $2,
	warning_shown = $3,
	consent_a = CASE WHEN $4 THEN FALSE ELSE consent_a END,
	consent_b = CASE WHEN $4 THEN FALSE ELSE consent_b END
WHERE id = $1 AND is_active
`, matchID, blurPercent, warningShown, resetConsent)
	if err != nil {
		return fmt.Errorf("update reveal state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.closedOrMissing(ctx, tx, matchID)
	}

	return nil
}

// SetConsent records one side's consent and returns both flags.
func (r *MatchRepo) SetConsent(ctx context.Context, tx pgx.Tx, matchID int64, sideA, agreed bool) (consentA, consentB bool, err error) {
	if matchID <= 0 {
		return false, false, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return false, false, fmt.Errorf("transaction is required")
	}

	err = tx.QueryRow(ctx, `
UPDATE matches
SET
	consent_a = CASE WHEN $2 THEN $3 ELSE consent_a END,
	consent_b = CASE WHEN $2 THEN consent_b ELSE $3 END
WHERE id = $1 AND is_active
RETURNING consent_a, consent_b
`, matchID, sideA, agreed).Scan(&consentA, &consentB)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, r.closedOrMissing(ctx, tx, matchID)
		}
		return false, false, fmt.Errorf("set consent: %w", err)
	}

	return consentA, consentB, nil
}

// Deactivate flips the match to inactive. Returns false when the match was
// already inactive, making repeated deactivation a no-op.
func (r *MatchRepo) Deactivate(ctx context.Context, tx pgx.Tx, matchID int64, now time.Time) (bool, error) {
	if matchID <= 0 {
		return false, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := tx.Exec(ctx, `
UPDATE matches
SET is_active = FALSE, deactivated_at = $2
WHERE id = $1 AND is_active
`, matchID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("deactivate match: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// SetChannelID stores the messaging channel identifier. Runs on the pool, not
// a transaction: channel creation is best-effort after the match commit.
func (r *MatchRepo) SetChannelID(ctx context.Context, matchID int64, channelID string) error {
	if matchID <= 0 || strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("invalid channel id payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE matches
SET channel_id = $2
WHERE id = $1
`, matchID, channelID); err != nil {
		return fmt.Errorf("set match channel id: %w", err)
	}

	return nil
}

func (r *MatchRepo) closedOrMissing(ctx context.Context, tx pgx.Tx, matchID int64) error {
	var isActive bool
	err := tx.QueryRow(ctx, `
SELECT is_active
FROM matches
WHERE id = $1
`, matchID).Scan(&isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("check match state: %w", err)
	}
	if !isActive {
		return ErrMatchClosed
	}
	return ErrMatchNotFound
}
