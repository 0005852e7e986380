package swipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborapp/backend/internal/domain/enums"
	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
	matchessvc "github.com/harborapp/backend/internal/services/matches"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrUnsupportedDirection = errors.New("unsupported swipe direction")
	ErrDailyLimit           = errors.New("daily swipe limit reached")
	ErrTargetNotFound       = errors.New("target user not found")
)

type TooFastError struct {
	RetryAfterSec int64
}

func (e TooFastError) Error() string {
	return "too fast"
}

func (e TooFastError) RetryAfter() int64 {
	if e.RetryAfterSec <= 0 {
		return 1
	}
	return e.RetryAfterSec
}

func IsTooFast(err error) (*TooFastError, bool) {
	var tf TooFastError
	if errors.As(err, &tf) {
		return &tf, true
	}
	return nil, false
}

type SwipeStore interface {
	Create(ctx context.Context, tx pgx.Tx, swiperUserID, targetUserID int64, direction string, now time.Time) (pgrepo.SwipeRecord, error)
	HasReciprocalRight(ctx context.Context, tx pgx.Tx, swiperUserID, targetUserID int64) (bool, error)
	CountSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

type MatchGate interface {
	CanAddMatch(ctx context.Context, userID int64) (bool, error)
	CreateInTx(ctx context.Context, tx pgx.Tx, userA, userB int64) (pgrepo.MatchRecord, bool, error)
	ProvisionChannel(ctx context.Context, rec pgrepo.MatchRecord) string
}

type RateLimiter interface {
	AllowSwipe(ctx context.Context, userID int64) (int64, bool, error)
}

type Config struct {
	// SwipesPerDay is the single daily cap, counted over a trailing
	// 24-hour window.
	SwipesPerDay int
}

type Quota struct {
	Used int
	Cap  int
}

type SwipeResult struct {
	SwipeID       int64
	MatchPossible bool
	Matched       bool
	MatchCreated  bool
	MatchID       int64
	Quota         Quota
}

type Dependencies struct {
	Pool        *pgxpool.Pool
	SwipeStore  SwipeStore
	MatchGate   MatchGate
	RateLimiter RateLimiter
}

type Service struct {
	pool        *pgxpool.Pool
	swipeStore  SwipeStore
	matchGate   MatchGate
	rateLimiter RateLimiter
	cfg         Config
	now         func() time.Time
	runTx       func(context.Context, func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.SwipesPerDay <= 0 {
		cfg.SwipesPerDay = 100
	}

	return &Service{
		pool:        deps.Pool,
		swipeStore:  deps.SwipeStore,
		matchGate:   deps.MatchGate,
		rateLimiter: deps.RateLimiter,
		cfg:         cfg,
		now:         time.Now,
		runTx: func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
			return pgrepo.WithTx(ctx, deps.Pool, fn)
		},
	}
}

// RecordSwipe persists one swipe decision and surfaces match formation.
//
// Checks run in a fixed order before anything is written: burst rate,
// trailing-24h daily cap, then the capacity precheck. A swiper over either
// limit gets an error and no record; a pair without match capacity still gets
// the swipe recorded for history, with match detection short-circuited.
func (s *Service) RecordSwipe(ctx context.Context, swiperID, targetID int64, direction string) (SwipeResult, error) {
	if swiperID <= 0 || targetID <= 0 || swiperID == targetID {
		return SwipeResult{}, ErrValidation
	}
	dir, ok := enums.ParseSwipeDirection(direction)
	if !ok {
		return SwipeResult{}, ErrUnsupportedDirection
	}
	if s.swipeStore == nil || s.matchGate == nil {
		return SwipeResult{}, fmt.Errorf("swipe dependencies are not configured")
	}

	if s.rateLimiter != nil {
		retryAfter, allowed, err := s.rateLimiter.AllowSwipe(ctx, swiperID)
		if err != nil {
			return SwipeResult{}, fmt.Errorf("apply swipe rate limiter: %w", err)
		}
		if !allowed {
			return SwipeResult{}, TooFastError{RetryAfterSec: retryAfter}
		}
	}

	now := s.now().UTC()
	used, err := s.swipeStore.CountSince(ctx, swiperID, now.Add(-24*time.Hour))
	if err != nil {
		return SwipeResult{}, err
	}
	if used >= s.cfg.SwipesPerDay {
		return SwipeResult{}, ErrDailyLimit
	}

	matchPossible, err := s.pairHasCapacity(ctx, swiperID, targetID)
	if err != nil {
		return SwipeResult{}, err
	}

	result := SwipeResult{
		MatchPossible: matchPossible && dir == enums.SwipeDirectionRight,
		Quota:         Quota{Used: used + 1, Cap: s.cfg.SwipesPerDay},
	}

	var matchRec pgrepo.MatchRecord
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.swipeStore.Create(txCtx, tx, swiperID, targetID, string(dir), now)
		if err != nil {
			return err
		}
		result.SwipeID = rec.ID

		if !result.MatchPossible {
			return nil
		}

		mutual, err := s.swipeStore.HasReciprocalRight(txCtx, tx, swiperID, targetID)
		if err != nil {
			return err
		}
		if !mutual {
			return nil
		}

		// Savepoint around match creation: a capacity race must not roll
		// back the already-recorded swipe.
		inner, err := tx.Begin(txCtx)
		if err != nil {
			return fmt.Errorf("begin match savepoint: %w", err)
		}

		rec2, created, err := s.matchGate.CreateInTx(txCtx, inner, swiperID, targetID)
		if err != nil {
			_ = inner.Rollback(txCtx)
			if errors.Is(err, matchessvc.ErrCapacity) {
				result.MatchPossible = false
				return nil
			}
			return err
		}
		if err := inner.Commit(txCtx); err != nil {
			return fmt.Errorf("commit match savepoint: %w", err)
		}

		matchRec = rec2
		result.Matched = true
		result.MatchCreated = created
		result.MatchID = rec2.ID
		return nil
	}); err != nil {
		return SwipeResult{}, err
	}

	if result.MatchCreated {
		s.matchGate.ProvisionChannel(ctx, matchRec)
	}

	return result, nil
}

// RecentSwipeCount reports the trailing-24h usage against the daily cap.
func (s *Service) RecentSwipeCount(ctx context.Context, userID int64) (Quota, error) {
	if userID <= 0 {
		return Quota{}, ErrValidation
	}
	if s.swipeStore == nil {
		return Quota{}, fmt.Errorf("swipe store is nil")
	}

	used, err := s.swipeStore.CountSince(ctx, userID, s.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return Quota{}, err
	}

	return Quota{Used: used, Cap: s.cfg.SwipesPerDay}, nil
}

func (s *Service) pairHasCapacity(ctx context.Context, swiperID, targetID int64) (bool, error) {
	swiperOK, err := s.matchGate.CanAddMatch(ctx, swiperID)
	if err != nil {
		return false, err
	}

	targetOK, err := s.matchGate.CanAddMatch(ctx, targetID)
	if err != nil {
		if errors.Is(err, matchessvc.ErrNotFound) {
			return false, ErrTargetNotFound
		}
		return false, err
	}

	return swiperOK && targetOK, nil
}
