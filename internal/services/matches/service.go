package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/harborapp/backend/internal/domain/enums"
	"github.com/harborapp/backend/internal/domain/rules"
	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")
	ErrCapacity   = errors.New("match capacity reached")
	ErrNotFound   = errors.New("match not found")
)

type MatchStore interface {
	Insert(ctx context.Context, tx pgx.Tx, userID, targetID int64, now time.Time) (pgrepo.MatchRecord, bool, error)
	GetByID(ctx context.Context, matchID int64) (pgrepo.MatchRecord, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (pgrepo.MatchRecord, error)
	ListActiveForUser(ctx context.Context, userID int64, limit int) ([]pgrepo.MatchRecord, error)
	Deactivate(ctx context.Context, tx pgx.Tx, matchID int64, now time.Time) (bool, error)
	SetChannelID(ctx context.Context, matchID int64, channelID string) error
}

type UserStore interface {
	Get(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
	ReserveMatchSlot(ctx context.Context, tx pgx.Tx, userID int64, cap int) (bool, error)
	ReleaseMatchSlot(ctx context.Context, tx pgx.Tx, userID int64) error
}

type ChannelProvider interface {
	CreateChannel(ctx context.Context, userA, userB int64) (string, error)
	FreezeChannel(ctx context.Context, channelID string) error
	SendSystemMessage(ctx context.Context, channelID, text string) error
}

type Config struct {
	MaxActiveMatches int
	Reveal           rules.RevealConfig
}

type Dependencies struct {
	Pool       *pgxpool.Pool
	MatchStore MatchStore
	UserStore  UserStore
	Channels   ChannelProvider
	Logger     *zap.Logger
}

type MatchItem struct {
	ID           int64
	OtherUserID  int64
	MessageCount int
	BlurPercent  float64
	WarningShown bool
	BothAgreed   bool
	Phase        enums.RevealPhase
	ChannelID    string
	CreatedAt    time.Time
}

type CreateResult struct {
	MatchID   int64
	Created   bool
	ChannelID string
}

type Service struct {
	pool       *pgxpool.Pool
	matchStore MatchStore
	userStore  UserStore
	channels   ChannelProvider
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
	runTx      func(context.Context, func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxActiveMatches <= 0 {
		cfg.MaxActiveMatches = 1
	}
	cfg.Reveal = cfg.Reveal.Normalized()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		pool:       deps.Pool,
		matchStore: deps.MatchStore,
		userStore:  deps.UserStore,
		channels:   deps.Channels,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		runTx: func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
			return pgrepo.WithTx(ctx, deps.Pool, fn)
		},
	}
}

// CanAddMatch reports whether the user has room for another active match.
// Premium users are unbounded; everyone else is capped. Read-only: the
// authoritative check happens as a conditional update inside CreateInTx.
func (s *Service) CanAddMatch(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, ErrValidation
	}
	if s.userStore == nil {
		return false, fmt.Errorf("user store is nil")
	}

	user, err := s.userStore.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	if user.IsPremium {
		return true, nil
	}
	return user.ActiveMatchCount < s.cfg.MaxActiveMatches, nil
}

// CreateMatch creates (or returns) the active match for the pair and
// provisions its messaging channel. Idempotent on the pair.
func (s *Service) CreateMatch(ctx context.Context, userA, userB int64) (CreateResult, error) {
	if userA <= 0 || userB <= 0 || userA == userB {
		return CreateResult{}, ErrValidation
	}
	if s.matchStore == nil || s.userStore == nil {
		return CreateResult{}, fmt.Errorf("match dependencies are not configured")
	}

	var rec pgrepo.MatchRecord
	var created bool
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		var err error
		rec, created, err = s.CreateInTx(txCtx, tx, userA, userB)
		return err
	}); err != nil {
		return CreateResult{}, err
	}

	channelID := rec.ChannelID
	if created {
		channelID = s.ProvisionChannel(ctx, rec)
	}

	return CreateResult{
		MatchID:   rec.ID,
		Created:   created,
		ChannelID: channelID,
	}, nil
}

// CreateInTx runs the capacity reservation and the match insert inside the
// caller's transaction. Slots are reserved with conditional updates, smaller
// user id first so concurrent creations for overlapping pairs cannot
// deadlock. When an active match already exists the reservations are rolled
// back inside the same transaction and the existing match is returned.
func (s *Service) CreateInTx(ctx context.Context, tx pgx.Tx, userA, userB int64) (pgrepo.MatchRecord, bool, error) {
	if userA <= 0 || userB <= 0 || userA == userB {
		return pgrepo.MatchRecord{}, false, ErrValidation
	}

	first, second := userA, userB
	if first > second {
		first, second = second, first
	}

	for _, userID := range []int64{first, second} {
		ok, err := s.userStore.ReserveMatchSlot(ctx, tx, userID, s.cfg.MaxActiveMatches)
		if err != nil {
			if errors.Is(err, pgrepo.ErrUserNotFound) {
				return pgrepo.MatchRecord{}, false, ErrNotFound
			}
			return pgrepo.MatchRecord{}, false, err
		}
		if !ok {
			return pgrepo.MatchRecord{}, false, ErrCapacity
		}
	}

	rec, created, err := s.matchStore.Insert(ctx, tx, userA, userB, s.now().UTC())
	if err != nil {
		return pgrepo.MatchRecord{}, false, err
	}

	if !created {
		// Existing active match: give the reserved slots back.
		for _, userID := range []int64{first, second} {
			if err := s.userStore.ReleaseMatchSlot(ctx, tx, userID); err != nil {
				return pgrepo.MatchRecord{}, false, err
			}
		}
	}

	return rec, created, nil
}

// ProvisionChannel asks the messaging provider for the pair's channel and
// stores its id on the match. Best effort: the match stays created when the
// provider is down, the channel id is simply absent until a retry.
func (s *Service) ProvisionChannel(ctx context.Context, rec pgrepo.MatchRecord) string {
	if s.channels == nil {
		return ""
	}

	channelID, err := s.channels.CreateChannel(ctx, rec.UserAID, rec.UserBID)
	if err != nil {
		s.logger.Warn("messaging channel creation failed",
			zap.Int64("match_id", rec.ID),
			zap.Error(err),
		)
		return ""
	}

	if err := s.matchStore.SetChannelID(ctx, rec.ID, channelID); err != nil {
		s.logger.Warn("store channel id failed",
			zap.Int64("match_id", rec.ID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}

	if err := s.channels.SendSystemMessage(ctx, channelID, "It's a match! Photos unblur as you talk."); err != nil {
		s.logger.Warn("match system message failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}

	return channelID
}

// DeactivateMatch closes the match, frees both users' slots and freezes the
// channel. Deactivating an already-inactive match is a no-op success.
func (s *Service) DeactivateMatch(ctx context.Context, matchID int64) (bool, error) {
	if matchID <= 0 {
		return false, ErrValidation
	}
	if s.matchStore == nil || s.userStore == nil {
		return false, fmt.Errorf("match dependencies are not configured")
	}

	var rec pgrepo.MatchRecord
	var changed bool
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		var err error
		rec, err = s.matchStore.GetByIDForUpdate(txCtx, tx, matchID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrMatchNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !rec.IsActive {
			return nil
		}

		changed, err = s.matchStore.Deactivate(txCtx, tx, matchID, s.now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		for _, userID := range []int64{rec.UserAID, rec.UserBID} {
			if err := s.userStore.ReleaseMatchSlot(txCtx, tx, userID); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return false, err
	}

	if changed && rec.ChannelID != "" && s.channels != nil {
		if err := s.channels.FreezeChannel(ctx, rec.ChannelID); err != nil {
			s.logger.Warn("freeze channel failed",
				zap.String("channel_id", rec.ChannelID),
				zap.Error(err),
			)
		} else if err := s.channels.SendSystemMessage(ctx, rec.ChannelID, "This conversation has ended."); err != nil {
			s.logger.Warn("unmatch system message failed",
				zap.String("channel_id", rec.ChannelID),
				zap.Error(err),
			)
		}
	}

	return changed, nil
}

// Unmatch deactivates a match on behalf of one of its members.
func (s *Service) Unmatch(ctx context.Context, userID, matchID int64) (bool, error) {
	if userID <= 0 || matchID <= 0 {
		return false, ErrValidation
	}
	if s.matchStore == nil {
		return false, fmt.Errorf("match store is nil")
	}

	rec, err := s.matchStore.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	if rec.UserAID != userID && rec.UserBID != userID {
		return false, ErrNotFound
	}

	return s.DeactivateMatch(ctx, matchID)
}

func (s *Service) ListActive(ctx context.Context, userID int64, limit int) ([]MatchItem, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.matchStore == nil {
		return nil, fmt.Errorf("match store is nil")
	}

	rows, err := s.matchStore.ListActiveForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]MatchItem, 0, len(rows))
	for _, row := range rows {
		otherUserID := row.UserAID
		if otherUserID == userID {
			otherUserID = row.UserBID
		}
		items = append(items, MatchItem{
			ID:           row.ID,
			OtherUserID:  otherUserID,
			MessageCount: row.MessageCount,
			BlurPercent:  row.BlurPercent,
			WarningShown: row.WarningShown,
			BothAgreed:   row.ConsentA && row.ConsentB,
			Phase:        rules.Phase(s.cfg.Reveal, row.MessageCount, row.WarningShown, row.ConsentA, row.ConsentB),
			ChannelID:    row.ChannelID,
			CreatedAt:    row.CreatedAt,
		})
	}
	return items, nil
}
