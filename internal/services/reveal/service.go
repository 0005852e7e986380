package reveal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborapp/backend/internal/domain/enums"
	"github.com/harborapp/backend/internal/domain/rules"
	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("match not found")
	ErrMatchClosed     = errors.New("match is closed")
	ErrWarningPending  = errors.New("consent warning has not been shown")
	ErrAlreadyResolved = errors.New("consent already resolved")
)

type MatchStore interface {
	GetByID(ctx context.Context, matchID int64) (pgrepo.MatchRecord, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (pgrepo.MatchRecord, error)
	IncrementMessageCount(ctx context.Context, tx pgx.Tx, matchID int64) (pgrepo.MatchRecord, error)
	UpdateReveal(ctx context.Context, tx pgx.Tx, matchID int64, blurPercent float64, warningShown, resetConsent bool) error
	SetConsent(ctx context.Context, tx pgx.Tx, matchID int64, sideA, agreed bool) (bool, bool, error)
}

// MatchCloser lets a declined consent terminate the match through the same
// path an explicit unmatch takes.
type MatchCloser interface {
	DeactivateMatch(ctx context.Context, matchID int64) (bool, error)
}

type Dependencies struct {
	Pool       *pgxpool.Pool
	MatchStore MatchStore
	Closer     MatchCloser
}

type State struct {
	MessageCount      int
	BlurPercent       float64
	ShouldShowWarning bool
	WarningShown      bool
	BothAgreed        bool
	Phase             enums.RevealPhase
}

type ConsentResult struct {
	BothAgreed  bool
	BlurPercent float64
	MatchClosed bool
}

type Service struct {
	pool       *pgxpool.Pool
	matchStore MatchStore
	closer     MatchCloser
	cfg        rules.RevealConfig
	runTx      func(context.Context, func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg rules.RevealConfig) *Service {
	return &Service{
		pool:       deps.Pool,
		matchStore: deps.MatchStore,
		closer:     deps.Closer,
		cfg:        cfg.Normalized(),
		runTx: func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
			return pgrepo.WithTx(ctx, deps.Pool, fn)
		},
	}
}

// OnNewMessage advances the reveal curve by one message: increments the
// match's counter, fires the consent warning the first time the count
// crosses the threshold (clearing both consent flags) and persists the
// recomputed blur.
func (s *Service) OnNewMessage(ctx context.Context, matchID int64) (State, error) {
	if matchID <= 0 {
		return State{}, ErrValidation
	}
	if s.matchStore == nil {
		return State{}, fmt.Errorf("match store is nil")
	}

	var state State
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.matchStore.IncrementMessageCount(txCtx, tx, matchID)
		if err != nil {
			return mapStoreError(err)
		}

		warningDue := rules.WarningDue(s.cfg, rec.MessageCount, rec.WarningShown)
		consentA, consentB := rec.ConsentA, rec.ConsentB
		if warningDue {
			consentA, consentB = false, false
		}
		warningShown := rec.WarningShown || warningDue
		blur := rules.Blur(s.cfg, rec.MessageCount, consentA, consentB)

		if err := s.matchStore.UpdateReveal(txCtx, tx, matchID, blur, warningShown, warningDue); err != nil {
			return mapStoreError(err)
		}

		state = State{
			MessageCount:      rec.MessageCount,
			BlurPercent:       blur,
			ShouldShowWarning: warningDue,
			WarningShown:      warningShown,
			BothAgreed:        consentA && consentB,
			Phase:             rules.Phase(s.cfg, rec.MessageCount, warningShown, consentA, consentB),
		}
		return nil
	}); err != nil {
		return State{}, err
	}

	return state, nil
}

// RecordConsent resolves one side of the warning handshake. Declining is an
// unmatch: the match is deactivated and never computes blur again. Agreeing
// records that side's flag; once both sides agree the curve resumes below
// the midpoint.
func (s *Service) RecordConsent(ctx context.Context, matchID, userID int64, agreed bool) (ConsentResult, error) {
	if matchID <= 0 || userID <= 0 {
		return ConsentResult{}, ErrValidation
	}
	if s.matchStore == nil {
		return ConsentResult{}, fmt.Errorf("match store is nil")
	}

	if !agreed {
		return s.decline(ctx, matchID, userID)
	}

	var result ConsentResult
	if err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.matchStore.GetByIDForUpdate(txCtx, tx, matchID)
		if err != nil {
			return mapStoreError(err)
		}

		sideA, err := resolveSide(rec, userID)
		if err != nil {
			return err
		}
		if !rec.IsActive {
			return ErrAlreadyResolved
		}
		if !rec.WarningShown {
			return ErrWarningPending
		}
		if rec.ConsentA && rec.ConsentB {
			return ErrAlreadyResolved
		}

		consentA, consentB, err := s.matchStore.SetConsent(txCtx, tx, matchID, sideA, true)
		if err != nil {
			return mapStoreError(err)
		}

		blur := rules.Blur(s.cfg, rec.MessageCount, consentA, consentB)
		if consentA && consentB {
			if err := s.matchStore.UpdateReveal(txCtx, tx, matchID, blur, true, false); err != nil {
				return mapStoreError(err)
			}
		}

		result = ConsentResult{
			BothAgreed:  consentA && consentB,
			BlurPercent: blur,
		}
		return nil
	}); err != nil {
		return ConsentResult{}, err
	}

	return result, nil
}

func (s *Service) decline(ctx context.Context, matchID, userID int64) (ConsentResult, error) {
	if s.closer == nil {
		return ConsentResult{}, fmt.Errorf("match closer is nil")
	}

	rec, err := s.matchStore.GetByID(ctx, matchID)
	if err != nil {
		return ConsentResult{}, mapStoreError(err)
	}
	if _, err := resolveSide(rec, userID); err != nil {
		return ConsentResult{}, err
	}
	if !rec.IsActive {
		return ConsentResult{}, ErrAlreadyResolved
	}
	if !rec.WarningShown {
		return ConsentResult{}, ErrWarningPending
	}

	if _, err := s.closer.DeactivateMatch(ctx, matchID); err != nil {
		return ConsentResult{}, err
	}

	return ConsentResult{
		BothAgreed:  false,
		BlurPercent: rec.BlurPercent,
		MatchClosed: true,
	}, nil
}

func resolveSide(rec pgrepo.MatchRecord, userID int64) (bool, error) {
	switch userID {
	case rec.UserAID:
		return true, nil
	case rec.UserBID:
		return false, nil
	default:
		return false, ErrNotFound
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, pgrepo.ErrMatchNotFound):
		return ErrNotFound
	case errors.Is(err, pgrepo.ErrMatchClosed):
		return ErrMatchClosed
	default:
		return err
	}
}
