package reveal

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/harborapp/backend/internal/domain/enums"
	"github.com/harborapp/backend/internal/domain/rules"
	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
)

func testRunTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, nil)
}

type matchStoreFake struct {
	rec pgrepo.MatchRecord
}

func (f *matchStoreFake) GetByID(_ context.Context, matchID int64) (pgrepo.MatchRecord, error) {
	if matchID != f.rec.ID {
		return pgrepo.MatchRecord{}, pgrepo.ErrMatchNotFound
	}
	return f.rec, nil
}

func (f *matchStoreFake) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, matchID int64) (pgrepo.MatchRecord, error) {
	return f.GetByID(ctx, matchID)
}

func (f *matchStoreFake) IncrementMessageCount(_ context.Context, _ pgx.Tx, matchID int64) (pgrepo.MatchRecord, error) {
	if matchID != f.rec.ID {
		return pgrepo.MatchRecord{}, pgrepo.ErrMatchNotFound
	}
	if !f.rec.IsActive {
		return pgrepo.MatchRecord{}, pgrepo.ErrMatchClosed
	}
	f.rec.MessageCount++
	return f.rec, nil
}

func (f *matchStoreFake) UpdateReveal(_ context.Context, _ pgx.Tx, matchID int64, blurPercent float64, warningShown, resetConsent bool) error {
	if matchID != f.rec.ID {
		return pgrepo.ErrMatchNotFound
	}
	f.rec.BlurPercent = blurPercent
	f.rec.WarningShown = warningShown
	if resetConsent {
		f.rec.ConsentA = false
		f.rec.ConsentB = false
	}
	return nil
}

func (f *matchStoreFake) SetConsent(_ context.Context, _ pgx.Tx, matchID int64, sideA, agreed bool) (bool, bool, error) {
	if matchID != f.rec.ID {
		return false, false, pgrepo.ErrMatchNotFound
	}
	if sideA {
		f.rec.ConsentA = agreed
	} else {
		f.rec.ConsentB = agreed
	}
	return f.rec.ConsentA, f.rec.ConsentB, nil
}

type closerFake struct {
	closed []int64
}

func (f *closerFake) DeactivateMatch(_ context.Context, matchID int64) (bool, error) {
	f.closed = append(f.closed, matchID)
	return true, nil
}

func newTestService(store *matchStoreFake, closer *closerFake) *Service {
	return &Service{
		matchStore: store,
		closer:     closer,
		cfg:        rules.RevealConfig{}.Normalized(),
		runTx:      testRunTx,
	}
}

func activeMatch(messageCount int, warningShown bool) pgrepo.MatchRecord {
	return pgrepo.MatchRecord{
		ID:           10,
		UserAID:      1,
		UserBID:      2,
		MessageCount: messageCount,
		BlurPercent:  100,
		WarningShown: warningShown,
		IsActive:     true,
	}
}

func TestOnNewMessageUnblursBeforeThreshold(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(2, false)}
	svc := newTestService(store, &closerFake{})

	state, err := svc.OnNewMessage(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.MessageCount != 3 {
		t.Fatalf("expected count 3, got %d", state.MessageCount)
	}
	if state.BlurPercent != 96.25 {
		t.Fatalf("expected blur 96.25, got %v", state.BlurPercent)
	}
	if state.ShouldShowWarning {
		t.Fatal("warning must not fire below the threshold")
	}
	if state.Phase != enums.RevealPhaseUnblurring {
		t.Fatalf("unexpected phase: %s", state.Phase)
	}
}

func TestOnNewMessageFiresWarningOnceAtThreshold(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(5, false)}
	store.rec.ConsentA = true // stale flag, must be cleared by the warning
	svc := newTestService(store, &closerFake{})

	state, err := svc.OnNewMessage(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.ShouldShowWarning {
		t.Fatal("crossing the threshold must fire the warning")
	}
	if state.BlurPercent != 93.75 {
		t.Fatalf("blur must hold at the threshold value, got %v", state.BlurPercent)
	}
	if store.rec.ConsentA || store.rec.ConsentB {
		t.Fatal("warning must clear both consent flags")
	}
	if state.Phase != enums.RevealPhaseAwaiting {
		t.Fatalf("unexpected phase: %s", state.Phase)
	}

	// Subsequent messages hold the blur and never re-fire the warning.
	state, err = svc.OnNewMessage(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.ShouldShowWarning {
		t.Fatal("warning must fire only once")
	}
	if state.BlurPercent != 93.75 {
		t.Fatalf("blur must stay held without consent, got %v", state.BlurPercent)
	}
}

func TestOnNewMessageResumesAfterBothConsent(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(6, true)}
	store.rec.ConsentA = true
	store.rec.ConsentB = true
	svc := newTestService(store, &closerFake{})

	state, err := svc.OnNewMessage(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.MessageCount != 7 {
		t.Fatalf("expected count 7, got %d", state.MessageCount)
	}
	if state.BlurPercent != 40 {
		t.Fatalf("expected blur 40, got %v", state.BlurPercent)
	}
	if state.Phase != enums.RevealPhaseConsented {
		t.Fatalf("unexpected phase: %s", state.Phase)
	}
}

func TestOnNewMessageClosedMatch(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(3, false)}
	store.rec.IsActive = false
	svc := newTestService(store, &closerFake{})

	if _, err := svc.OnNewMessage(context.Background(), 10); !errors.Is(err, ErrMatchClosed) {
		t.Fatalf("expected closed match error, got %v", err)
	}
	if _, err := svc.OnNewMessage(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordConsentHandshake(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(6, true)}
	svc := newTestService(store, &closerFake{})

	first, err := svc.RecordConsent(context.Background(), 10, 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.BothAgreed {
		t.Fatal("one-sided consent must not unlock the curve")
	}
	if first.BlurPercent != 93.75 {
		t.Fatalf("blur must stay held after one consent, got %v", first.BlurPercent)
	}

	second, err := svc.RecordConsent(context.Background(), 10, 2, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.BothAgreed {
		t.Fatal("both sides agreed")
	}
	if second.BlurPercent != 45 {
		t.Fatalf("expected blur 45 at count 6, got %v", second.BlurPercent)
	}
	if store.rec.BlurPercent != 45 {
		t.Fatalf("unlocked blur must be persisted, got %v", store.rec.BlurPercent)
	}
}

func TestRecordConsentBeforeWarning(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(3, false)}
	svc := newTestService(store, &closerFake{})

	if _, err := svc.RecordConsent(context.Background(), 10, 1, true); !errors.Is(err, ErrWarningPending) {
		t.Fatalf("consent before the warning must be rejected, got %v", err)
	}
}

func TestRecordConsentAfterResolution(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(6, true)}
	store.rec.ConsentA = true
	store.rec.ConsentB = true
	svc := newTestService(store, &closerFake{})

	if _, err := svc.RecordConsent(context.Background(), 10, 1, true); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("re-consent after resolution must be rejected, got %v", err)
	}

	store.rec.ConsentB = false
	store.rec.IsActive = false
	if _, err := svc.RecordConsent(context.Background(), 10, 2, true); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("consent on a closed match must be rejected, got %v", err)
	}
}

func TestRecordConsentDeclineClosesMatch(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(6, true)}
	closer := &closerFake{}
	svc := newTestService(store, closer)

	result, err := svc.RecordConsent(context.Background(), 10, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.MatchClosed {
		t.Fatal("decline must close the match")
	}
	if len(closer.closed) != 1 || closer.closed[0] != 10 {
		t.Fatalf("decline must deactivate through the match gate: %+v", closer.closed)
	}
}

func TestRecordConsentMembership(t *testing.T) {
	store := &matchStoreFake{rec: activeMatch(6, true)}
	svc := newTestService(store, &closerFake{})

	if _, err := svc.RecordConsent(context.Background(), 10, 42, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("outsider consent must be not found, got %v", err)
	}
	if _, err := svc.RecordConsent(context.Background(), 10, 42, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("outsider decline must be not found, got %v", err)
	}
}
