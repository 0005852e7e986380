package rules

import (
	"math"

	"github.com/harborapp/backend/internal/domain/enums"
)

const (
	DefaultWarningThreshold = 5
	DefaultEarlyRate        = 1.25
	DefaultLateRate         = 5.0

	// MidpointBlur is the floor of the early phase and the ceiling of the
	// consented phase. Unblurring past it requires both users' consent.
	MidpointBlur = 50.0
)

type RevealConfig struct {
	WarningThreshold int
	EarlyRate        float64
	LateRate         float64
}

func (c RevealConfig) Normalized() RevealConfig {
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.EarlyRate <= 0 {
		c.EarlyRate = DefaultEarlyRate
	}
	if c.LateRate <= 0 {
		c.LateRate = DefaultLateRate
	}
	return c
}

// Blur computes the photo blur percentage for a match. It is a pure function
// of the message count and the two consent flags.
//
// Before the warning threshold the blur falls linearly from 100 and never
// goes below the midpoint. Past the threshold it holds at the value reached
// when the threshold was crossed until both users consent, then falls
// linearly from the midpoint to zero. Results are rounded half away from
// zero to two decimal places.
func Blur(cfg RevealConfig, messageCount int, consentA, consentB bool) float64 {
	cfg = cfg.Normalized()
	if messageCount < 0 {
		messageCount = 0
	}

	if messageCount <= cfg.WarningThreshold {
		return roundBlur(math.Max(MidpointBlur, 100-float64(messageCount)*cfg.EarlyRate))
	}

	if !(consentA && consentB) {
		// Held at the last value the early phase produced.
		return roundBlur(math.Max(MidpointBlur, 100-float64(cfg.WarningThreshold)*cfg.EarlyRate))
	}

	extra := messageCount - cfg.WarningThreshold
	return roundBlur(math.Max(0, MidpointBlur-float64(extra)*cfg.LateRate))
}

// WarningDue reports whether the consent warning must be shown now: the
// message count has crossed the threshold and the warning has not been
// surfaced yet.
func WarningDue(cfg RevealConfig, messageCount int, warningShown bool) bool {
	cfg = cfg.Normalized()
	return !warningShown && messageCount > cfg.WarningThreshold
}

func Phase(cfg RevealConfig, messageCount int, warningShown, consentA, consentB bool) enums.RevealPhase {
	cfg = cfg.Normalized()
	blur := Blur(cfg, messageCount, consentA, consentB)

	switch {
	case messageCount <= cfg.WarningThreshold && blur >= 100:
		return enums.RevealPhaseLocked
	case messageCount <= cfg.WarningThreshold:
		return enums.RevealPhaseUnblurring
	case !(consentA && consentB):
		return enums.RevealPhaseAwaiting
	case blur <= 0:
		return enums.RevealPhaseRevealed
	default:
		return enums.RevealPhaseConsented
	}
}

func roundBlur(v float64) float64 {
	rounded := math.Round(v*100) / 100
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
