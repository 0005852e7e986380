package enums

type RevealPhase string

const (
	RevealPhaseLocked     RevealPhase = "locked"
	RevealPhaseUnblurring RevealPhase = "unblurring"
	RevealPhaseAwaiting   RevealPhase = "awaiting_consent"
	RevealPhaseConsented  RevealPhase = "consented_unblurring"
	RevealPhaseRevealed   RevealPhase = "fully_revealed"
)
