package dto

type SwipeRequest struct {
	TargetID  int64  `json:"target_id"`
	Direction string `json:"direction"`
}

type SwipeResponse struct {
	OK            bool          `json:"ok"`
	SwipeID       int64         `json:"swipe_id"`
	MatchPossible bool          `json:"match_possible"`
	Matched       bool          `json:"matched"`
	MatchID       int64         `json:"match_id,omitempty"`
	Quota         QuotaResponse `json:"quota"`
}
