package dto

type ConsentRequest struct {
	MatchID int64 `json:"match_id"`
	Agreed  *bool `json:"agreed"`
}

type ConsentResponse struct {
	OK          bool    `json:"ok"`
	BothAgreed  bool    `json:"both_agreed"`
	BlurPercent float64 `json:"blur_percent"`
	MatchClosed bool    `json:"match_closed"`
}
