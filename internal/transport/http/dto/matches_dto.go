package dto

import "time"

type MatchItemResponse struct {
	ID           int64     `json:"id"`
	OtherUserID  int64     `json:"other_user_id"`
	MessageCount int       `json:"message_count"`
	BlurPercent  float64   `json:"blur_percent"`
	WarningShown bool      `json:"warning_shown"`
	BothAgreed   bool      `json:"both_agreed"`
	Phase        string    `json:"phase"`
	ChannelID    string    `json:"channel_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type MatchesResponse struct {
	Items []MatchItemResponse `json:"items"`
}

type UnmatchRequest struct {
	MatchID int64 `json:"match_id"`
}
