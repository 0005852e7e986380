package dto

type MessageHookRequest struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	SenderID  int64  `json:"sender_id,omitempty"`
}

type MessageHookResponse struct {
	OK           bool    `json:"ok"`
	MessageCount int     `json:"message_count"`
	BlurPercent  float64 `json:"blur_percent"`
	ShowWarning  bool    `json:"show_warning"`
	Phase        string  `json:"phase"`
}
