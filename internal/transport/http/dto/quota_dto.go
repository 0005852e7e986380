package dto

type QuotaResponse struct {
	Used int `json:"used"`
	Cap  int `json:"cap"`
}
