package dto

type CreateTokenRequest struct {
	DownloadLimit int `json:"download_limit" binding:"required"`
}

type TokenDTO struct {
	TokenID       string `json:"token_id"`
	DownloadCount int    `json:"download_count"`
	DownloadLimit int    `json:"download_limit"`
	Remaining     int    `json:"remaining"`
}
