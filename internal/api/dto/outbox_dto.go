package dto

import "encoding/json"

type ListOutboxRequest struct {
	Status string `form:"status"`
	Kind   string `form:"kind"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

type ListOutboxResponse struct {
	Entries []OutboxEntryDTO `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type OutboxEntryDTO struct {
	EntryID      string          `json:"entry_id"`
	Kind         string          `json:"kind"`
	Destination  string          `json:"destination"`
	Body         json.RawMessage `json:"body"`
	Attempts     int             `json:"attempts"`
	LastError    *string         `json:"last_error,omitempty"`
	RunAt        string          `json:"run_at"`
	DispatchedAt *string         `json:"dispatched_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

type OutboxStatusResponse struct {
	GatewayConfigured bool   `json:"gateway_configured"`
	GatewayURL        string `json:"gateway_url,omitempty"`
	HasToken          bool   `json:"has_token"`
	Pending           int    `json:"pending"`
	Failed            int    `json:"failed"`
	Dispatched        int    `json:"dispatched"`
}

type ProcessOutboxRequest struct {
	Limit int `json:"limit"`
}
