package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateTopUpRequest payload for a customer top-up request.
type CreateTopUpRequest struct {
	Amount int64 `json:"amount"`
}

// TopUpResponse describes a top-up request.
type TopUpResponse struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	Username     string    `json:"username"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	UserNotified bool      `json:"user_notified"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApprovalResponse is returned after approving a request.
type ApprovalResponse struct {
	Request TopUpResponse    `json:"request"`
	Balance decimal.Decimal  `json:"balance"`
	Notice  *MessageResponse `json:"notice,omitempty"`
}
