package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCustomerRequest payload for provisioning a customer.
type CreateCustomerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ManualTopUpRequest credits an account directly.
type ManualTopUpRequest struct {
	Amount int64 `json:"amount"`
}

// AccountResponse is an account as shown on dashboards.
type AccountResponse struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	Role         string          `json:"role"`
	Balance      decimal.Decimal `json:"balance"`
	SecondsLeft  int64           `json:"seconds_left"`
	IsOnline     bool            `json:"is_online"`
	Connections  int             `json:"connections"`
	LastActivity *time.Time      `json:"last_activity,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// BalanceResponse reports a balance after a credit.
type BalanceResponse struct {
	AccountID   int64           `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
	SecondsLeft int64           `json:"seconds_left"`
}
