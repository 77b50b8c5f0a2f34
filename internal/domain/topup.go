package domain

import "time"

// TopUpStatus enumerates request states. The only transition is pending -> approved.
type TopUpStatus string

const (
	TopUpStatusPending  TopUpStatus = "pending"
	TopUpStatusApproved TopUpStatus = "approved"
)

// TopUpRequest is a customer's request for staff to credit their balance.
type TopUpRequest struct {
	ID           int64
	AccountID    int64
	Username     string
	Amount       int64
	Status       TopUpStatus
	UserNotified bool
	CreatedAt    time.Time
}
