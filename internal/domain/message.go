package domain

import "time"

// Message is an immutable direct message between two accounts.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Content     string
	CreatedAt   time.Time
}
