package realtime

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/netcafe-service/internal/domain"
)

// Room is a named broadcast group of live connections.
type Room string

// StaffRoom holds every live staff connection.
const StaffRoom Room = "staff"

// AccountRoom returns the room holding every live connection of one account.
func AccountRoom(accountID int64) Room {
	return Room("account:" + strconv.FormatInt(accountID, 10))
}

// EventName identifies an outbound frame.
type EventName string

const (
	EventTimeUpdate          EventName = "time_update"
	EventNewMessage          EventName = "new_message"
	EventUserStatus          EventName = "user_status"
	EventNewTopUpRequest     EventName = "new_topup_request"
	EventTopUpRequestUpdated EventName = "topup_request_updated"
	EventUserActive          EventName = "user_active"
	EventJoined              EventName = "joined"
	EventMessageHistory      EventName = "message_history"
	EventError               EventName = "error"
)

// Frame is the JSON envelope written to sockets.
type Frame struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

// TimeUpdate reports the balance and remaining time after a charge.
type TimeUpdate struct {
	AccountID   int64               `json:"accountId"`
	Balance     decimal.Decimal     `json:"balance"`
	SecondsLeft int64               `json:"secondsLeft"`
	Status      domain.ChargeStatus `json:"status"`
}

// MessagePayload carries a stored message.
type MessagePayload struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"senderId"`
	RecipientID int64     `json:"recipientId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessagePayload converts a stored message to its wire form.
func NewMessagePayload(msg *domain.Message) MessagePayload {
	return MessagePayload{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
}

// UserStatus announces an account going online or offline.
type UserStatus struct {
	AccountID int64  `json:"accountId"`
	Online    bool   `json:"online"`
	Reason    string `json:"reason,omitempty"`
}

// UserActive is the lightweight notice staff get when a customer writes.
type UserActive struct {
	AccountID int64     `json:"accountId"`
	Username  string    `json:"username"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// TopUpRequestPayload carries a top-up request.
type TopUpRequestPayload struct {
	ID        int64              `json:"id"`
	AccountID int64              `json:"accountId"`
	Username  string             `json:"username"`
	Amount    int64              `json:"amount"`
	Status    domain.TopUpStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
}

// NewTopUpRequestPayload converts a request to its wire form.
func NewTopUpRequestPayload(req *domain.TopUpRequest) TopUpRequestPayload {
	return TopUpRequestPayload{
		ID:        req.ID,
		AccountID: req.AccountID,
		Username:  req.Username,
		Amount:    req.Amount,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
	}
}

// Joined acknowledges a connect or a staff target switch.
type Joined struct {
	AccountID int64       `json:"accountId"`
	Role      domain.Role `json:"role"`
	Room      Room        `json:"room"`
	TargetID  *int64      `json:"targetId,omitempty"`
}

// MessageHistory answers a load_messages request.
type MessageHistory struct {
	PeerA    int64            `json:"a"`
	PeerB    int64            `json:"b"`
	Messages []MessagePayload `json:"messages"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
