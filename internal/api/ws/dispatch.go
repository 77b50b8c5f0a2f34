package ws

import (
	"context"
	"encoding/json"

	"github.com/spec-kit/netcafe-service/internal/realtime"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

// Inbound event names.
const (
	eventSwitchTarget = "switch_target"
	eventSendMessage  = "send_message"
	eventLoadMessages = "load_messages"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type switchTargetData struct {
	PrevID *int64 `json:"prevId"`
	NewID  int64  `json:"newId"`
}

type sendMessageData struct {
	ToID    *int64 `json:"toId"`
	Content string `json:"content"`
}

type loadMessagesData struct {
	A     int64 `json:"a"`
	B     int64 `json:"b"`
	Limit int   `json:"limit"`
}

// Sessions is what inbound frames are dispatched to.
type Sessions interface {
	SwitchTarget(ctx context.Context, conn realtime.Conn, targetID int64) error
	SendMessage(ctx context.Context, conn realtime.Conn, to *int64, content string) error
	LoadMessages(ctx context.Context, conn realtime.Conn, a, b int64, limit int) error
}

// dispatch decodes one client frame and routes it.
func dispatch(ctx context.Context, sessions Sessions, c realtime.Conn, raw []byte) error {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return apperrors.NewInvalidInput("malformed frame")
	}

	switch msg.Event {
	case eventSwitchTarget:
		var data switchTargetData
		if err := decodeData(msg.Data, &data); err != nil {
			return err
		}
		if data.NewID <= 0 {
			return apperrors.NewInvalidInput("newId is required")
		}
		return sessions.SwitchTarget(ctx, c, data.NewID)
	case eventSendMessage:
		var data sendMessageData
		if err := decodeData(msg.Data, &data); err != nil {
			return err
		}
		return sessions.SendMessage(ctx, c, data.ToID, data.Content)
	case eventLoadMessages:
		var data loadMessagesData
		if err := decodeData(msg.Data, &data); err != nil {
			return err
		}
		return sessions.LoadMessages(ctx, c, data.A, data.B, data.Limit)
	default:
		return apperrors.NewInvalidInput("unknown event " + msg.Event)
	}
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return apperrors.NewInvalidInput("missing data")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewInvalidInput("malformed data")
	}
	return nil
}
