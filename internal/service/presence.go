package service

import (
	"context"
	"strings"

	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/realtime"
)

// Broadcaster routes an event to every connection in a room and reports how
// many accepted it.
type Broadcaster interface {
	Emit(room realtime.Room, event realtime.EventName, payload any) int
}

// Presence is the part of the connection registry the backend drives.
type Presence interface {
	Broadcaster
	CloseAccount(accountID int64) int
}

const (
	reasonDisconnected    = "disconnected"
	reasonBalanceDepleted = "balance_depleted"
	reasonLoggedOut       = "logged_out"
	reasonStale           = "stale"
	reasonShutdown        = "shutdown"
)

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, event)
}

// stringPreview trims body to at most max runes.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
