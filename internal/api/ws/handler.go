package ws

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/auth"
	"github.com/spec-kit/netcafe-service/internal/service"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

const (
	localsAccountID = "ws_account_id"
	frameTimeout    = 10 * time.Second
	maxFrameBytes   = 16 << 10
)

// Handler upgrades authenticated requests to realtime sessions.
type Handler struct {
	sessions  *service.SessionService
	logger    *zap.Logger
	queueSize int
}

// NewHandler constructs the handler.
func NewHandler(sessions *service.SessionService, logger *zap.Logger, queueSize int) *Handler {
	return &Handler{sessions: sessions, logger: logger, queueSize: queueSize}
}

// Upgrade rejects plain HTTP and carries the caller's account into the socket.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	c.Locals(localsAccountID, principal.Account.ID)
	return c.Next()
}

// Serve returns the websocket endpoint.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *Handler) serve(ws *websocket.Conn) {
	accountID, _ := ws.Locals(localsAccountID).(int64)
	c := newConn(ws, h.queueSize)
	go c.writeLoop()
	defer c.wait()
	defer c.Close()

	var target *int64
	if raw := ws.Query("target"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			target = &id
		}
	}

	if err := h.sessions.Connect(context.Background(), c, accountID, target); err != nil {
		h.sessions.ReportError(c, err)
		return
	}
	defer h.sessions.Disconnect(context.Background(), c)

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Int64("account_id", accountID), zap.Error(err))
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		if err := dispatch(ctx, h.sessions, c, raw); err != nil {
			h.sessions.ReportError(c, err)
		}
		cancel()
	}
}
