package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/dto"
	"github.com/spec-kit/netcafe-service/internal/service"
)

// MessagesHandler serves conversation history.
type MessagesHandler struct {
	chat *service.ChatService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(chat *service.ChatService) *MessagesHandler {
	return &MessagesHandler{chat: chat}
}

// Conversation GET /messages?with=<id>[&limit=n]. Staff may also pass
// a=<id>&b=<id> to read any conversation.
func (h *MessagesHandler) Conversation(c *fiber.Ctx) error {
	account, err := principal(c)
	if err != nil {
		return err
	}

	a, b, err := conversationParticipants(c, account.ID)
	if err != nil {
		return err
	}

	msgs, err := h.chat.History(c.UserContext(), account.ID, account.Role, a, b, parseIntQuery(c, "limit", 0))
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// conversationParticipants reads ?with=<peer> (paired with selfID) or ?a=&b=.
func conversationParticipants(c *fiber.Ctx, selfID int64) (int64, int64, error) {
	if with := c.Query("with"); with != "" {
		peer, err := strconv.ParseInt(with, 10, 64)
		if err != nil {
			return 0, 0, fiber.NewError(http.StatusBadRequest, "invalid conversation participants")
		}
		return selfID, peer, nil
	}
	a, errA := strconv.ParseInt(c.Query("a"), 10, 64)
	b, errB := strconv.ParseInt(c.Query("b"), 10, 64)
	if errA != nil || errB != nil {
		return 0, 0, fiber.NewError(http.StatusBadRequest, "invalid conversation participants")
	}
	return a, b, nil
}
