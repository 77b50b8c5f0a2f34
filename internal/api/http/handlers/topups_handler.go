package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/dto"
	"github.com/spec-kit/netcafe-service/internal/service"
)

// TopUpsHandler serves top-up requests for both roles.
type TopUpsHandler struct {
	topups *service.TopUpService
}

// NewTopUpsHandler constructs handler.
func NewTopUpsHandler(topups *service.TopUpService) *TopUpsHandler {
	return &TopUpsHandler{topups: topups}
}

// CreateRequest POST /topups.
func (h *TopUpsHandler) CreateRequest(c *fiber.Ctx) error {
	account, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	created, err := h.topups.CreateRequest(c.UserContext(), account.ID, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": topUpResponse(created)})
}

// ListOwn GET /topups.
func (h *TopUpsHandler) ListOwn(c *fiber.Ctx) error {
	account, err := principal(c)
	if err != nil {
		return err
	}
	reqs, err := h.topups.ListForAccount(c.UserContext(), account.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": topUpResponses(reqs)})
}

// ListAll GET /staff/topups.
func (h *TopUpsHandler) ListAll(c *fiber.Ctx) error {
	reqs, err := h.topups.List(c.UserContext(), parseIntQuery(c, "limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": topUpResponses(reqs)})
}

// Approve POST /staff/topups/:id/approve.
func (h *TopUpsHandler) Approve(c *fiber.Ctx) error {
	staff, err := principal(c)
	if err != nil {
		return err
	}
	requestID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	res, err := h.topups.Approve(c.UserContext(), staff.ID, requestID)
	if err != nil {
		return err
	}
	resp := dto.ApprovalResponse{Request: topUpResponse(res.Request), Balance: res.Balance}
	if res.Notice != nil {
		notice := messageResponse(res.Notice)
		resp.Notice = &notice
	}
	return c.JSON(fiber.Map{"data": resp})
}
