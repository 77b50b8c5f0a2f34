package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/dto"
	"github.com/spec-kit/netcafe-service/internal/service"
)

// AccountsHandler serves the staff account dashboard.
type AccountsHandler struct {
	accounts *service.AccountService
	topups   *service.TopUpService
	meter    *service.MeteringService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService, topups *service.TopUpService, meter *service.MeteringService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, topups: topups, meter: meter}
}

// ListCustomers GET /staff/accounts.
func (h *AccountsHandler) ListCustomers(c *fiber.Ctx) error {
	views, err := h.accounts.ListCustomers(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AccountResponse, 0, len(views))
	for i := range views {
		items = append(items, accountResponse(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListOnline GET /staff/accounts/online.
func (h *AccountsHandler) ListOnline(c *fiber.Ctx) error {
	views, err := h.accounts.ListOnline(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AccountResponse, 0, len(views))
	for i := range views {
		items = append(items, accountResponse(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateCustomer POST /staff/accounts.
func (h *AccountsHandler) CreateCustomer(c *fiber.Ctx) error {
	var req dto.CreateCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	account, err := h.accounts.CreateCustomer(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	view := service.AccountView{Account: *account}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": accountResponse(&view)})
}

// TopUp POST /staff/accounts/:id/topup.
func (h *AccountsHandler) TopUp(c *fiber.Ctx) error {
	staff, err := principal(c)
	if err != nil {
		return err
	}
	accountID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.ManualTopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	balance, err := h.topups.ManualTopUp(c.UserContext(), staff.ID, accountID, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BalanceResponse{
		AccountID:   accountID,
		Balance:     balance,
		SecondsLeft: h.meter.SecondsLeft(balance),
	}})
}
