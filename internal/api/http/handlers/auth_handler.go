package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/dto"
	"github.com/spec-kit/netcafe-service/internal/service"
)

// AuthHandler exposes login, logout and the caller's own account.
type AuthHandler struct {
	auth     *service.AuthService
	accounts *service.AccountService
	sessions *service.SessionService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, accounts *service.AccountService, sessions *service.SessionService) *AuthHandler {
	return &AuthHandler{auth: authService, accounts: accounts, sessions: sessions}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	account, token, exp, err := h.auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	view, err := h.accounts.Get(c.UserContext(), account.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": accountResponse(view),
			"auth":    dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Logout handles POST /auth/logout. It ends the caller's live session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	account, err := principal(c)
	if err != nil {
		return err
	}
	h.sessions.Logout(c.UserContext(), account.ID)
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	account, err := principal(c)
	if err != nil {
		return err
	}
	view, err := h.accounts.Get(c.UserContext(), account.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": accountResponse(view)})
}
