package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/netcafe-service/internal/api/http/handlers"
	"github.com/spec-kit/netcafe-service/internal/api/ws"
	"github.com/spec-kit/netcafe-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Accounts       *handlers.AccountsHandler
	TopUps         *handlers.TopUpsHandler
	Messages       *handlers.MessagesHandler
	Realtime       *ws.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)
	app.Get("/ws", cfg.AuthMiddleware.Handle, cfg.Realtime.Upgrade, cfg.Realtime.Serve())

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Post("/auth/logout", cfg.Auth.Logout)
	protected.Get("/me", cfg.Auth.Me)
	protected.Get("/messages", cfg.Messages.Conversation)

	customer := protected.Group("/topups", auth.RequireCustomer())
	customer.Get("", cfg.TopUps.ListOwn)
	customer.Post("", cfg.TopUps.CreateRequest)

	staff := protected.Group("/staff", auth.RequireStaff())
	staff.Get("/stats", cfg.Health.Stats)
	staff.Get("/accounts", cfg.Accounts.ListCustomers)
	staff.Post("/accounts", cfg.Accounts.CreateCustomer)
	staff.Get("/accounts/online", cfg.Accounts.ListOnline)
	staff.Post("/accounts/:id/topup", cfg.Accounts.TopUp)
	staff.Get("/topups", cfg.TopUps.ListAll)
	staff.Post("/topups/:id/approve", cfg.TopUps.Approve)
}
