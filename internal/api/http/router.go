package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/devdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Assignments    *handlers.AssignmentsHandler
	Integration    *handlers.IntegrationHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The integration endpoint
// authenticates by shared secret inside its handler, not by JWT.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	app.Post("/integration/tickets", cfg.Integration.CreateTicket)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transition", cfg.Tickets.Transition)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	// Route-level manager gate; the assignment service re-checks policy.
	assignees := tickets.Group("/:id/assignees", auth.RequireRole(domain.RoleManager))
	assignees.Post("/developer", cfg.Assignments.AssignDeveloper)
	assignees.Post("/qa", cfg.Assignments.AssignQA)
}
