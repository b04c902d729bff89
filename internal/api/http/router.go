package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/api/http/handlers"
	"github.com/spec-kit/wager-arbiter/internal/auth"
	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	Interactions   *handlers.InteractionsHandler
	Ranks          *handlers.RankHandler
	Categories     *handlers.CategoriesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The gateway surface carries every
// chat-originated action; the staff surface mirrors the moderation
// operations for tooling that talks HTTP directly.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)
	adminAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleAdmin))
	adminAuth.Post("/staff/register", cfg.Staff.Register)

	gateway := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireGateway())
	gateway.Post("/tickets", cfg.Tickets.CreateTicket)
	gateway.Post("/tickets/:id/accept", cfg.Tickets.Accept)
	gateway.Post("/interactions", cfg.Interactions.Handle)
	gateway.Get("/guilds/:guildId/tickets", cfg.Tickets.ListOpen)
	gateway.Get("/guilds/:guildId/leaderboard", cfg.Ranks.Leaderboard)
	gateway.Get("/guilds/:guildId/tiers/:wins", cfg.Ranks.TierProbe)

	staff := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Get("/tickets/:id", cfg.Tickets.GetTicket)
	staff.Get("/tickets/:id/history", cfg.Tickets.GetHistory)
	staff.Post("/tickets/:id/claim", cfg.Tickets.Claim)
	staff.Post("/tickets/:id/decide", cfg.Tickets.Decide)
	staff.Post("/tickets/:id/extend", cfg.Tickets.Extend)
	staff.Post("/tickets/:id/dodge", cfg.Tickets.Dodge)
	staff.Post("/guilds/:guildId/results", cfg.Ranks.RecordResult)

	admin := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleAdmin))
	admin.Put("/guilds/:guildId/profiles/wins", cfg.Ranks.SetWins)
	admin.Put("/guilds/:guildId/tiers", cfg.Ranks.PutTiers)
	admin.Post("/guilds/:guildId/ranks/sync", cfg.Ranks.SyncTopN)
	admin.Put("/guilds/:guildId/categories", cfg.Categories.Upsert)
	admin.Get("/guilds/:guildId/categories", cfg.Categories.List)
	admin.Post("/guilds/:guildId/categories/reconcile", cfg.Categories.Reconcile)
}
