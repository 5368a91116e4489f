package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/handlers"
	"github.com/harborview/civicwatch/internal/middleware"
	"github.com/harborview/civicwatch/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	eventHandler *handlers.EventHandler,
	sessions auth.SessionValidator,
) {
	// Rate limiting config for auth endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.Refresh)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/verification/enroll", authHandler.EnrollVerification)

		// Self-service device management
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(models.PermSessionsManage))
			r.Get("/sessions", sessionHandler.List)
			r.Delete("/sessions/{sessionID}", sessionHandler.Invalidate)
		})

		// Operator surface
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(models.PermEventsRead))
			r.Get("/security/events", eventHandler.List)
		})
	})
}
