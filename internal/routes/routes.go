package routes

import (
	"github.com/clinicboard/gatekeeper/internal/handlers"
	"github.com/clinicboard/gatekeeper/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	captchaHandler *handlers.CaptchaHandler,
	resetHandler *handlers.ResetHandler,
	sessionHandler *handlers.SessionHandler,
	adminHandler *handlers.AdminHandler,
	sessionValidator middleware.SessionValidator,
) {
	// Public routes - no session required
	router.Post("/auth/login", authHandler.Login)
	router.Get("/auth/lockout", authHandler.LockoutStatus)

	router.Post("/auth/captcha", captchaHandler.Issue)
	router.Post("/auth/captcha/verify", captchaHandler.Verify)

	router.Post("/auth/password-reset/request", resetHandler.Request)
	router.Post("/auth/password-reset/confirm", resetHandler.Confirm)

	// Session-bearing routes
	router.Get("/auth/session", sessionHandler.Validate)
	router.Post("/auth/logout", sessionHandler.Logout)

	// Operator routes - live session required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessionValidator))

		r.Get("/admin/sessions", adminHandler.ListSessions)
		r.Delete("/admin/sessions/{id}", adminHandler.RevokeSession)
		r.Post("/admin/lockouts/reset", adminHandler.ResetLockout)
	})
}
