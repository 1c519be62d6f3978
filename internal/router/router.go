package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"membersync/internal/handler"
	"membersync/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler             *handler.Handler
	MemberHandler       *handler.MemberHandler
	RegistrationHandler *handler.RegistrationHandler
	WebhookHandler      *handler.WebhookHandler
	AdminHandler        *handler.AdminHandler
	AuthMiddleware      func(http.Handler) http.Handler
	Logger              zerolog.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Actor"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// Webhook receiver - authenticated by HMAC signature, not API key
	if cfg.WebhookHandler != nil {
		r.Post("/webhooks/membership", cfg.WebhookHandler.Receive)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.MemberHandler != nil {
				r.Route("/members", func(r chi.Router) {
					r.Get("/{id}", cfg.MemberHandler.Get)
					r.Post("/batch", cfg.MemberHandler.Batch)
				})
			}

			if cfg.RegistrationHandler != nil {
				r.Route("/registrations", func(r chi.Router) {
					r.Post("/", cfg.RegistrationHandler.Create)
					r.Delete("/", cfg.RegistrationHandler.Cancel)
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/pending", cfg.AdminHandler.PendingWrites)
					r.Get("/audit", cfg.AdminHandler.AuditLog)
					r.Post("/cache/invalidate", cfg.AdminHandler.InvalidateCache)
				})
			}
		})
	})

	return r
}
