package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Batch sweep trigger (external scheduler, shared secret)
	r.Route("/batch", func(r chi.Router) {
		r.Get("/health", s.HandleBatchHealth)
		r.With(s.batchAuthMiddleware).Post("/run", s.HandleBatchRun)
	})

	// Inbound messages (gateway webhook, gateway token)
	r.Route("/messages", func(r chi.Router) {
		r.Use(s.gatewayAuthMiddleware)
		r.Post("/inbound", s.HandleInboundMessage)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
			r.Get("/{id}", s.HandleGetUser)
		})

		// Tenants
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.HandleListTenants)
			r.Post("/", s.HandleCreateTenant)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetTenant)
				r.Put("/", s.HandleUpdateTenant)
				r.Delete("/", s.HandleDeleteTenant)
				r.Get("/knowledge", s.HandleListKnowledge)
				r.Put("/knowledge", s.HandleReplaceKnowledge)
			})
		})

		// Settings
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.HandleGetSettings)
			r.Put("/", s.HandleUpdateSettings)
		})

		// Rate limiter inspection and reset
		r.Route("/ratelimit", func(r chi.Router) {
			r.Get("/", s.HandleGetRateLimit)
			r.Post("/reset", s.HandleResetRateLimit)
			r.Delete("/", s.HandleBulkResetRateLimit)
		})

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.HandleListConversations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetConversation)
				r.Get("/messages", s.HandleListConversationMessages)
				r.Post("/end", s.HandleEndConversation)
			})
		})

		// Leads
		r.Route("/leads", func(r chi.Router) {
			r.Get("/", s.HandleListLeads)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetLead)
				r.Put("/status", s.HandleUpdateLeadStatus)
			})
		})
	})
}
