package http

import (
	"net/http"

	"github.com/Opizontas-Studio/dc-license-bot/internal/application"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/go-chi/chi/v5"
)

type Options struct {
	WebhookSecret string
	Metrics       http.Handler
}

type Handler struct {
	service       *application.Service
	verifier      ports.TokenVerifier
	webhookSecret string
	metrics       http.Handler
}

func NewHandler(service *application.Service, verifier ports.TokenVerifier, opts Options) *Handler {
	return &Handler{
		service:       service,
		verifier:      verifier,
		webhookSecret: opts.WebhookSecret,
		metrics:       opts.Metrics,
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.readiness)
	if handler.metrics != nil {
		r.Method(http.MethodGet, "/metrics", handler.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(handler.webhookMiddleware).Post("/platform/events", handler.platformEvent)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", handler.listTemplates)
				r.Post("/", handler.createTemplate)
				r.Get("/{template_id}", handler.getTemplate)
				r.Patch("/{template_id}", handler.updateTemplate)
				r.Delete("/{template_id}", handler.deleteTemplate)
			})

			r.Get("/settings/me", handler.getSettings)
			r.Put("/settings/me", handler.updateSettings)

			r.Route("/threads/{thread_id}", func(r chi.Router) {
				r.Get("/license", handler.getPublishedPost)
				r.Post("/license", handler.publish)
				r.Put("/license", handler.replace)
				r.Get("/license/history", handler.publicationHistory)
				r.Post("/auto-publish/confirm", handler.confirmAutoPublish)
			})

			r.Get("/system-licenses", handler.listSystemLicenses)

			r.Route("/admin", func(r chi.Router) {
				r.Use(handler.adminOnly)
				r.Post("/system-licenses/reload", handler.reloadSystemLicenses)
				r.Get("/health", handler.health)
				r.Get("/forums", handler.listForums)
				r.Post("/forums", handler.allowForum)
				r.Delete("/forums", handler.clearForums)
				r.Delete("/forums/{channel_id}", handler.disallowForum)
			})
		})
	})
	return r
}
