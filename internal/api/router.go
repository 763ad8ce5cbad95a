package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Credentials guard every route except /health.
type Credentials struct {
	Username string
	Password string
}

// NewRouter creates a chi router with the dashboard routes mounted.
// events, if non-nil, is served at GET /events behind the same auth.
func NewRouter(h *Handler, creds Credentials, events http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(creds.Username, creds.Password))

		r.Get("/status", h.Status)
		r.Get("/metrics", h.Metrics)
		r.Get("/costs", h.Costs)

		r.Get("/profiles", h.ListProfiles)
		r.Post("/profiles", h.CreateProfile)
		r.Put("/profiles/{key}", h.UpdateProfile)
		r.Delete("/profiles/{key}", h.DeleteProfile)
		r.Post("/profiles/{key}/switch", h.SwitchProfile)

		r.Get("/drafts", h.ListDrafts)
		r.Get("/drafts/{version}", h.GetDraft)
		r.Put("/drafts/{version}", h.UpdateDraft)
		r.Delete("/drafts/{version}", h.DeleteDraft)
		r.Post("/drafts/{version}/publish", h.PublishDraft)
		r.Get("/drafts/{version}/images/{filename}", h.ServeImage)

		if events != nil {
			r.Get("/events", events.ServeHTTP)
		}
	})

	return r
}
