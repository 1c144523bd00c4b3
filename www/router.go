// Package www serves the local status and admin UI for the agent.
package www

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MCSets/mcsets-setstore-plugin/engine"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	sessions *authSessions
	tmpl     *template.Template
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: newAuthSessions(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(),
	}
	h.tmpl = template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE (no auth — local status display)
	r.Get("/events", h.eventHub.HandleSSE)

	// Public pages
	r.Get("/", h.handleStatus)
	r.Get("/status", h.handleStatus)

	// Login/logout
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		// Public API
		r.Get("/status", h.apiStatus)
		r.Get("/deliveries", h.apiListDeliveries)

		// Admin API
		r.Group(func(r chi.Router) {
			r.Use(h.adminMiddleware)

			r.Get("/deliveries/{deliveryID}/commands", h.apiDeliveryCommands)
			r.Post("/queue/process", h.apiProcessQueue)
			r.Post("/reconnect", h.apiReconnect)
			r.Post("/verify", h.apiVerify)
			r.Put("/config/logging", h.apiUpdateLogging)
			r.Post("/config/password", h.apiChangePassword)
		})
	})

	return r, func() {
		h.eventHub.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.sessions.currentUser(r); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
