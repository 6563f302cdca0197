package www

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"unloadtrack/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
	logins   *loginLimiter
	liveTick time.Duration
}

// NewRouter builds the HTTP API. The returned func detaches the event hub
// from the engine and must be called on shutdown.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	store := sessions.NewCookieStore([]byte(eng.AppConfig().Web.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	hub := NewEventHub()
	subID := eng.Events.Subscribe(hub.Publish)

	h := &Handlers{
		engine:   eng,
		sessions: store,
		eventHub: hub,
		logins:   newLoginLimiter(2*time.Second, 5),
		liveTick: time.Second,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/login", h.limitLogin(h.handleLogin))
	r.Post("/logout", h.handleLogout)
	r.Get("/api/health", h.apiHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/dashboard", h.apiDashboard)
		r.Get("/me", h.apiMe)

		r.Get("/jobs", h.apiListJobs)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.apiGetJob)
			r.Get("/destinations", h.apiDestinations)
			r.Get("/report.xlsx", h.apiJobReport)
			r.Get("/live", h.apiJobLive)
			r.Post("/complete", h.apiCompleteJob)

			r.Post("/lines", h.apiStartLine)
			r.Post("/lines/{line}/pause", h.apiPauseLine)
			r.Post("/lines/{line}/resume", h.apiResumeLine)
			r.Post("/lines/{line}/finish", h.apiFinishLine)
			r.Post("/lines/{line}/reconcile", h.apiReconcileLine)
		})

		r.Get("/stock", h.apiListStock)
		r.Get("/events", h.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/stock", h.apiUpdateStockMeta)
			r.Get("/corrections", h.apiListCorrections)
			r.Post("/corrections", h.apiCreateCorrection)
			r.Get("/diagnostics", h.apiDiagnostics)
			r.Post("/arrivals/proxy", h.apiArrivalsProxy)
		})
	})

	stop := func() {
		eng.Events.Unsubscribe(subID)
		hub.Close()
	}
	return r, stop
}
