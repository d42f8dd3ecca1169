package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkovach/fieldsync/internal/index"
	"github.com/mkovach/fieldsync/internal/ledger"
	"github.com/mkovach/fieldsync/internal/orchestrator"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth
// group.
func NewRouter(svc *orchestrator.Service, idx index.SiteIndex, l *ledger.Ledger, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, idx, l)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Submissions.
	r.Post("/submit/site-note", h.SubmitSiteNote)
	r.Post("/submit/tank-reading", h.SubmitTankReading)
	r.Post("/submit/maintenance", h.SubmitMaintenance)
	r.Post("/submit/visit", h.SubmitVisit)
	r.Post("/submit/bad-data", h.SubmitBadData)

	// Offline queue.
	r.Post("/replay", h.Replay)
	r.Get("/queue", h.QueueStatus)

	// Browsing.
	r.Get("/sites", h.ListSites)
	r.Get("/sites/{site}", h.GetSite)
	r.Get("/sites/{site}/refill", h.SiteRefill)
	r.Get("/tanks", h.ListTanks)
	r.Get("/tanks/{id}/latest", h.TankLatest)
	r.Get("/tanks/{id}/history", h.TankHistory)
	r.Get("/visits", h.ListVisits)
	r.Get("/search", h.Search)

	r.Get("/health", h.Health)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
