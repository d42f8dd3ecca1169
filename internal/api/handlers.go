package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/index"
	"github.com/mkovach/fieldsync/internal/ledger"
	"github.com/mkovach/fieldsync/internal/models"
	"github.com/mkovach/fieldsync/internal/orchestrator"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *orchestrator.Service
	idx    index.SiteIndex
	ledger *ledger.Ledger
}

// NewHandler creates a new Handler.
func NewHandler(svc *orchestrator.Service, idx index.SiteIndex, l *ledger.Ledger) *Handler {
	return &Handler{svc: svc, idx: idx, ledger: l}
}

// writeSubmit maps a submission outcome to an HTTP response. Queued
// submissions answer 202 so the UI can distinguish them from writes
// that reached the remote.
func writeSubmit(w http.ResponseWriter, res *orchestrator.SubmitResult, err error) {
	if err != nil {
		var verr validation.Errors
		var agg *apperr.AggregateError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorBody(verr.Error()))
		case errors.As(err, &agg):
			// Partial failure: report which steps landed.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": agg.Error(),
				"steps": agg.Completed,
			})
		case errors.Is(err, apperr.ErrVersionConflict):
			writeJSON(w, http.StatusConflict, errorBody("document changed upstream, refresh and retry"))
		case errors.Is(err, apperr.ErrLocalStorage):
			writeJSON(w, http.StatusInternalServerError, errorBody("offline queue write failed, entry may be lost"))
		default:
			slog.Error("submit failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// SubmitSiteNote handles POST /api/submit/site-note.
func (h *Handler) SubmitSiteNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var f orchestrator.NoteForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SubmitSiteNote(r.Context(), f)
	writeSubmit(w, res, err)
}

// SubmitTankReading handles POST /api/submit/tank-reading.
func (h *Handler) SubmitTankReading(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var f orchestrator.TankReadingForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SubmitTankReading(r.Context(), f)
	writeSubmit(w, res, err)
}

// SubmitMaintenance handles POST /api/submit/maintenance.
func (h *Handler) SubmitMaintenance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var f orchestrator.MaintenanceForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SubmitMaintenance(r.Context(), f)
	writeSubmit(w, res, err)
}

// SubmitVisit handles POST /api/submit/visit.
func (h *Handler) SubmitVisit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var f orchestrator.VisitForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SubmitVisit(r.Context(), f)
	writeSubmit(w, res, err)
}

// SubmitBadData handles POST /api/submit/bad-data.
func (h *Handler) SubmitBadData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var f orchestrator.BadDataForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.SubmitBadData(r.Context(), f)
	writeSubmit(w, res, err)
}

// Replay handles POST /api/replay.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	counts := h.svc.Replay(r.Context())
	out := make(map[string]int, len(counts))
	for fam, n := range counts {
		out[string(fam)] = n
	}
	writeJSON(w, http.StatusOK, ReplayResponse{Replayed: out})
}

// ListSites handles GET /api/sites.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.idx.ListSites()
	if err != nil {
		slog.Error("list sites failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]SiteSummary, 0, len(sites))
	for _, s := range sites {
		out = append(out, SiteSummary{
			Site:       s.Site,
			EntryCount: s.EntryCount,
			LastVisit:  s.LastVisit,
			Instrument: s.Instrument,
		})
	}
	writeJSON(w, http.StatusOK, SiteListResponse{Sites: out})
}

// GetSite handles GET /api/sites/{site}.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	note, err := h.svc.SiteNote(r.Context(), site)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get site failed", slog.String("site", site), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	resp := SiteDetailResponse{Site: note.Site, Entries: make([]EntryDetail, 0, len(note.Entries))}
	for _, e := range note.Entries {
		resp.Entries = append(resp.Entries, entryDetail(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SiteRefill handles GET /api/sites/{site}/refill.
func (h *Handler) SiteRefill(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	preds, err := h.svc.PredictSiteRefill(r.Context(), site)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("refill prediction failed", slog.String("site", site), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if preds == nil {
		preds = []orchestrator.RefillPrediction{}
	}
	writeJSON(w, http.StatusOK, RefillResponse{Predictions: preds})
}

// ListTanks handles GET /api/tanks.
func (h *Handler) ListTanks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TankListResponse{Tanks: h.ledger.IDs()})
}

// TankLatest handles GET /api/tanks/{id}/latest.
func (h *Handler) TankLatest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := h.ledger.LatestFold(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, tankRecordDetail(rec))
}

// TankHistory handles GET /api/tanks/{id}/history.
func (h *Handler) TankHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history := h.ledger.History(id)
	if len(history) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	out := make([]TankRecordDetail, 0, len(history))
	for _, rec := range history {
		out = append(out, tankRecordDetail(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

// ListVisits handles GET /api/visits.
func (h *Handler) ListVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.svc.Visits(r.Context())
	if err != nil {
		slog.Error("list visits failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if visits == nil {
		visits = []models.VisitInfo{}
	}
	writeJSON(w, http.StatusOK, VisitsResponse{Visits: visits})
}

// QueueStatus handles GET /api/queue.
func (h *Handler) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	depths := h.svc.QueueDepths()
	out := make(map[string]int, len(depths))
	total := 0
	for fam, n := range depths {
		out[string(fam)] = n
		total += n
	}
	writeJSON(w, http.StatusOK, QueueResponse{Depths: out, Total: total})
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.idx.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]SearchHit, 0, len(results))
	for _, res := range results {
		out = append(out, SearchHit{Path: res.Path, Site: res.Site, Snippet: res.Snippet})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Online: h.svc.Online(r.Context())})
}
