package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appanalysis "github.com/bryanwahyu/vulnwatch/internal/application/analysis"
	appscans "github.com/bryanwahyu/vulnwatch/internal/application/scans"
	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
	"github.com/bryanwahyu/vulnwatch/internal/infra/ws"
	mw "github.com/bryanwahyu/vulnwatch/internal/middleware"
)

type Router struct {
	scansSvc    *appscans.Service
	analysisSvc *appanalysis.Service
	hub         *ws.Hub
}

func NewRouter(scansSvc *appscans.Service, analysisSvc *appanalysis.Service, hub *ws.Hub) http.Handler {
	r := &Router{scansSvc: scansSvc, analysisSvc: analysisSvc, hub: hub}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/scanner", func(rt chi.Router) {
		rt.Post("/start", r.wrap(r.handleStart))
		rt.Get("/status/{scanId}", r.wrap(r.handleStatus))
		rt.Post("/stop/{scanId}", r.wrap(r.handleStop))
		rt.Get("/logs/{scanId}", r.wrap(r.handleLogs))
		rt.Get("/active", r.wrap(r.handleActive))
		rt.Get("/recent", r.wrap(r.handleRecent))
		rt.Get("/health", r.wrap(r.handleHealth))
	})

	mux.Get("/ws", hub.Handler())

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var vErr *domain.ValidationError
			var cErr *domain.CapacityError
			switch {
			case errors.As(err, &vErr):
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
			case errors.As(err, &cErr):
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": cErr.Error()})
			case errors.Is(err, domain.ErrScanNotFound):
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
			default:
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /scanner/start
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	var opts domain.Options
	if err := json.NewDecoder(req.Body).Decode(&opts); err != nil {
		return &domain.ValidationError{Reason: "malformed request body"}
	}
	if err := mw.ValidateURL(opts.Target.URL); err != nil {
		return &domain.ValidationError{Reason: err.Error()}
	}

	id, err := r.scansSvc.StartScan(req.Context(), opts)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusAccepted, map[string]string{
		"scanId":  string(id),
		"status":  "started",
		"message": "Scan started successfully",
	})
}

// GET /scanner/status/{scanId}
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "scanId"))

	result, analysis, err := r.scansSvc.GetScanStatus(req.Context(), id)
	if err != nil {
		return err
	}

	resp := map[string]any{
		"scan":            result.Scan,
		"vulnerabilities": result.Vulnerabilities,
	}
	if analysis != nil {
		resp["analysis"] = analysis
	}
	return writeJSON(w, http.StatusOK, resp)
}

// POST /scanner/stop/{scanId}
func (r *Router) handleStop(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "scanId"))

	stopped, err := r.scansSvc.StopScan(req.Context(), id)
	if err != nil {
		return err
	}
	if !stopped {
		return domain.ErrScanNotFound
	}

	return writeJSON(w, http.StatusOK, map[string]string{
		"scanId":  string(id),
		"message": "Scan stopped",
	})
}

// GET /scanner/logs/{scanId}?limit=N
func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) error {
	id := domain.ScanID(chi.URLParam(req, "scanId"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	logs, err := r.scansSvc.GetScanLogs(req.Context(), id, mw.ValidateLimit(limit))
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"scanId": string(id),
		"logs":   logs,
	})
}

// GET /scanner/active
func (r *Router) handleActive(w http.ResponseWriter, req *http.Request) error {
	ids := r.scansSvc.ActiveScanIDs()
	return writeJSON(w, http.StatusOK, map[string]any{
		"activeScans":   ids,
		"activeCount":   len(ids),
		"maxConcurrent": r.scansSvc.MaxConcurrent,
	})
}

// GET /scanner/recent?limit=N
func (r *Router) handleRecent(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	scans, err := r.scansSvc.RecentScans(req.Context(), mw.ValidateLimit(limit))
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"scans": scans,
		"count": len(scans),
	})
}

// GET /scanner/health
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) error {
	active := r.scansSvc.ActiveCount()
	return writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"activeScans":     active,
		"maxConcurrent":   r.scansSvc.MaxConcurrent,
		"availableSlots":  r.scansSvc.MaxConcurrent - active,
		"toolAvailable":   r.scansSvc.ToolAvailable(),
		"analysisEnabled": r.analysisSvc.Enabled(),
		"connectionCount": r.hub.ConnectionCount(),
		"timestamp":       time.Now().UTC(),
	})
}
