package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/inbound"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// Handler serves the read-only history API
type Handler struct {
	history  inbound.HistoryService
	instance string
	logger   outbound.Logger
}

// instance identifies this tracker in health responses
func NewHandler(history inbound.HistoryService, instance string, logger outbound.Logger) *Handler {
	return &Handler{
		history:  history,
		instance: instance,
		logger:   logger,
	}
}

// SetupRoutes registers the REST routes
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.healthCheck).Methods("GET")

	router.HandleFunc("/api/changes", h.listChanges).Methods("GET")
	router.HandleFunc("/api/changes/{id}", h.getChange).Methods("GET")
	router.HandleFunc("/api/files", h.fileHistory).Methods("GET")
	router.HandleFunc("/api/versions", h.viewVersion).Methods("GET")
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"instance": h.instance,
	})
}

// GET /api/changes[?path=]
func (h *Handler) listChanges(w http.ResponseWriter, r *http.Request) {
	events, err := h.history.ListChanges(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"changes": events,
		"count":   len(events),
	})
}

// GET /api/changes/{id}
func (h *Handler) getChange(w http.ResponseWriter, r *http.Request) {
	event, err := h.history.GetChange(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

// GET /api/files?path=
func (h *Handler) fileHistory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path query parameter is required", http.StatusBadRequest)
		return
	}

	versions, err := h.history.FileHistory(r.Context(), path)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"path":     path,
		"versions": versions,
	})
}

// GET /api/versions?path=
func (h *Handler) viewVersion(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path query parameter is required", http.StatusBadRequest)
		return
	}

	view, err := h.history.ViewVersion(r.Context(), path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("Failed to encode response", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var parseErr *model.ParseError
	switch {
	case errors.Is(err, model.ErrChangeNotFound), errors.Is(err, model.ErrVersionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &parseErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("Request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
