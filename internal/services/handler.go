package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zaltech/callops/pkg/logging"
)

// Handler handles HTTP requests for the service catalog
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new services handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger.Component("services.handler"),
	}
}

// ListServicesResponse is the response for listing the catalog
type ListServicesResponse struct {
	Services []*Service `json:"services"`
	Count    int        `json:"count"`
}

// ListServices handles GET /ops/services requests
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	list, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list services", "error", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListServicesResponse{Services: list, Count: len(list)})
}

// CreateService handles POST /ops/services requests
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req UpsertServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	svc, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("failed to create service", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("service created", "id", svc.ID, "name", svc.Name)
	writeJSON(w, http.StatusCreated, svc)
}

// UpdateService handles PUT /ops/services/{serviceID} requests
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serviceID")

	var req UpsertServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	svc, err := h.repo.Update(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrServiceNotFound):
			http.Error(w, "service not found", http.StatusNotFound)
		case errors.Is(err, ErrDuplicateName):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// DeactivateService handles DELETE /ops/services/{serviceID} requests
func (h *Handler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serviceID")

	if err := h.repo.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to deactivate service", "error", err, "id", id)
		http.Error(w, "failed to deactivate service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
