package calls

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zaltech/callops/pkg/logging"
)

// LiveReader exposes the realtime state the handler reads from. The stream
// core implements it.
type LiveReader interface {
	ActiveCalls() []Call
	Detail(callID string) (CallDetail, bool)
	IsLive(callID string) bool
}

// SummarySender delivers a call summary email. The notify package
// implements it.
type SummarySender interface {
	SendCallSummary(ctx context.Context, to string, detail *CallDetail) error
}

// Handler handles HTTP requests for calls
type Handler struct {
	live    LiveReader
	archive *RecentCallStore
	repo    Repository
	email   SummarySender
	logger  *logging.Logger
}

// NewHandler creates a new calls handler
func NewHandler(live LiveReader, archive *RecentCallStore, repo Repository, email SummarySender, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		live:    live,
		archive: archive,
		repo:    repo,
		email:   email,
		logger:  logger.Component("calls.handler"),
	}
}

// ListLiveResponse is the response for listing active calls
type ListLiveResponse struct {
	Calls []Call `json:"calls"`
	Count int    `json:"count"`
}

// ListLive handles GET /ops/calls/live requests
func (h *Handler) ListLive(w http.ResponseWriter, r *http.Request) {
	calls := h.live.ActiveCalls()
	writeJSON(w, http.StatusOK, ListLiveResponse{Calls: calls, Count: len(calls)})
}

// ListHistoryResponse is the response for listing ended calls
type ListHistoryResponse struct {
	Calls  []*Call `json:"calls"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListHistory handles GET /ops/calls requests
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 200 {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list calls", "error", err)
		http.Error(w, "failed to list calls", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListHistoryResponse{
		Calls:  list,
		Count:  len(list),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// ListRecentResponse is the response for listing recently ended calls
type ListRecentResponse struct {
	Calls []*CallDetail `json:"calls"`
	Count int           `json:"count"`
}

// ListRecent handles GET /ops/calls/recent requests, served from the Redis
// archive of just-ended calls. Without Redis the list is empty.
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	var limit int64 = 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	list, err := h.archive.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recent calls", "error", err)
		http.Error(w, "failed to list recent calls", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*CallDetail{}
	}
	writeJSON(w, http.StatusOK, ListRecentResponse{Calls: list, Count: len(list)})
}

// CallDetailResponse is a call detail plus whether it is still live.
type CallDetailResponse struct {
	CallDetail
	Live bool `json:"live"`
}

// GetCall handles GET /ops/calls/{callID} requests. Lookup order: live
// state, recent archive, then history.
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	detail, err := h.lookup(r.Context(), callID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			http.Error(w, "call not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load call", "error", err, "call_id", callID)
		http.Error(w, "failed to load call", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, CallDetailResponse{
		CallDetail: *detail,
		Live:       h.live.IsLive(callID),
	})
}

func (h *Handler) lookup(ctx context.Context, callID string) (*CallDetail, error) {
	if detail, ok := h.live.Detail(callID); ok {
		return &detail, nil
	}
	if archived, err := h.archive.Get(ctx, callID); err != nil {
		h.logger.Warn("archive lookup failed", "error", err, "call_id", callID)
	} else if archived != nil {
		return archived, nil
	}
	return h.repo.GetByID(ctx, callID)
}

// SummaryEmailRequest is the body for POST /ops/calls/{callID}/summary-email
type SummaryEmailRequest struct {
	To string `json:"to"`
}

// SendSummaryEmail handles POST /ops/calls/{callID}/summary-email requests
func (h *Handler) SendSummaryEmail(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	var req SummaryEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || !strings.Contains(req.To, "@") {
		http.Error(w, ErrMissingRecipient.Error(), http.StatusBadRequest)
		return
	}

	detail, err := h.lookup(r.Context(), callID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			http.Error(w, "call not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load call", "error", err, "call_id", callID)
		http.Error(w, "failed to load call", http.StatusInternalServerError)
		return
	}

	if err := h.email.SendCallSummary(r.Context(), req.To, detail); err != nil {
		h.logger.Error("failed to send summary email", "error", err, "call_id", callID)
		http.Error(w, "failed to send summary email", http.StatusBadGateway)
		return
	}

	h.logger.Info("summary email sent", "call_id", callID, "to", req.To)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
