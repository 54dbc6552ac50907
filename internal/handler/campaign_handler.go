// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

// CampaignReader is satisfied by *service.CampaignService.
type CampaignReader interface {
	GetCampaignDetailsWithStats(ctx context.Context, campaignID, ownerID string) (*service.CampaignDetails, error)
	ListExecutions(ctx context.Context, campaignID, ownerID string, limit int) ([]*model.ExecutionRecord, error)
}

// CampaignHandler serves the read side of campaigns.
type CampaignHandler struct {
	Service CampaignReader
	Log     logger.Logger
}

func NewCampaignHandler(svc CampaignReader, log logger.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Log: log}
}

func (h *CampaignHandler) Routes(r chi.Router) {
	r.Get("/campaigns/{id}", h.GetCampaignHandlerWithStats)
	r.Get("/campaigns/{id}/executions", h.ListExecutionsHandler)
}

// GetCampaignHandlerWithStats returns a campaign with stats recomputed from its scripts
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id, ownerID)
	if err != nil {
		h.fail(w, id, "failed to fetch campaign", err)
		return
	}

	respond(w, http.StatusOK, details)
}

// ListExecutionsHandler returns execution records, newest first
func (h *CampaignHandler) ListExecutionsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.Service.ListExecutions(r.Context(), id, ownerID, limit)
	if err != nil {
		h.fail(w, id, "failed to fetch executions", err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (h *CampaignHandler) fail(w http.ResponseWriter, campaignID, msg string, err error) {
	var nf *appErrors.NotFoundError
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.Log.Error(msg, map[string]interface{}{"campaign_id": campaignID, "error": err})
	respondError(w, http.StatusInternalServerError, msg)
}

func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		respondError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return id, true
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]interface{}{"success": false, "error": msg})
}
