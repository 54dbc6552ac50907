// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/queue"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

// OwnerHeader carries the authenticated user id set by the upstream gateway.
const OwnerHeader = "X-User-ID"

type CampaignController struct {
	Dispatcher service.Dispatcher
	// Jobs is optional; without it ?async=true is rejected.
	Jobs      queue.Publisher
	JobsTopic string
	Log       logger.Logger
}

type dispatchBody struct {
	SendNow       *bool  `json:"sendNow"`
	ScheduledDate string `json:"scheduledDate"`
}

// Routes mounts the dispatch trigger on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns/{id}/dispatch", c.DispatchCampaign)
}

// DispatchCampaign runs the dispatch inline and returns the full report, or
// enqueues it for the worker when called with ?async=true.
func (c *CampaignController) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
		return
	}
	campaignID := chi.URLParam(r, "id")

	var body dispatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sendNow := true
	if body.SendNow != nil {
		sendNow = *body.SendNow
	}

	if r.URL.Query().Get("async") == "true" {
		c.enqueue(w, r, service.DispatchJob{
			CampaignID:    campaignID,
			OwnerID:       ownerID,
			SendNow:       &sendNow,
			ScheduledDate: body.ScheduledDate,
		})
		return
	}

	report, err := c.Dispatcher.DispatchCampaign(r.Context(), service.DispatchCommand{
		CampaignID:    campaignID,
		OwnerID:       ownerID,
		SendNow:       sendNow,
		ScheduledDate: body.ScheduledDate,
	})
	if err != nil {
		c.fail(w, campaignID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *CampaignController) enqueue(w http.ResponseWriter, r *http.Request, job service.DispatchJob) {
	if c.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async dispatch is not enabled")
		return
	}
	payload, err := json.Marshal(job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode job")
		return
	}
	if err := c.Jobs.Publish(r.Context(), c.JobsTopic, payload); err != nil {
		c.Log.Error("failed to publish dispatch job", map[string]interface{}{"campaign_id": job.CampaignID, "error": err})
		writeError(w, http.StatusServiceUnavailable, "failed to queue dispatch")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"campaignId": job.CampaignID,
		"queued":     true,
	})
}

func (c *CampaignController) fail(w http.ResponseWriter, campaignID string, err error) {
	status := appErrors.HTTPStatus(err)
	if !appErrors.IsFatal(err) {
		c.Log.Error("dispatch failed", map[string]interface{}{"campaign_id": campaignID, "error": err})
		writeError(w, status, "dispatch failed")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
