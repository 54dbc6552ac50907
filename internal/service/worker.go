package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/queue"
)

// Dispatcher defines the method the worker needs
type Dispatcher interface {
	DispatchCampaign(ctx context.Context, cmd DispatchCommand) (*DispatchReport, error)
}

// DispatchJob is the queued form of a dispatch command.
type DispatchJob struct {
	CampaignID    string `json:"campaign_id"`
	OwnerID       string `json:"owner_id"`
	SendNow       *bool  `json:"send_now,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
}

// Worker processes dispatch jobs from the queue
type Worker struct {
	Dispatcher Dispatcher
	Log        logger.Logger
}

// Constructor
func NewWorker(d Dispatcher, log logger.Logger) *Worker {
	return &Worker{Dispatcher: d, Log: log}
}

// Handle runs one job. Malformed jobs and dispatch precondition failures are
// permanent; anything else may succeed on redelivery.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return queue.Permanent(fmt.Errorf("invalid job: %w", err))
	}
	if job.CampaignID == "" || job.OwnerID == "" {
		return queue.Permanent(errors.New("invalid job: campaign_id and owner_id are required"))
	}

	sendNow := true
	if job.SendNow != nil {
		sendNow = *job.SendNow
	}

	report, err := w.Dispatcher.DispatchCampaign(ctx, DispatchCommand{
		CampaignID:    job.CampaignID,
		OwnerID:       job.OwnerID,
		SendNow:       sendNow,
		ScheduledDate: job.ScheduledDate,
	})
	if err != nil {
		if appErrors.IsFatal(err) {
			return queue.Permanent(err)
		}
		return err
	}

	w.Log.Info("queued dispatch completed", map[string]interface{}{
		"campaign_id":   report.CampaignID,
		"execution_id":  report.ExecutionID,
		"success_count": report.SuccessCount,
		"failure_count": report.FailureCount,
	})
	return nil
}
