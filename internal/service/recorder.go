package service

import (
	"context"

	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
)

type Recorder struct {
	executions repository.ExecutionRepositoryInterface
}

func NewRecorder(executions repository.ExecutionRepositoryInterface) *Recorder {
	return &Recorder{executions: executions}
}

// Snapshot describes the campaign as the run saw it.
func Snapshot(campaign *model.Campaign, plan *WorkPlan) model.ExecutionSnapshot {
	return model.ExecutionSnapshot{
		CampaignName:    campaign.Name,
		CampaignStatus:  campaign.Status,
		Mode:            plan.Mode,
		CampaignScripts: plan.CampaignScripts,
		EligibleScripts: plan.EligibleScripts,
		TotalScripts:    plan.TotalScripts(),
		TotalContacts:   plan.TotalContacts(),
		WorkItems:       len(plan.Items),
	}
}

// Record persists the immutable audit record of a finished run. Every item
// has an outcome at this point, so PendingCount is zero and the delivery
// metrics start empty.
func (r *Recorder) Record(ctx context.Context, executionID string, campaign *model.Campaign, plan *WorkPlan, outcome *Outcome) (*model.ExecutionRecord, error) {
	rec := &model.ExecutionRecord{
		ID:         executionID,
		CampaignID: campaign.ID,
		OwnerID:    campaign.OwnerID,
		Strategy:   plan.Mode.Strategy(),
		Snapshot:   Snapshot(campaign, plan),
		Results: model.ExecutionResults{
			SuccessCount: outcome.SuccessCount,
			FailureCount: outcome.FailureCount,
			PendingCount: 0,
		},
		Metrics: model.ExecutionMetrics{},
	}
	if err := r.executions.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
