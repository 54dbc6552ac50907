// internal/service/campaign_service.go
package service

import (
	"context"
	"time"

	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
)

const (
	defaultExecutionPageSize = 20
	maxExecutionPageSize     = 100
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	ExecutionRepo repository.ExecutionRepositoryInterface
	Log           logger.Logger
}

type CampaignDetails struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Status      model.CampaignStatus `json:"status"`
	SubmittedAt *time.Time           `json:"submittedAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   *time.Time           `json:"updatedAt,omitempty"`
	Stats       model.CampaignStats  `json:"stats"`
}

// GetCampaignDetailsWithStats returns the campaign with stats recomputed from
// its scripts rather than the value stored after the last run.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID, ownerID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByIDForOwner(ctx, campaignID, ownerID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.ComputeStats(ctx, campaignID)
	if err != nil {
		s.Log.Error("failed to compute campaign stats", map[string]interface{}{"campaign_id": campaignID, "error": err})
		return nil, err
	}

	return &CampaignDetails{
		ID:          campaign.ID,
		Name:        campaign.Name,
		Status:      campaign.Status,
		SubmittedAt: campaign.SubmittedAt,
		CreatedAt:   campaign.CreatedAt,
		UpdatedAt:   campaign.UpdatedAt,
		Stats:       stats,
	}, nil
}

// ListExecutions returns the campaign's execution records, newest first.
func (s *CampaignService) ListExecutions(ctx context.Context, campaignID, ownerID string, limit int) ([]*model.ExecutionRecord, error) {
	if limit < 1 {
		limit = defaultExecutionPageSize
	}
	if limit > maxExecutionPageSize {
		limit = maxExecutionPageSize
	}

	if _, err := s.CampaignRepo.GetByIDForOwner(ctx, campaignID, ownerID); err != nil {
		return nil, err
	}
	return s.ExecutionRepo.ListByCampaign(ctx, campaignID, limit)
}
