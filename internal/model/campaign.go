// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft             CampaignStatus = "draft"
	CampaignGeneratingScripts CampaignStatus = "generating_scripts"
	CampaignGeneratingAudio   CampaignStatus = "generating_audio"
	CampaignReview            CampaignStatus = "review"
	CampaignScheduled         CampaignStatus = "scheduled"
	CampaignDispatching       CampaignStatus = "dispatching"
	CampaignActive            CampaignStatus = "active"
	CampaignCompleted         CampaignStatus = "completed"
	CampaignFailed            CampaignStatus = "failed"
)

// CampaignStats is recomputed from script state after every dispatch run.
type CampaignStats struct {
	TotalScripts   int `json:"totalScripts"`
	SentScripts    int `json:"sentScripts"`
	FailedScripts  int `json:"failedScripts"`
	PendingScripts int `json:"pendingScripts"`
	DropsSent      int `json:"dropsSent"`
	DropsFailed    int `json:"dropsFailed"`
}

type Campaign struct {
	ID                string         `db:"id" json:"id"`
	OwnerID           string         `db:"owner_id" json:"ownerId"`
	Name              string         `db:"name" json:"name"`
	Status            CampaignStatus `db:"status" json:"status"`
	PreviousStatus    CampaignStatus `db:"previous_status" json:"-"`
	Version           int            `db:"version" json:"version"`
	Stats             CampaignStats  `db:"stats" json:"stats"`
	SubmittedAt       *time.Time     `db:"submitted_at" json:"submittedAt,omitempty"`
	DispatchStartedAt *time.Time     `db:"dispatch_started_at" json:"dispatchStartedAt,omitempty"`
	// DispatchHeartbeatAt is refreshed by the run holding the guard.
	DispatchHeartbeatAt *time.Time `db:"dispatch_heartbeat_at" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
