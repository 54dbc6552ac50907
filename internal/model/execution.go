// internal/model/execution.go
package model

import "time"

// DeliveryMode is fixed per run by the first eligible script.
type DeliveryMode string

const (
	ModeBroadcast    DeliveryMode = "broadcast"
	ModePersonalized DeliveryMode = "personalized"
)

func (m DeliveryMode) IsValid() bool {
	switch m {
	case ModeBroadcast, ModePersonalized:
		return true
	}
	return false
}

// Strategy is the value persisted in executions.strategy.
func (m DeliveryMode) Strategy() string {
	return "ringless_voicemail_" + string(m)
}

// ExecutionSnapshot captures campaign and script counts at run time.
// TotalScripts counts participating scripts (1 in broadcast mode);
// CampaignScripts counts every script of the campaign.
type ExecutionSnapshot struct {
	CampaignName    string         `json:"campaignName"`
	CampaignStatus  CampaignStatus `json:"campaignStatus"`
	Mode            DeliveryMode   `json:"mode"`
	CampaignScripts int            `json:"campaignScripts"`
	EligibleScripts int            `json:"eligibleScripts"`
	TotalScripts    int            `json:"totalScripts"`
	TotalContacts   int            `json:"totalContacts"`
	WorkItems       int            `json:"workItems"`
}

// ExecutionResults satisfies successCount + failureCount + pendingCount == work items.
type ExecutionResults struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
	PendingCount int `json:"pendingCount"`
}

// ExecutionMetrics are filled in later by the delivery webhook.
type ExecutionMetrics struct {
	Delivered int `json:"delivered"`
	Listened  int `json:"listened"`
	Callbacks int `json:"callbacks"`
}

// ExecutionRecord is written once per dispatch run and never updated here.
type ExecutionRecord struct {
	ID         string            `db:"id" json:"id"`
	CampaignID string            `db:"campaign_id" json:"campaignId"`
	OwnerID    string            `db:"owner_id" json:"ownerId"`
	Strategy   string            `db:"strategy" json:"strategy"`
	Snapshot   ExecutionSnapshot `db:"snapshot" json:"snapshot"`
	Results    ExecutionResults  `db:"results" json:"results"`
	Metrics    ExecutionMetrics  `db:"metrics" json:"metrics"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
}
