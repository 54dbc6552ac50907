// internal/model/delivery_attempt.go
package model

import "time"

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// DeliveryAttempt is one (script, contact) send, written in both modes.
type DeliveryAttempt struct {
	ID                string        `db:"id" json:"id"`
	ExecutionID       string        `db:"execution_id" json:"executionId"`
	CampaignID        string        `db:"campaign_id" json:"campaignId"`
	ScriptID          string        `db:"script_id" json:"scriptId"`
	ContactID         string        `db:"contact_id" json:"contactId"`
	Phone             string        `db:"phone" json:"phone"`
	Status            AttemptStatus `db:"status" json:"status"`
	ProviderMessageID string        `db:"provider_message_id" json:"providerMessageId,omitempty"`
	Error             string        `db:"error" json:"error,omitempty"`
	AttemptedAt       time.Time     `db:"attempted_at" json:"attemptedAt"`
}
