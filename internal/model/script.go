// internal/model/script.go
package model

import "time"

type AudioStatus string

const (
	AudioNotStarted AudioStatus = "not_started"
	AudioProcessing AudioStatus = "processing"
	AudioCompleted  AudioStatus = "completed"
)

// DeliveryStatus is monotonic: sent and failed are terminal.
type DeliveryStatus string

const (
	DeliveryNotSent DeliveryStatus = "not_sent"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

// ScriptAudio is owned by the rendering pipeline and read-only here.
type ScriptAudio struct {
	Status AudioStatus `json:"status"`
	URL    string      `json:"url"`
}

type ScriptDelivery struct {
	Status            DeliveryStatus `json:"status"`
	SentAt            *time.Time     `json:"sentAt,omitempty"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	FailureReason     string         `json:"failureReason,omitempty"`
	SentCount         int            `json:"sentCount"`
	FailedCount       int            `json:"failedCount"`
}

type Script struct {
	ID         string         `db:"id" json:"id"`
	CampaignID string         `db:"campaign_id" json:"campaignId"`
	ContactID  string         `db:"contact_id" json:"contactId,omitempty"` // empty for broadcast scripts
	IsGeneral  bool           `db:"is_general" json:"isGeneral"`
	Audio      ScriptAudio    `json:"audio"`
	Delivery   ScriptDelivery `json:"delivery"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// Eligible reports whether the script can take part in a dispatch run.
func (s *Script) Eligible() bool {
	return s.Audio.Status == AudioCompleted && s.Delivery.Status == DeliveryNotSent
}
