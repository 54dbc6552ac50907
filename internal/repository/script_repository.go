package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

type ScriptRepositoryInterface interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.Script, error)
	MarkSent(ctx context.Context, scriptID, providerMessageID string, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, scriptID, reason string) (bool, error)
	RecordBroadcastTotals(ctx context.Context, scriptID string, sent, failed int) error
}

type ScriptRepository struct {
	DB *sql.DB
}

const scriptColumns = `
        id, campaign_id, COALESCE(contact_id, ''), is_general, audio_status, COALESCE(audio_url, ''),
        delivery_status, delivery_sent_at, COALESCE(provider_message_id, ''), COALESCE(failure_reason, ''),
        sent_count, failed_count, created_at`

// ListByCampaign returns every script of the campaign in creation order;
// eligibility is decided by the caller.
func (r *ScriptRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Script, error) {
	query := `SELECT` + scriptColumns + `
        FROM scripts
        WHERE campaign_id = $1
        ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list scripts for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	scripts := []*model.Script{}
	for rows.Next() {
		s := &model.Script{}
		if err := rows.Scan(
			&s.ID, &s.CampaignID, &s.ContactID, &s.IsGeneral, &s.Audio.Status, &s.Audio.URL,
			&s.Delivery.Status, &s.Delivery.SentAt, &s.Delivery.ProviderMessageID, &s.Delivery.FailureReason,
			&s.Delivery.SentCount, &s.Delivery.FailedCount, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

// MarkSent and MarkFailed only move a script out of not_sent; the bool
// reports whether this call made the transition.
func (r *ScriptRepository) MarkSent(ctx context.Context, scriptID, providerMessageID string, sentAt time.Time) (bool, error) {
	query := `
        UPDATE scripts
        SET delivery_status = 'sent', delivery_sent_at = $2, provider_message_id = $3,
            failure_reason = NULL, sent_count = sent_count + 1
        WHERE id = $1 AND delivery_status = 'not_sent'
    `
	return r.transition(ctx, query, scriptID, sentAt, providerMessageID)
}

func (r *ScriptRepository) MarkFailed(ctx context.Context, scriptID, reason string) (bool, error) {
	query := `
        UPDATE scripts
        SET delivery_status = 'failed', failure_reason = $2, failed_count = failed_count + 1
        WHERE id = $1 AND delivery_status = 'not_sent'
    `
	return r.transition(ctx, query, scriptID, reason)
}

func (r *ScriptRepository) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update script delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordBroadcastTotals stores one run's drop counts on the broadcast script
// and marks it sent when at least one drop went out. The counts replace the
// previous run's so a re-run over the same roster reports its own totals.
func (r *ScriptRepository) RecordBroadcastTotals(ctx context.Context, scriptID string, sent, failed int) error {
	query := `
        UPDATE scripts
        SET sent_count = $2,
            failed_count = $3,
            delivery_status = CASE WHEN $2 > 0 THEN 'sent' ELSE delivery_status END,
            delivery_sent_at = CASE WHEN $2 > 0 THEN NOW() ELSE delivery_sent_at END
        WHERE id = $1
    `
	if _, err := r.DB.ExecContext(ctx, query, scriptID, sent, failed); err != nil {
		return fmt.Errorf("record broadcast totals for script %s: %w", scriptID, err)
	}
	return nil
}

var _ ScriptRepositoryInterface = (*ScriptRepository)(nil)
