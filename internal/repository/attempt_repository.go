package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

type AttemptRepositoryInterface interface {
	Create(ctx context.Context, a *model.DeliveryAttempt) error
}

// AttemptRepository stores one row per (script, contact) delivery attempt.
type AttemptRepository struct {
	DB *sql.DB
}

func (r *AttemptRepository) Create(ctx context.Context, a *model.DeliveryAttempt) error {
	query := `
        INSERT INTO delivery_attempts
        (id, execution_id, campaign_id, script_id, contact_id, phone, status, provider_message_id, error, attempted_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		a.ID, a.ExecutionID, a.CampaignID, a.ScriptID, a.ContactID, a.Phone,
		a.Status, a.ProviderMessageID, a.Error, a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt for script %s: %w", a.ScriptID, err)
	}
	return nil
}

var _ AttemptRepositoryInterface = (*AttemptRepository)(nil)
