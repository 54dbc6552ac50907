package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

type ExecutionRepositoryInterface interface {
	Create(ctx context.Context, rec *model.ExecutionRecord) error
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.ExecutionRecord, error)
}

type ExecutionRepository struct {
	DB *sql.DB
}

// Create inserts the record under its pre-assigned ID and fills CreatedAt.
func (r *ExecutionRepository) Create(ctx context.Context, rec *model.ExecutionRecord) error {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode execution snapshot: %w", err)
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encode execution results: %w", err)
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encode execution metrics: %w", err)
	}

	query := `
        INSERT INTO executions (id, campaign_id, owner_id, strategy, snapshot, results, metrics, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING created_at
    `
	err = r.DB.QueryRowContext(ctx, query,
		rec.ID, rec.CampaignID, rec.OwnerID, rec.Strategy, string(snapshot), string(results), string(metrics),
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListByCampaign returns the newest records first.
func (r *ExecutionRepository) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.ExecutionRecord, error) {
	query := `
        SELECT id, campaign_id, owner_id, strategy, snapshot, results, metrics, created_at
        FROM executions
        WHERE campaign_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	records := []*model.ExecutionRecord{}
	for rows.Next() {
		var (
			rec                        model.ExecutionRecord
			snapshot, results, metrics []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.OwnerID, &rec.Strategy, &snapshot, &results, &metrics, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot of execution %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("decode results of execution %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of execution %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

var _ ExecutionRepositoryInterface = (*ExecutionRepository)(nil)
