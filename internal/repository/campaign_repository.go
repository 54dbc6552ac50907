package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*model.Campaign, error)

	// Dispatch guard. BeginDispatch returns the run token that the holder
	// passes to every later guard call.
	BeginDispatch(ctx context.Context, id string, version int) (int, error)
	TouchDispatch(ctx context.Context, id string, token int) (bool, error)
	FinishDispatch(ctx context.Context, id string, token int, stats *model.CampaignStats, activate bool) (bool, error)
	ReleaseStaleGuards(ctx context.Context, heartbeatBefore time.Time) (int64, error)

	ComputeStats(ctx context.Context, campaignID string) (model.CampaignStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign reads ======================

func (r *CampaignRepository) GetByIDForOwner(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	query := `
        SELECT id, owner_id, name, status, COALESCE(previous_status, ''), version, stats,
               submitted_at, dispatch_started_at, dispatch_heartbeat_at, created_at, updated_at
        FROM campaigns
        WHERE id = $1 AND owner_id = $2
    `
	var (
		c        model.Campaign
		rawStats []byte
	)
	err := r.DB.QueryRowContext(ctx, query, id, ownerID).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.PreviousStatus, &c.Version, &rawStats,
		&c.SubmittedAt, &c.DispatchStartedAt, &c.DispatchHeartbeatAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	if len(rawStats) > 0 {
		if err := json.Unmarshal(rawStats, &c.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for campaign %s: %w", id, err)
		}
	}
	return &c, nil
}

// ====================== Dispatch guard ======================

// BeginDispatch moves the campaign into dispatching when the caller still
// holds the version it read. Any other writer in between wins. The returned
// token is the guarded version; it stops matching once the guard is released
// by anyone.
func (r *CampaignRepository) BeginDispatch(ctx context.Context, id string, version int) (int, error) {
	query := `
        UPDATE campaigns
        SET previous_status = status, status = 'dispatching', version = version + 1,
            dispatch_started_at = NOW(), dispatch_heartbeat_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND version = $2 AND status <> 'dispatching'
        RETURNING version
    `
	var token int
	err := r.DB.QueryRowContext(ctx, query, id, version).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.NewAlreadyDispatching(id)
		}
		return 0, fmt.Errorf("begin dispatch for campaign %s: %w", id, err)
	}
	return token, nil
}

// TouchDispatch refreshes the heartbeat of a held guard. It reports false
// when the token no longer owns the guard.
func (r *CampaignRepository) TouchDispatch(ctx context.Context, id string, token int) (bool, error) {
	query := `
        UPDATE campaigns
        SET dispatch_heartbeat_at = NOW()
        WHERE id = $1 AND version = $2 AND status = 'dispatching'
    `
	res, err := r.DB.ExecContext(ctx, query, id, token)
	if err != nil {
		return false, fmt.Errorf("touch dispatch guard for campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch dispatch guard for campaign %s: %w", id, err)
	}
	return n > 0, nil
}

// FinishDispatch releases the guard held by token. A nil stats keeps the
// stored value. It reports false, writing nothing, when the guard was
// already released or taken by another run.
func (r *CampaignRepository) FinishDispatch(ctx context.Context, id string, token int, stats *model.CampaignStats, activate bool) (bool, error) {
	var statsArg interface{}
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return false, fmt.Errorf("encode stats: %w", err)
		}
		statsArg = string(b)
	}

	query := `
        UPDATE campaigns
        SET stats = COALESCE($3::jsonb, stats),
            status = CASE WHEN $4::boolean THEN 'active' ELSE COALESCE(previous_status, status) END,
            submitted_at = CASE WHEN $4::boolean THEN NOW() ELSE submitted_at END,
            previous_status = NULL, dispatch_started_at = NULL, dispatch_heartbeat_at = NULL,
            version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $2 AND status = 'dispatching'
    `
	res, err := r.DB.ExecContext(ctx, query, id, token, statsArg, activate)
	if err != nil {
		return false, fmt.Errorf("finish dispatch for campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish dispatch for campaign %s: %w", id, err)
	}
	return n > 0, nil
}

// ReleaseStaleGuards restores campaigns whose dispatch heartbeat stopped
// before the cutoff. The version bump invalidates the dead run's token.
func (r *CampaignRepository) ReleaseStaleGuards(ctx context.Context, heartbeatBefore time.Time) (int64, error) {
	query := `
        UPDATE campaigns
        SET status = COALESCE(previous_status, 'review'), previous_status = NULL,
            dispatch_started_at = NULL, dispatch_heartbeat_at = NULL,
            version = version + 1, updated_at = NOW()
        WHERE status = 'dispatching' AND dispatch_heartbeat_at < $1
    `
	res, err := r.DB.ExecContext(ctx, query, heartbeatBefore)
	if err != nil {
		return 0, fmt.Errorf("release stale dispatch guards: %w", err)
	}
	return res.RowsAffected()
}

// ====================== Stats ======================

func (r *CampaignRepository) ComputeStats(ctx context.Context, campaignID string) (model.CampaignStats, error) {
	query := `
        SELECT delivery_status, COUNT(*), COALESCE(SUM(sent_count), 0), COALESCE(SUM(failed_count), 0)
        FROM scripts
        WHERE campaign_id = $1
        GROUP BY delivery_status
    `
	var stats model.CampaignStats
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return stats, fmt.Errorf("compute stats for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status model.DeliveryStatus
		var count, sent, failed int
		if err := rows.Scan(&status, &count, &sent, &failed); err != nil {
			return stats, err
		}
		stats.TotalScripts += count
		stats.DropsSent += sent
		stats.DropsFailed += failed
		switch status {
		case model.DeliverySent:
			stats.SentScripts += count
		case model.DeliveryFailed:
			stats.FailedScripts += count
		default:
			stats.PendingScripts += count
		}
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
