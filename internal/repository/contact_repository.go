package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

// ContactRepositoryInterface defines methods used by the recipient resolver
type ContactRepositoryInterface interface {
	ListUndeliveredForCampaign(ctx context.Context, campaignID, scriptID string) ([]*model.Contact, error)
	GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.Contact, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

// ListUndeliveredForCampaign returns the campaign's members in membership
// order, skipping contacts that already received scriptID.
func (r *ContactRepository) ListUndeliveredForCampaign(ctx context.Context, campaignID, scriptID string) ([]*model.Contact, error) {
	query := `
        SELECT c.id, c.owner_id, c.name, c.phone
        FROM campaign_contacts cc
        JOIN contacts c ON c.id = cc.contact_id
        LEFT JOIN delivery_attempts da
               ON da.contact_id = c.id AND da.script_id = $2 AND da.status = 'success'
        WHERE cc.campaign_id = $1 AND da.id IS NULL
        ORDER BY cc.added_at, c.id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, scriptID)
	if err != nil {
		return nil, fmt.Errorf("list contacts for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// GetByIDs fetches the owner's contacts in one round trip. Unknown ids are
// simply absent from the result.
func (r *ContactRepository) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.Contact, error) {
	if len(ids) == 0 {
		return []*model.Contact{}, nil
	}
	query := `
        SELECT id, owner_id, name, phone
        FROM contacts
        WHERE id = ANY($1) AND owner_id = $2
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids), ownerID)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

func scanContacts(rows *sql.Rows) ([]*model.Contact, error) {
	contacts := []*model.Contact{}
	for rows.Next() {
		c := &model.Contact{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
