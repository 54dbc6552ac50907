package service

import (
	"context"
	"fmt"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
)

// WorkItem is one (script, recipient) pair. Err is set when the recipient
// could not be resolved; the dispatcher records it without calling the provider.
type WorkItem struct {
	Script    *model.Script
	ContactID string
	Contact   *model.Contact
	Err       error
}

type WorkPlan struct {
	Mode            model.DeliveryMode
	Items           []WorkItem
	CampaignScripts int
	EligibleScripts int
	// BroadcastScript is set in broadcast mode only.
	BroadcastScript *model.Script
}

// TotalScripts is the number of scripts taking part in the run.
func (p *WorkPlan) TotalScripts() int {
	if p.Mode == model.ModeBroadcast {
		return 1
	}
	return len(p.Items)
}

// TotalContacts is the broadcast roster size for this run.
func (p *WorkPlan) TotalContacts() int {
	if p.Mode == model.ModeBroadcast {
		return len(p.Items)
	}
	return 0
}

type Resolver struct {
	scripts  repository.ScriptRepositoryInterface
	contacts repository.ContactRepositoryInterface
}

func NewResolver(scripts repository.ScriptRepositoryInterface, contacts repository.ContactRepositoryInterface) *Resolver {
	return &Resolver{scripts: scripts, contacts: contacts}
}

// Resolve filters eligible scripts, fixes the delivery mode from the first
// one and expands the ordered work items for that mode.
func (r *Resolver) Resolve(ctx context.Context, campaign *model.Campaign) (*WorkPlan, error) {
	all, err := r.scripts.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	eligible := make([]*model.Script, 0, len(all))
	for _, s := range all {
		if s.Eligible() {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil, appErrors.NewNoWork(campaign.ID)
	}

	plan := &WorkPlan{CampaignScripts: len(all), EligibleScripts: len(eligible)}
	if eligible[0].IsGeneral {
		plan.Mode = model.ModeBroadcast
		err = r.resolveBroadcast(ctx, campaign, eligible[0], plan)
	} else {
		plan.Mode = model.ModePersonalized
		err = r.resolvePersonalized(ctx, campaign, eligible, plan)
	}
	if err != nil {
		return nil, err
	}
	if len(plan.Items) == 0 {
		return nil, appErrors.NewNoWork(campaign.ID)
	}
	return plan, nil
}

func (r *Resolver) resolveBroadcast(ctx context.Context, campaign *model.Campaign, script *model.Script, plan *WorkPlan) error {
	contacts, err := r.contacts.ListUndeliveredForCampaign(ctx, campaign.ID, script.ID)
	if err != nil {
		return err
	}
	plan.BroadcastScript = script
	plan.Items = make([]WorkItem, 0, len(contacts))
	for _, c := range contacts {
		plan.Items = append(plan.Items, WorkItem{Script: script, ContactID: c.ID, Contact: c})
	}
	return nil
}

func (r *Resolver) resolvePersonalized(ctx context.Context, campaign *model.Campaign, eligible []*model.Script, plan *WorkPlan) error {
	seen := map[string]bool{}
	ids := []string{}
	for _, s := range eligible {
		if s.IsGeneral || s.ContactID == "" || seen[s.ContactID] {
			continue
		}
		seen[s.ContactID] = true
		ids = append(ids, s.ContactID)
	}

	contacts, err := r.contacts.GetByIDs(ctx, campaign.OwnerID, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	for _, s := range eligible {
		if s.IsGeneral {
			continue
		}
		item := WorkItem{Script: s, ContactID: s.ContactID}
		if c, ok := byID[s.ContactID]; ok {
			item.Contact = c
		} else {
			item.Err = appErrors.NewRecipientError(appErrors.KindContactNotFound,
				fmt.Errorf("contact %q of script %s not found", s.ContactID, s.ID))
		}
		plan.Items = append(plan.Items, item)
	}
	return nil
}
