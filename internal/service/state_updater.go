package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
)

// errGuardLost marks a run whose dispatch guard was released or retaken
// while it was still delivering.
var errGuardLost = errors.New("dispatch guard lost")

// StateUpdater writes the post-run campaign and script state and always
// releases the dispatch guard, even when earlier writes fail.
type StateUpdater struct {
	campaigns repository.CampaignRepositoryInterface
	scripts   repository.ScriptRepositoryInterface
}

func NewStateUpdater(campaigns repository.CampaignRepositoryInterface, scripts repository.ScriptRepositoryInterface) *StateUpdater {
	return &StateUpdater{campaigns: campaigns, scripts: scripts}
}

// Apply releases the guard identified by token. Campaign status and stats
// are only written while that guard is still held; otherwise errGuardLost is
// returned and the campaign is left to whoever holds it now.
func (u *StateUpdater) Apply(ctx context.Context, campaign *model.Campaign, token int, plan *WorkPlan, outcome *Outcome) error {
	var errs []error

	if plan.Mode == model.ModeBroadcast && plan.BroadcastScript != nil {
		if err := u.scripts.RecordBroadcastTotals(ctx, plan.BroadcastScript.ID, outcome.SuccessCount, outcome.FailureCount); err != nil {
			errs = append(errs, err)
		}
	}

	var stats *model.CampaignStats
	if s, err := u.campaigns.ComputeStats(ctx, campaign.ID); err != nil {
		errs = append(errs, err)
	} else {
		stats = &s
	}

	released, err := u.campaigns.FinishDispatch(ctx, campaign.ID, token, stats, outcome.SuccessCount > 0)
	switch {
	case err != nil:
		errs = append(errs, err)
	case !released:
		errs = append(errs, errGuardLost)
	}

	if len(errs) > 0 {
		return fmt.Errorf("update state of campaign %s: %w", campaign.ID, errors.Join(errs...))
	}
	return nil
}
