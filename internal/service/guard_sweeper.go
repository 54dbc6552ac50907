package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/metrics"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
)

// GuardSweeper releases dispatch guards left behind by processes that died
// mid-run. A guard counts as abandoned once its heartbeat is older than ttl.
type GuardSweeper struct {
	campaigns repository.CampaignRepositoryInterface
	ttl       time.Duration
	log       logger.Logger
	now       func() time.Time
}

func NewGuardSweeper(campaigns repository.CampaignRepositoryInterface, ttl time.Duration, log logger.Logger) *GuardSweeper {
	return &GuardSweeper{campaigns: campaigns, ttl: ttl, log: log, now: time.Now}
}

func (g *GuardSweeper) Sweep(ctx context.Context) {
	cutoff := g.now().Add(-g.ttl)
	n, err := g.campaigns.ReleaseStaleGuards(ctx, cutoff)
	if err != nil {
		g.log.Error("stale guard sweep failed", map[string]interface{}{"error": err})
		return
	}
	if n > 0 {
		metrics.StaleGuardsReleased.Add(float64(n))
		g.log.Warn("released stale dispatch guards", map[string]interface{}{
			"count":  n,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
}

// Schedule registers the sweep on c using a standard cron expression or descriptor.
func (g *GuardSweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		g.Sweep(ctx)
	})
}
