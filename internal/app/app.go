// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/voicedrop-backend/internal/config"
	"github.com/unclebandit/voicedrop-backend/internal/db"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/provider"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
	"github.com/unclebandit/voicedrop-backend/internal/service"
	"github.com/unclebandit/voicedrop-backend/internal/throttle"
)

// App holds the connections and services shared by the server and worker.
type App struct {
	DB       *sql.DB
	Redis    *redis.Client
	Repos    service.Repositories
	Provider *provider.Client

	Campaigns *repository.CampaignRepository
	Reads     *service.CampaignService
	Sweeper   *service.GuardSweeper
}

// Build connects to storage and wires the repositories and provider client.
// The dispatcher is built separately so each binary can choose its event sink.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	var conn *sql.DB
	err := retryWithBackoff(log, "postgres connection", 10, 2*time.Second, func() error {
		var err error
		conn, err = db.Open(ctx, cfg.Database.Postgres)
		return err
	})
	if err != nil {
		return nil, err
	}

	rdb, err := db.OpenRedis(ctx, cfg.Database.Redis)
	if err != nil {
		// The media cache is an optimisation; run without it.
		log.Warn("redis unavailable, media cache disabled", map[string]interface{}{"error": err})
		rdb = nil
	}

	opts := []provider.Option{provider.WithLogger(log)}
	if rdb != nil {
		opts = append(opts, provider.WithMediaCache(provider.NewRedisMediaCache(rdb, cfg.Database.Redis.MediaTTL)))
	}
	client := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		TeamID:  cfg.Provider.TeamID,
		Secret:  cfg.Provider.Secret,
		BrandID: cfg.Provider.BrandID,
		Timeout: cfg.Provider.Timeout,
	}, opts...)

	campaigns := &repository.CampaignRepository{DB: conn}
	repos := service.Repositories{
		Campaigns:  campaigns,
		Users:      &repository.UserRepository{DB: conn},
		Scripts:    &repository.ScriptRepository{DB: conn},
		Contacts:   &repository.ContactRepository{DB: conn},
		Executions: &repository.ExecutionRepository{DB: conn},
		Attempts:   &repository.AttemptRepository{DB: conn},
	}

	return &App{
		DB:        conn,
		Redis:     rdb,
		Repos:     repos,
		Provider:  client,
		Campaigns: campaigns,
		Reads: &service.CampaignService{
			CampaignRepo:  campaigns,
			ExecutionRepo: repos.Executions,
			Log:           log,
		},
		Sweeper: service.NewGuardSweeper(campaigns, cfg.Dispatch.GuardTTL, log),
	}, nil
}

// Dispatcher builds the dispatch service with the configured pacing.
func (a *App) Dispatcher(cfg *config.Config, log logger.Logger, opts ...service.DispatchOption) *service.DispatchService {
	runner := throttle.NewRunner(cfg.Dispatch.Interval, cfg.Dispatch.Concurrency)
	opts = append([]service.DispatchOption{service.WithHeartbeat(cfg.Dispatch.HeartbeatInterval)}, opts...)
	return service.NewDispatchService(a.Repos, a.Provider, runner, log, opts...)
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// retryWithBackoff runs op until it succeeds, doubling the delay between attempts.
func retryWithBackoff(log logger.Logger, name string, maxRetries int, delay time.Duration, op func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(name+" failed, retrying", map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"next_retry":  delay.String(),
				"max_retries": maxRetries,
			})
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}
