package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/voicedrop-backend/internal/app"
	"github.com/unclebandit/voicedrop-backend/internal/config"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/queue"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	if cfg.RabbitMQ.URL == "" {
		zap.NewExample().Fatal("rabbitmq.url is required for the worker")
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{"service": "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	q, err := queue.DialAMQP(cfg.RabbitMQ.URL, log)
	if err != nil {
		zapLog.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer q.Close()

	dispatcher := a.Dispatcher(cfg, log, service.WithExecutionEvents(q, cfg.RabbitMQ.ExecutionQueue))
	worker := service.NewWorker(dispatcher, log)

	if err := consume(ctx, q, cfg.RabbitMQ.DispatchQueue, worker); err != nil {
		zapLog.Fatal("failed to start consumer", zap.Error(err))
	}

	sched := cron.New()
	if err := startSweeper(sched, a.Sweeper, cfg.Dispatch.SweepSchedule); err != nil {
		zapLog.Fatal("failed to schedule guard sweeper", zap.Error(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	log.Info("worker running, waiting for dispatch jobs", map[string]interface{}{
		"queue":          cfg.RabbitMQ.DispatchQueue,
		"sweep_schedule": cfg.Dispatch.SweepSchedule,
	})
	<-ctx.Done()
	log.Info("worker stopping", nil)
}

// consume attaches the worker to the dispatch queue.
func consume(ctx context.Context, q queue.Queue, topic string, w *service.Worker) error {
	if err := q.Subscribe(ctx, topic, w.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// startSweeper registers the stale-guard sweep and runs one pass right away,
// so guards left by a crash before this start are released promptly.
func startSweeper(c *cron.Cron, sweeper *service.GuardSweeper, spec string) error {
	if _, err := sweeper.Schedule(c, spec); err != nil {
		return err
	}
	go sweeper.Sweep(context.Background())
	return nil
}
