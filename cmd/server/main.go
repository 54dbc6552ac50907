// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/voicedrop-backend/internal/app"
	"github.com/unclebandit/voicedrop-backend/internal/config"
	"github.com/unclebandit/voicedrop-backend/internal/controller"
	"github.com/unclebandit/voicedrop-backend/internal/handler"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/queue"
	"github.com/unclebandit/voicedrop-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{"service": "server"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	q, closeQueue := openQueue(ctx, cfg, log)
	defer closeQueue()

	dispatcher := a.Dispatcher(cfg, log, service.WithExecutionEvents(q, cfg.RabbitMQ.ExecutionQueue))
	if mem, ok := q.(*queue.InMemoryQueue); ok {
		_ = mem.Subscribe(ctx, cfg.RabbitMQ.DispatchQueue, service.NewWorker(dispatcher, log).Handle)
	}

	campaignController := &controller.CampaignController{
		Dispatcher: dispatcher,
		Jobs:       q,
		JobsTopic:  cfg.RabbitMQ.DispatchQueue,
		Log:        log,
	}
	campaignHandler := handler.NewCampaignHandler(a.Reads, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	campaignController.Routes(r)
	campaignHandler.Routes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server running", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]interface{}{"error": err})
	}
}

// openQueue dials RabbitMQ when configured. Without a broker, jobs and
// execution events stay in process: queued jobs run on a local worker and
// events are only logged.
func openQueue(ctx context.Context, cfg *config.Config, log logger.Logger) (queue.Queue, func()) {
	if cfg.RabbitMQ.URL != "" {
		q, err := queue.DialAMQP(cfg.RabbitMQ.URL, log)
		if err == nil {
			return q, func() { _ = q.Close() }
		}
		log.Warn("rabbitmq unavailable, using in-memory queue", map[string]interface{}{"error": err})
	}

	q := queue.NewInMemoryQueue(log)
	_ = q.Subscribe(ctx, cfg.RabbitMQ.ExecutionQueue, func(ctx context.Context, body []byte) error {
		log.Info("execution completed", map[string]interface{}{"event": string(body)})
		return nil
	})
	return q, q.Drain
}
