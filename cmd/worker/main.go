package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-agency/internal/app"
	"github.com/noah-isme/backend-agency/internal/config"
	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/jobs"
	"github.com/noah-isme/backend-agency/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger("agency-worker", logFormat, logLevel)
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "agency"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := app.OpenPostgres(startCtx, cfg, "agency-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	redisOpt, err := app.AsynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure task queue")
	}

	invoices := &invoice.Service{
		Repo:   invoice.NewPGRepository(pool),
		Logger: logger,
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("schedule_task_failed")
				return
			}
			logger.Debug().Str("task", info.Type).Str("task_id", info.ID).Msg("task_scheduled")
		},
	})
	entryID, err := scheduler.Register(cfg.OverdueSweepCron, jobs.NewOverdueSweepTask(time.Hour))
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.OverdueSweepCron).Msg("register overdue sweep")
	}
	logger.Info().Str("entry_id", entryID).Str("cron", cfg.OverdueSweepCron).Msg("overdue sweep registered")

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task_failed")
		}),
	})

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if err := srv.Start(jobs.NewMux(invoices, logger)); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	logger.Info().Msg("worker starting")
	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
