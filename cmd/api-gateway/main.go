package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/course-timetable-api/api/swagger"
	"github.com/noah-isme/course-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-timetable-api/internal/middleware"
	"github.com/noah-isme/course-timetable-api/internal/repository"
	"github.com/noah-isme/course-timetable-api/internal/scheduler"
	"github.com/noah-isme/course-timetable-api/internal/service"
	"github.com/noah-isme/course-timetable-api/pkg/cache"
	"github.com/noah-isme/course-timetable-api/pkg/config"
	"github.com/noah-isme/course-timetable-api/pkg/database"
	"github.com/noah-isme/course-timetable-api/pkg/jobs"
	"github.com/noah-isme/course-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-timetable-api/pkg/middleware/requestid"
)

// @title Course Timetable API
// @version 1.0.0
// @description Genetic-algorithm course timetabling with pollable generation jobs and manual schedule edits.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, job progress will not be shared across replicas", "error", err)
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	weights := scheduler.Weights(cfg.Scheduler.Weights)

	setupRepo := repository.NewSetupRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	entryRepo := repository.NewScheduleEntryRepository(db)

	var mirror jobs.ProgressMirror
	if redisClient != nil {
		mirror = repository.NewProgressMirrorRepository(redisClient, cfg.Scheduler.ProgressMirrorTTL)
	}
	progress := jobs.NewProgressStore(jobs.ProgressStoreConfig{
		Retention: cfg.Scheduler.JobRetention,
		Mirror:    mirror,
		Logger:    logr,
	})
	defer progress.Close()
	go progress.RunJanitor(ctx, cfg.Scheduler.JanitorInterval)

	generationSvc := service.NewGenerationService(setupRepo, scheduleRepo, entryRepo, db, progress, metricsSvc, validate, logr, service.GenerationConfig{
		Enabled:         cfg.Scheduler.Enabled,
		Weights:         weights,
		TournamentSize:  cfg.Scheduler.TournamentSize,
		MaxRepairPasses: cfg.Scheduler.MaxRepairPasses,
		EvalWorkers:     cfg.Scheduler.EvalWorkers,
		Seed:            cfg.Scheduler.Seed,
	})
	queue := jobs.NewQueue("timetable", generationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Scheduler.QueueWorkers,
		BufferSize: cfg.Scheduler.QueueBuffer,
		Logger:     logr,
	})
	generationSvc.UseQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	scheduleSvc := service.NewScheduleService(setupRepo, scheduleRepo, entryRepo, db, metricsSvc, validate, logr, service.ScheduleConfig{
		Weights:         weights,
		TournamentSize:  cfg.Scheduler.TournamentSize,
		MaxRepairPasses: cfg.Scheduler.MaxRepairPasses,
		EvalWorkers:     cfg.Scheduler.EvalWorkers,
		Seed:            cfg.Scheduler.Seed,
	})

	if cfg.Cache.Enabled && redisClient != nil {
		scheduleSvc.UseCache(service.NewScheduleCache(repository.NewCacheRepository(redisClient), metricsSvc, cfg.Cache.TTL, logr))
	}

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	generationHandler := handler.NewGenerationHandler(generationSvc, cfg.CORS.AllowedOrigins, logr)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/timetable/generate", generationHandler.Generate)
		api.GET("/timetable/jobs/:key", generationHandler.Poll)
		api.GET("/timetable/jobs/:key/stream", generationHandler.Stream)
		api.DELETE("/timetable/jobs/:key", generationHandler.Cancel)

		api.GET("/schedules/:id", scheduleHandler.Get)
		api.POST("/schedules/:id/faculty-refresh", scheduleHandler.FacultyRefresh)
		api.PATCH("/schedule-entries/:id", scheduleHandler.Reposition)
		api.GET("/academic-setups/:id/parallel-suggestions", scheduleHandler.ParallelSuggestions)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
