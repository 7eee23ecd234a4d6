package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/dto"
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
	"github.com/noah-isme/course-timetable-api/pkg/jobs"
	"github.com/noah-isme/course-timetable-api/pkg/logger"
)

// JobTypeGenerate tags generation jobs on the queue.
const JobTypeGenerate = "timetable.generate"

type setupLoader interface {
	Exists(ctx context.Context, setupID string) (bool, error)
	LoadInput(ctx context.Context, setupID string) (scheduler.Input, error)
}

type scheduleStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	Touch(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type scheduleEntryStore interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	UpdateBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// GenerationConfig carries the deployment-level GA tuning.
type GenerationConfig struct {
	Enabled         bool
	Weights         scheduler.Weights
	TournamentSize  int
	MaxRepairPasses int
	EvalWorkers     int
	Seed            int64
	MaxRetries      int
}

// GenerationService accepts generation requests, runs them on the job queue and answers polls.
type GenerationService struct {
	setups    setupLoader
	schedules scheduleStore
	entries   scheduleEntryStore
	tx        txProvider
	queue     jobDispatcher
	store     *jobs.ProgressStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GenerationConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	ctxs    map[string]context.Context
}

// NewGenerationService wires the generation pipeline. The queue is attached with UseQueue once
// it has been built around Handle.
func NewGenerationService(
	setups setupLoader,
	schedules scheduleStore,
	entries scheduleEntryStore,
	tx txProvider,
	store *jobs.ProgressStore,
	metrics *MetricsService,
	validate *validator.Validate,
	log *zap.Logger,
	cfg GenerationConfig,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = jobs.NewProgressStore(jobs.ProgressStoreConfig{Logger: log})
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &GenerationService{
		setups:    setups,
		schedules: schedules,
		entries:   entries,
		tx:        tx,
		store:     store,
		metrics:   metrics,
		validator: validate,
		logger:    log,
		cfg:       cfg,
		cancels:   make(map[string]context.CancelFunc),
		ctxs:      make(map[string]context.Context),
	}
}

// UseQueue attaches the dispatcher Start enqueues onto.
func (s *GenerationService) UseQueue(queue jobDispatcher) {
	s.queue = queue
}

// Store exposes the progress store for streaming subscribers.
func (s *GenerationService) Store() *jobs.ProgressStore {
	return s.store
}

// Subscribe streams snapshots of a job held by this process until it finishes.
func (s *GenerationService) Subscribe(jobKey string) (<-chan models.JobProgress, func(), bool) {
	return s.store.Subscribe(jobKey)
}

// Start validates the request, registers a pending job and enqueues it. No job key is issued for
// invalid requests.
func (s *GenerationService) Start(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.ErrDisabled
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation parameters")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "generation queue unavailable")
	}
	exists, err := s.setups.Exists(ctx, req.AcademicSetupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic setup")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "academic setup not found")
	}

	jobKey := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[jobKey] = cancel
	s.ctxs[jobKey] = jobCtx
	s.mu.Unlock()

	s.store.Create(jobKey, "queued")
	if err := s.queue.Enqueue(jobs.Job{ID: jobKey, Type: JobTypeGenerate, Payload: req}); err != nil {
		s.release(jobKey)
		_ = s.store.Fail(jobKey, "failed to enqueue generation job")
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	s.logger.Sugar().Infow("generation job queued",
		"job_key", jobKey,
		"academic_setup_id", req.AcademicSetupID,
		"population_size", req.PopulationSize,
		"max_generations", req.MaxGenerations,
	)
	return &dto.GenerateTimetableResponse{JobKey: jobKey}, nil
}

// Poll returns the latest snapshot; unknown keys report not_found.
func (s *GenerationService) Poll(ctx context.Context, jobKey string) models.JobProgress {
	return s.store.Get(ctx, jobKey)
}

// Cancel stops a queued or running job. It takes effect at the next generation boundary.
func (s *GenerationService) Cancel(jobKey string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[jobKey]
	s.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "job not found or already finished")
	}
	cancel()
	return nil
}

func (s *GenerationService) jobContext(jobKey string) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.ctxs[jobKey]
	return ctx, ok
}

func (s *GenerationService) release(jobKey string) {
	s.mu.Lock()
	cancel, ok := s.cancels[jobKey]
	delete(s.cancels, jobKey)
	delete(s.ctxs, jobKey)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Handle runs one generation job. It is the queue handler.
func (s *GenerationService) Handle(ctx context.Context, job jobs.Job) error {
	log := logger.ForJob(s.logger, job.ID, zap.Int("attempt", job.Attempt))
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		s.release(job.ID)
		_ = s.store.Fail(job.ID, "malformed generation job")
		return jobs.Permanent(fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload))
	}

	jobCtx, ok := s.jobContext(job.ID)
	if !ok {
		jobCtx = context.Background()
	}
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(jobCtx, stop)
	defer unregister()

	if jobCtx.Err() != nil {
		s.release(job.ID)
		_ = s.store.Fail(job.ID, "generation cancelled")
		return nil
	}
	if err := s.store.Start(job.ID, "loading academic setup"); err != nil {
		// finished or evicted between attempts
		s.release(job.ID)
		return nil
	}
	started := time.Now()
	s.metrics.JobStarted()

	outcome, err := s.generate(runCtx, job, req, log)
	if err != nil && outcome == "" {
		s.metrics.JobRetrying()
		return err
	}
	s.release(job.ID)
	s.metrics.JobFinished(outcome, time.Since(started))
	if err != nil {
		return jobs.Permanent(err)
	}
	return nil
}

// generate returns an empty outcome with an error when the job should be retried.
func (s *GenerationService) generate(ctx context.Context, job jobs.Job, req dto.GenerateTimetableRequest, log *zap.Logger) (string, error) {
	input, err := s.setups.LoadInput(ctx, req.AcademicSetupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.fail(job.ID, OutcomeFailed, "academic setup not found", err, log)
		}
		if ctx.Err() != nil {
			return s.fail(job.ID, OutcomeCancelled, "generation cancelled", err, log)
		}
		if job.Attempt < s.cfg.MaxRetries {
			_ = s.store.Report(job.ID, 0, "failed to load academic setup, retrying")
			log.Warn("setup load failed, will retry", zap.Error(err))
			return "", err
		}
		return s.fail(job.ID, OutcomeFailed, "failed to load academic setup", err, log)
	}

	problem, err := scheduler.NewProblem(input, req.DayGroups())
	if err != nil {
		var infeasible *scheduler.InfeasibilityError
		if errors.As(err, &infeasible) {
			return s.fail(job.ID, OutcomeInfeasible, err.Error(), err, log)
		}
		return s.fail(job.ID, OutcomeFailed, err.Error(), err, log)
	}

	ctrl, err := scheduler.NewController(problem, s.parameters(req), log)
	if err != nil {
		return s.fail(job.ID, OutcomeFailed, err.Error(), err, log)
	}

	_ = s.store.Report(job.ID, 0, fmt.Sprintf("evolving %d genes", problem.NumGenes()))
	result, err := ctrl.Run(ctx, func(gen, maxGen int, best float64) {
		pct := generationProgress(gen, maxGen)
		msg := fmt.Sprintf("generation %d/%d, best fitness %.2f", gen, maxGen, best)
		if reportErr := s.store.Report(job.ID, pct, msg); reportErr != nil {
			log.Debug("progress report rejected", zap.Error(reportErr))
		}
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrCancelled) {
			return s.fail(job.ID, OutcomeCancelled, "generation cancelled", err, log)
		}
		return s.fail(job.ID, OutcomeFailed, err.Error(), err, log)
	}

	// progress never decreases, so a zero here only updates the message
	_ = s.store.Report(job.ID, 0, "materializing schedule")
	scheduleID := uuid.NewString()
	entries, err := ctrl.Materialize(scheduleID, result)
	if err != nil {
		return s.fail(job.ID, OutcomeFailed, err.Error(), err, log)
	}

	if err := s.persist(ctx, scheduleID, req, result, entries); err != nil {
		return s.fail(job.ID, OutcomeFailed, "failed to save schedule", err, log)
	}

	s.metrics.ObserveResult(result.Fitness, result.Generations)
	msg := fmt.Sprintf("completed after %d generations, fitness %.2f", result.Generations, result.Fitness)
	if hard := result.Breakdown.Hard(); hard > 0 {
		msg += fmt.Sprintf(", %d unresolved conflicts", hard)
	}
	if err := s.store.Complete(job.ID, scheduleID, msg); err != nil {
		log.Warn("failed to mark job completed", zap.Error(err))
	}
	log.Info("generation completed",
		zap.String("schedule_id", scheduleID),
		zap.String("state", string(result.State)),
		zap.Int("generations", result.Generations),
		zap.Float64("fitness", result.Fitness),
		zap.Int("entries", len(entries)),
	)
	return OutcomeCompleted, nil
}

// generationProgress is the share of the generation budget spent so far, in percent.
func generationProgress(gen, maxGen int) float64 {
	if maxGen <= 0 {
		return 0
	}
	return 100 * float64(gen) / float64(maxGen)
}

func (s *GenerationService) fail(jobKey, outcome, message string, err error, log *zap.Logger) (string, error) {
	if storeErr := s.store.Fail(jobKey, message); storeErr != nil {
		log.Warn("failed to mark job failed", zap.Error(storeErr))
	}
	if outcome == OutcomeInfeasible || outcome == OutcomeCancelled {
		log.Info("generation stopped", zap.String("outcome", outcome), zap.String("reason", message))
	} else {
		log.Error("generation failed", zap.String("reason", message), zap.Error(err))
	}
	return outcome, err
}

func (s *GenerationService) parameters(req dto.GenerateTimetableRequest) scheduler.Parameters {
	return scheduler.Parameters{
		PopulationSize:   req.PopulationSize,
		MaxGenerations:   req.MaxGenerations,
		MutationRate:     req.MutationRate,
		TournamentSize:   s.cfg.TournamentSize,
		MaxRepairPasses:  s.cfg.MaxRepairPasses,
		IncludedDays:     req.DayGroups(),
		TargetFitnessMin: req.TargetFitnessMin,
		TargetFitnessMax: req.TargetFitnessMax,
		Workers:          s.cfg.EvalWorkers,
		Seed:             s.cfg.Seed,
		Weights:          s.cfg.Weights,
	}
}

func (s *GenerationService) persist(ctx context.Context, scheduleID string, req dto.GenerateTimetableRequest, result *scheduler.Result, entries []models.ScheduleEntry) (err error) {
	if s.tx == nil {
		return errors.New("transaction provider missing")
	}
	meta, err := json.Marshal(map[string]any{
		"state":           result.State,
		"generations":     result.Generations,
		"breakdown":       result.Breakdown,
		"population_size": req.PopulationSize,
		"mutation_rate":   req.MutationRate,
		"included_days":   req.IncludedDays,
		"target_fitness":  []float64{req.TargetFitnessMin, req.TargetFitnessMax},
	})
	if err != nil {
		return fmt.Errorf("encode schedule meta: %w", err)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := &models.Schedule{
		ID:              scheduleID,
		AcademicSetupID: req.AcademicSetupID,
		Status:          models.ScheduleStatusDraft,
		FitnessScore:    result.Fitness,
		Generation:      result.Generation,
		Meta:            types.JSONText(meta),
	}
	if err = s.schedules.Create(ctx, tx, record); err != nil {
		return err
	}
	if err = s.entries.InsertBatch(ctx, tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}
