package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/dto"
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
)

// Edit kinds reported to metrics.
const (
	EditReposition     = "reposition"
	EditFacultyRefresh = "faculty_refresh"
)

// ScheduleConfig tunes the faculty-only refinement run.
type ScheduleConfig struct {
	RefreshPopulation  int
	RefreshGenerations int
	RefreshMutation    float64
	Weights            scheduler.Weights
	TournamentSize     int
	MaxRepairPasses    int
	EvalWorkers        int
	Seed               int64
}

// ScheduleService reads generated schedules and applies manual edits. Edits to one schedule are
// serialized.
type ScheduleService struct {
	setups    setupLoader
	schedules scheduleStore
	entries   scheduleEntryStore
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleConfig
	cache     *ScheduleCache

	locks sync.Map
}

// NewScheduleService constructs the service.
func NewScheduleService(
	setups setupLoader,
	schedules scheduleStore,
	entries scheduleEntryStore,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshPopulation <= 0 {
		cfg.RefreshPopulation = 30
	}
	if cfg.RefreshGenerations <= 0 {
		cfg.RefreshGenerations = 40
	}
	if cfg.RefreshMutation <= 0 || cfg.RefreshMutation > 1 {
		cfg.RefreshMutation = 0.2
	}
	return &ScheduleService{
		setups:    setups,
		schedules: schedules,
		entries:   entries,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// UseCache attaches a read cache for Get. Edits invalidate it.
func (s *ScheduleService) UseCache(c *ScheduleCache) {
	s.cache = c
}

func (s *ScheduleService) lock(scheduleID string) func() {
	value, _ := s.locks.LoadOrStore(scheduleID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Get returns a schedule with its entries.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	schedule, err := s.loadSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListBySchedule(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule entries")
	}
	schedule.Entries = entries
	s.cache.Put(ctx, schedule)
	return schedule, nil
}

// Reposition moves one entry. Constraint violations never fail the call; they come back as
// has_conflict on the moved entry and any neighbour whose flag changed.
func (s *ScheduleService) Reposition(ctx context.Context, entryID string, req dto.RepositionEntryRequest) (*dto.RepositionEntryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reposition payload")
	}
	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entry")
	}

	unlock := s.lock(entry.ScheduleID)
	defer unlock()

	schedule, all, input, err := s.loadWorkingSet(ctx, entry.ScheduleID)
	if err != nil {
		return nil, err
	}

	moved, err := scheduler.NewValidator(input).ProposeMove(all, scheduler.Move{
		EntryID:    entryID,
		Day:        req.Day,
		TimeSlotID: req.TimeSlotID,
		RoomID:     req.RoomID,
	})
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrEntryNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		case errors.Is(err, scheduler.ErrInvalidMove):
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate move")
	}

	if err := s.save(ctx, schedule.ID, moved); err != nil {
		return nil, err
	}
	s.metrics.ObserveEdit(EditReposition, moved[0].HasConflict)
	s.logger.Sugar().Infow("schedule entry repositioned",
		"schedule_id", schedule.ID,
		"entry_id", entryID,
		"day", moved[0].Day,
		"time_slot_id", moved[0].TimeSlotID,
		"room_id", moved[0].RoomID,
		"has_conflict", moved[0].HasConflict,
		"affected", len(moved)-1,
	)
	return &dto.RepositionEntryResponse{Entry: moved[0], Affected: moved[1:]}, nil
}

// RefreshFaculty re-evolves faculty assignments only. Rooms, days and slots stay as they are.
func (s *ScheduleService) RefreshFaculty(ctx context.Context, scheduleID string) (*dto.FacultyRefreshResponse, error) {
	unlock := s.lock(scheduleID)
	defer unlock()

	schedule, all, input, err := s.loadWorkingSet(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	problem, err := scheduler.NewProblem(input, nil)
	if err != nil {
		return nil, mapSchedulerError(err)
	}
	base, err := problem.FromEntries(all)
	if err != nil {
		return nil, mapSchedulerError(err)
	}
	ctrl, err := scheduler.NewController(problem, scheduler.Parameters{
		PopulationSize:  s.cfg.RefreshPopulation,
		MaxGenerations:  s.cfg.RefreshGenerations,
		MutationRate:    s.cfg.RefreshMutation,
		TournamentSize:  s.cfg.TournamentSize,
		MaxRepairPasses: s.cfg.MaxRepairPasses,
		Workers:         s.cfg.EvalWorkers,
		Seed:            s.cfg.Seed,
		Weights:         s.cfg.Weights,
	}, s.logger)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare faculty refresh")
	}
	result, err := ctrl.Refine(ctx, base, nil)
	if err != nil {
		return nil, mapSchedulerError(err)
	}

	touched := make(map[int]bool)
	for _, i := range problem.ApplyFaculty(all, result.Best) {
		touched[i] = true
	}
	for _, i := range problem.Revalidate(all) {
		touched[i] = true
	}
	indices := make([]int, 0, len(touched))
	for i := range touched {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	updated := make([]models.ScheduleEntry, 0, len(indices))
	for _, i := range indices {
		updated = append(updated, all[i])
	}

	if err := s.save(ctx, schedule.ID, updated); err != nil {
		return nil, err
	}
	conflict := false
	for _, e := range all {
		if e.HasConflict {
			conflict = true
			break
		}
	}
	s.metrics.ObserveEdit(EditFacultyRefresh, conflict)
	s.logger.Sugar().Infow("faculty refreshed",
		"schedule_id", schedule.ID,
		"updated", len(updated),
		"fitness", result.Fitness,
		"faculty_clashes", result.Breakdown.FacultyClashes,
	)
	return &dto.FacultyRefreshResponse{ScheduleID: schedule.ID, Fitness: result.Fitness, Updated: updated}, nil
}

// SuggestParallel lists subject pairs of a setup whose titles look equivalent but are not yet linked.
func (s *ScheduleService) SuggestParallel(ctx context.Context, setupID string) (*dto.ParallelSuggestionsResponse, error) {
	input, err := s.setups.LoadInput(ctx, setupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic setup not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic setup")
	}
	pairs := scheduler.SuggestParallel(input.Blocks)
	if pairs == nil {
		pairs = []scheduler.ParallelPair{}
	}
	return &dto.ParallelSuggestionsResponse{
		AcademicSetupID: setupID,
		Threshold:       scheduler.ParallelThreshold,
		Pairs:           pairs,
	}, nil
}

func (s *ScheduleService) loadSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

func (s *ScheduleService) loadWorkingSet(ctx context.Context, scheduleID string) (*models.Schedule, []models.ScheduleEntry, scheduler.Input, error) {
	var input scheduler.Input
	schedule, err := s.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, input, err
	}
	entries, err := s.entries.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, input, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule entries")
	}
	input, err = s.setups.LoadInput(ctx, schedule.AcademicSetupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, input, appErrors.Clone(appErrors.ErrNotFound, "academic setup not found")
		}
		return nil, nil, input, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic setup")
	}
	return schedule, entries, input, nil
}

func (s *ScheduleService) save(ctx context.Context, scheduleID string, changed []models.ScheduleEntry) (err error) {
	if len(changed) == 0 {
		return nil
	}
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.entries.UpdateBatch(ctx, tx, changed); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule entries")
		return err
	}
	if err = s.schedules.Touch(ctx, tx, scheduleID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule edit")
		return err
	}
	s.cache.Invalidate(ctx, scheduleID)
	return nil
}

func mapSchedulerError(err error) error {
	var infeasible *scheduler.InfeasibilityError
	if errors.As(err, &infeasible) {
		return appErrors.Wrap(err, appErrors.ErrInfeasible.Code, appErrors.ErrInfeasible.Status, infeasible.Error())
	}
	var encoding *scheduler.EncodingError
	if errors.As(err, &encoding) {
		return appErrors.Wrap(err, appErrors.ErrEncoding.Code, appErrors.ErrEncoding.Status, encoding.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "scheduler failure")
}
