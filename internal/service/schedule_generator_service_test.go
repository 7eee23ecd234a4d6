package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-timetable-api/internal/dto"
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
	"github.com/noah-isme/course-timetable-api/pkg/jobs"
)

func TestGenerationServiceStartRejectsInvalidParameters(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, timetableInput())

	cases := []dto.GenerateTimetableRequest{
		func() dto.GenerateTimetableRequest { r := validGenerateRequest(); r.PopulationSize = 0; return r }(),
		func() dto.GenerateTimetableRequest { r := validGenerateRequest(); r.MaxGenerations = -1; return r }(),
		func() dto.GenerateTimetableRequest { r := validGenerateRequest(); r.MutationRate = 1.5; return r }(),
		func() dto.GenerateTimetableRequest { r := validGenerateRequest(); r.IncludedDays = nil; return r }(),
		func() dto.GenerateTimetableRequest { r := validGenerateRequest(); r.IncludedDays = []string{"MON"}; return r }(),
		func() dto.GenerateTimetableRequest {
			r := validGenerateRequest()
			r.TargetFitnessMin, r.TargetFitnessMax = 90, 10
			return r
		}(),
	}
	for _, req := range cases {
		_, err := svc.Start(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, "%+v", req)
	}
	assert.Zero(t, svc.Store().Len(), "no job key is issued for invalid requests")
}

func TestGenerationServiceStartAcceptsNegativeFitnessWindow(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())
	req := validGenerateRequest()
	req.TargetFitnessMin, req.TargetFitnessMax = -500, 100

	resp, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobKey)
	require.Len(t, queue.jobs, 1)
	payload := queue.jobs[0].Payload.(dto.GenerateTimetableRequest)
	assert.Equal(t, -500.0, payload.TargetFitnessMin)
}

func TestGenerationServiceStartDisabled(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, timetableInput())
	svc.cfg.Enabled = false

	_, err := svc.Start(context.Background(), validGenerateRequest())
	assert.True(t, appErrors.Is(err, appErrors.ErrDisabled))
}

func TestGenerationServiceStartUnknownSetup(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, timetableInput())
	svc.setups.(*setupStub).missing = true

	_, err := svc.Start(context.Background(), validGenerateRequest())
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestGenerationServiceStartQueuesPendingJob(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())

	resp, err := svc.Start(context.Background(), validGenerateRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobKey)

	snap := svc.Poll(context.Background(), resp.JobKey)
	assert.Equal(t, models.JobStatusPending, snap.Status)
	assert.Nil(t, snap.ScheduleID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.JobKey, queue.jobs[0].ID)
	assert.Equal(t, JobTypeGenerate, queue.jobs[0].Type)
}

func TestGenerationServiceStartEnqueueFailure(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())
	queue.err = errors.New("queue stopped")

	_, err := svc.Start(context.Background(), validGenerateRequest())
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestGenerationServiceStartQueueFull(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())
	queue.err = fmt.Errorf("timetable: %w", jobs.ErrQueueFull)

	_, err := svc.Start(context.Background(), validGenerateRequest())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBusy))
	assert.Equal(t, 503, appErrors.FromError(err).Status)
}

func TestGenerationServiceHandleCompletesJob(t *testing.T) {
	svc, queue, mock := newGenerationFixture(t, timetableInput())
	resp, err := svc.Start(context.Background(), validGenerateRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	snap := svc.Poll(context.Background(), resp.JobKey)
	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	require.NotNil(t, snap.ScheduleID)

	schedules := svc.schedules.(*scheduleStoreStub)
	require.Len(t, schedules.created, 1)
	assert.Equal(t, *snap.ScheduleID, schedules.created[0].ID)
	assert.Equal(t, "setup-1", schedules.created[0].AcademicSetupID)

	entries := svc.entries.(*entryStoreStub)
	require.NotEmpty(t, entries.inserted)
	for _, e := range entries.inserted {
		assert.Equal(t, *snap.ScheduleID, e.ScheduleID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, appErrors.Is(svc.Cancel(resp.JobKey), appErrors.ErrNotFound), "finished jobs cannot be cancelled")
}

func TestGenerationServiceSingleGenerationTerminates(t *testing.T) {
	svc, queue, mock := newGenerationFixture(t, timetableInput())
	req := validGenerateRequest()
	req.PopulationSize, req.MaxGenerations = 1, 1
	resp, err := svc.Start(context.Background(), req)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	snap := svc.Poll(context.Background(), resp.JobKey)
	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Contains(t, snap.Message, "after 1 generations")
	assert.Equal(t, 1, svc.schedules.(*scheduleStoreStub).created[0].Generation)
}

func TestGenerationServiceHandleInfeasibleInput(t *testing.T) {
	input := timetableInput()
	input.Blocks[0].NeedsLab = true
	input.Blocks[0].LabHours = 2
	svc, queue, _ := newGenerationFixture(t, input)
	resp, err := svc.Start(context.Background(), validGenerateRequest())
	require.NoError(t, err)

	err = svc.Handle(context.Background(), queue.jobs[0])
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
	var infeasible *scheduler.InfeasibilityError
	assert.True(t, errors.As(err, &infeasible))

	snap := svc.Poll(context.Background(), resp.JobKey)
	assert.Equal(t, models.JobStatusFailed, snap.Status)
	assert.Nil(t, snap.ScheduleID)
	assert.Contains(t, snap.Message, "laboratory or hybrid room")
	assert.Empty(t, svc.schedules.(*scheduleStoreStub).created)
}

func TestGenerationServiceCancelBeforeRun(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())
	resp, err := svc.Start(context.Background(), validGenerateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(resp.JobKey))
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	snap := svc.Poll(context.Background(), resp.JobKey)
	assert.Equal(t, models.JobStatusFailed, snap.Status)
	assert.Equal(t, "generation cancelled", snap.Message)
	assert.True(t, appErrors.Is(svc.Cancel(resp.JobKey), appErrors.ErrNotFound))
}

func TestGenerationServiceRetriesTransientLoadFailure(t *testing.T) {
	svc, queue, _ := newGenerationFixture(t, timetableInput())
	resp, err := svc.Start(context.Background(), validGenerateRequest())
	require.NoError(t, err)
	svc.setups.(*setupStub).loadErr = errors.New("connection reset")

	job := queue.jobs[0]
	err = svc.Handle(context.Background(), job)
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
	assert.Equal(t, models.JobStatusRunning, svc.Poll(context.Background(), resp.JobKey).Status)

	job.Attempt = 3
	err = svc.Handle(context.Background(), job)
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
	assert.Equal(t, models.JobStatusFailed, svc.Poll(context.Background(), resp.JobKey).Status)
}

func TestGenerationServiceEndToEndHasNoRoomCollisions(t *testing.T) {
	svc, queue, mock := newGenerationFixture(t, gridInput(10, 3, 5))
	req := validGenerateRequest()
	req.PopulationSize, req.MaxGenerations, req.MutationRate = 50, 20, 0.3
	resp, err := svc.Start(context.Background(), req)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))

	snap := svc.Poll(context.Background(), resp.JobKey)
	require.Equal(t, models.JobStatusCompleted, snap.Status)
	require.NotNil(t, snap.ScheduleID)
	assert.Equal(t, 100.0, snap.Progress)

	entries := svc.entries.(*entryStoreStub).inserted
	require.NotEmpty(t, entries)
	subjects := make(map[string]bool)
	holders := make(map[string]string)
	for _, e := range entries {
		subjects[e.AcademicSetupSubjectID] = true
		cell := fmt.Sprintf("%s|%s|%s", e.RoomID, e.Day, e.TimeSlotID)
		if other, taken := holders[cell]; taken {
			assert.Equal(t, other, e.SessionGroupID, "room %s double booked on %s at %s", e.RoomID, e.Day, e.TimeSlotID)
			continue
		}
		holders[cell] = e.SessionGroupID
	}
	assert.Len(t, subjects, 10)
}

func TestGenerationServiceEndToEndHonoursDayOff(t *testing.T) {
	input := gridInput(3, 2, 5)
	monday := "monday"
	input.Faculty = []models.Faculty{
		{UserID: "f-off", Name: "Cy", MaxUnits: 12, PreferredDayOff: &monday, PreferredDayOffTime: models.TimePeriodWholeDay},
	}
	svc, queue, mock := newGenerationFixture(t, input)
	req := validGenerateRequest()
	req.PopulationSize, req.MaxGenerations, req.MutationRate = 50, 20, 0.3
	resp, err := svc.Start(context.Background(), req)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	require.Equal(t, models.JobStatusCompleted, svc.Poll(context.Background(), resp.JobKey).Status)

	entries := svc.entries.(*entryStoreStub).inserted
	require.NotEmpty(t, entries)
	for _, e := range entries {
		if e.UserID != nil && *e.UserID == "f-off" {
			assert.NotEqual(t, "monday", e.Day, "%s scheduled on the faculty member's day off", e.DisplayCode)
		}
	}
}

func TestGenerationProgressReachesHundredAtLastGeneration(t *testing.T) {
	assert.Equal(t, 5.0, generationProgress(1, 20))
	assert.Equal(t, 50.0, generationProgress(10, 20))
	assert.Equal(t, 100.0, generationProgress(20, 20))
	assert.Equal(t, 0.0, generationProgress(3, 0))
}

func TestGenerationServicePollUnknownKey(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, timetableInput())
	assert.Equal(t, models.JobStatusNotFound, svc.Poll(context.Background(), "missing").Status)
}

// --- Fixtures ---

func validGenerateRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		AcademicSetupID: "setup-1",
		PopulationSize:  6,
		MaxGenerations:  5,
		MutationRate:    0.3,
		IncludedDays:    []string{"MW", "TTH"},
	}
}

func newGenerationFixture(t *testing.T, input scheduler.Input) (*GenerationService, *dispatcherStub, sqlmock.Sqlmock) {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	queue := &dispatcherStub{}
	svc := NewGenerationService(
		&setupStub{input: input},
		newScheduleStoreStub(),
		newEntryStoreStub(),
		tx,
		jobs.NewProgressStore(jobs.ProgressStoreConfig{}),
		NewMetricsService(),
		nil,
		nil,
		GenerationConfig{Enabled: true, Weights: scheduler.DefaultWeights(), EvalWorkers: 2, Seed: 11},
	)
	svc.UseQueue(queue)
	return svc, queue, mock
}

func strPtr(v string) *string { return &v }

// timetableInput has two lecture-only blocks, two lecture rooms, two faculty and four hourly
// slots per day group.
func timetableInput() scheduler.Input {
	slots := make([]models.TimeSlot, 0, 8)
	for _, g := range []models.DayGroup{models.DayGroupMW, models.DayGroupTTH} {
		for i, start := range []string{"08:00", "09:00", "10:00", "11:00"} {
			end := []string{"09:00", "10:00", "11:00", "12:00"}[i]
			slots = append(slots, models.TimeSlot{
				ID:        string(g) + "-" + string(rune('1'+i)),
				DayGroup:  g,
				Name:      string(g) + " " + start,
				StartTime: start,
				EndTime:   end,
				Priority:  i,
			})
		}
	}
	return scheduler.Input{
		Blocks: []models.SubjectBlock{
			{ID: "b-1", SubjectID: "cs101", SubjectCode: "CS101", Title: "Programming 1", CourseCodes: []string{"BSCS"}, BlockNumber: 1, ExpectedStudents: 30, Units: 3, LectureHours: 1},
			{ID: "b-2", SubjectID: "ma101", SubjectCode: "MA101", Title: "Calculus 1", CourseCodes: []string{"BSCS"}, BlockNumber: 1, ExpectedStudents: 20, Units: 3, LectureHours: 1},
		},
		Faculty: []models.Faculty{
			{UserID: "f-1", Name: "Ana", MaxUnits: 12, PreferredDayOffTime: models.TimePeriodWholeDay},
			{UserID: "f-2", Name: "Ben", MaxUnits: 12, PreferredDayOffTime: models.TimePeriodWholeDay},
		},
		Rooms: []models.Room{
			{ID: "r-1", Name: "L1", RoomType: models.RoomTypeLecture, Capacity: 40},
			{ID: "r-2", Name: "L2", RoomType: models.RoomTypeLecture, Capacity: 40},
		},
		TimeSlots: slots,
	}
}

// gridInput builds lecture-only blocks over the given number of 40-seat lecture rooms with
// slotsPerGroup hourly slots on MW and TTH, staffed by five faculty members.
func gridInput(blocks, rooms, slotsPerGroup int) scheduler.Input {
	var slots []models.TimeSlot
	for _, g := range []models.DayGroup{models.DayGroupMW, models.DayGroupTTH} {
		for i := 0; i < slotsPerGroup; i++ {
			slots = append(slots, models.TimeSlot{
				ID:        fmt.Sprintf("%s-%d", g, i+1),
				DayGroup:  g,
				Name:      fmt.Sprintf("%s %02d:00", g, 8+i),
				StartTime: fmt.Sprintf("%02d:00", 8+i),
				EndTime:   fmt.Sprintf("%02d:00", 9+i),
				Priority:  i,
			})
		}
	}
	input := scheduler.Input{TimeSlots: slots}
	for i := 0; i < blocks; i++ {
		code := fmt.Sprintf("GE%03d", 101+i)
		input.Blocks = append(input.Blocks, models.SubjectBlock{
			ID: fmt.Sprintf("b-%d", i+1), SubjectID: fmt.Sprintf("ge%d", 101+i), SubjectCode: code,
			Title: "General Education " + code, CourseCodes: []string{"BSCS"}, BlockNumber: 1,
			ExpectedStudents: 30, Units: 3, LectureHours: 1,
		})
	}
	for i := 0; i < rooms; i++ {
		input.Rooms = append(input.Rooms, models.Room{
			ID: fmt.Sprintf("r-%d", i+1), Name: fmt.Sprintf("L%d", i+1), RoomType: models.RoomTypeLecture, Capacity: 40,
		})
	}
	for i := 0; i < 5; i++ {
		input.Faculty = append(input.Faculty, models.Faculty{
			UserID: fmt.Sprintf("f-%d", i+1), Name: fmt.Sprintf("Faculty %d", i+1), MaxUnits: 12,
			PreferredDayOffTime: models.TimePeriodWholeDay,
		})
	}
	return input
}

type setupStub struct {
	input   scheduler.Input
	missing bool
	loadErr error
}

func (s *setupStub) Exists(ctx context.Context, setupID string) (bool, error) {
	return !s.missing, nil
}

func (s *setupStub) LoadInput(ctx context.Context, setupID string) (scheduler.Input, error) {
	if s.missing {
		return scheduler.Input{}, sql.ErrNoRows
	}
	if s.loadErr != nil {
		return scheduler.Input{}, s.loadErr
	}
	return s.input, nil
}

type scheduleStoreStub struct {
	mu      sync.Mutex
	created []*models.Schedule
	byID    map[string]*models.Schedule
	touched []string
}

func newScheduleStoreStub() *scheduleStoreStub {
	return &scheduleStoreStub{byID: map[string]*models.Schedule{}}
}

func (s *scheduleStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, schedule)
	s.byID[schedule.ID] = schedule
	return nil
}

func (s *scheduleStoreStub) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *schedule
	return &clone, nil
}

func (s *scheduleStoreStub) Touch(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

type entryStoreStub struct {
	mu       sync.Mutex
	inserted []models.ScheduleEntry
	rows     []models.ScheduleEntry
	updated  []models.ScheduleEntry
}

func newEntryStoreStub() *entryStoreStub {
	return &entryStoreStub{}
}

func (s *entryStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, entries...)
	s.rows = append(s.rows, entries...)
	return nil
}

func (s *entryStoreStub) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduleEntry
	for _, e := range s.rows {
		if e.ScheduleID == scheduleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *entryStoreStub) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.rows {
		if e.ID == id {
			clone := e
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *entryStoreStub) UpdateBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, entries...)
	for _, e := range entries {
		for i := range s.rows {
			if s.rows[i].ID == e.ID {
				s.rows[i] = e
			}
		}
	}
	return nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
