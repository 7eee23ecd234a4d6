package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

func newSetupRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSetupRepositoryLoadInput(t *testing.T) {
	db, mock, cleanup := newSetupRepoMock(t)
	defer cleanup()
	repo := NewSetupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM academic_setups WHERE id = $1)")).
		WithArgs("setup-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(regexp.QuoteMeta("FROM academic_setup_subjects WHERE academic_setup_id = $1")).
		WithArgs("setup-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subject_id", "subject_code", "title", "course_ids", "course_codes", "block_number", "expected_students", "needs_lab",
			"preferred_lecture_room_id", "preferred_lab_room_id", "parallel_subject_ids", "units", "lecture_hours", "lab_hours",
		}).
			AddRow("b-1", "sub-1", "CS101", "Programming 1", "{c-1,c-2}", "{BSCS,BSIT}", 1, 35, true, "r-1", nil, "{}", 3.0, 2.0, 3.0))

	mock.ExpectQuery(regexp.QuoteMeta("FROM faculty_preferences WHERE academic_setup_id = $1")).
		WithArgs("setup-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "max_units", "preferred_day_off", "preferred_day_off_time", "preferred_time_period"}).
			AddRow("u-1", "Ana", 18.0, "monday", "morning", nil).
			AddRow("u-2", "Ben", 21.0, nil, "wholeday", "afternoon"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, room_type, capacity, building_id FROM rooms WHERE is_active = TRUE ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "room_type", "capacity", "building_id"}).
			AddRow("r-1", "L1", "lecture", 40, "bldg-1"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM time_slots WHERE academic_setup_id = $1")).
		WithArgs("setup-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_group", "name", "start_time", "end_time", "priority"}).
			AddRow("ts-1", "MW", "MW-1", "08:00", "09:00", 1))

	input, err := repo.LoadInput(context.Background(), "setup-1")
	require.NoError(t, err)

	require.Len(t, input.Blocks, 1)
	block := input.Blocks[0]
	assert.Equal(t, []string{"c-1", "c-2"}, []string(block.CourseIDs))
	assert.Equal(t, []string{"BSCS", "BSIT"}, []string(block.CourseCodes))
	assert.True(t, block.NeedsLab)
	require.NotNil(t, block.PreferredLectureRoomID)
	assert.Equal(t, "r-1", *block.PreferredLectureRoomID)
	assert.Nil(t, block.PreferredLabRoomID)
	assert.Empty(t, block.ParallelSubjectIDs)

	require.Len(t, input.Faculty, 2)
	assert.Equal(t, models.TimePeriodMorning, input.Faculty[0].PreferredDayOffTime)
	assert.Nil(t, input.Faculty[0].PreferredPeriod)
	require.NotNil(t, input.Faculty[1].PreferredPeriod)
	assert.Equal(t, models.TimePeriodAfternoon, *input.Faculty[1].PreferredPeriod)

	require.Len(t, input.Rooms, 1)
	assert.Equal(t, models.RoomTypeLecture, input.Rooms[0].RoomType)
	require.Len(t, input.TimeSlots, 1)
	assert.Equal(t, models.DayGroupMW, input.TimeSlots[0].DayGroup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupRepositoryLoadInputMissingSetup(t *testing.T) {
	db, mock, cleanup := newSetupRepoMock(t)
	defer cleanup()
	repo := NewSetupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM academic_setups WHERE id = $1)")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.LoadInput(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
