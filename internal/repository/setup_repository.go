package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-timetable-api/internal/scheduler"
)

// SetupRepository reads the immutable scheduling input of an academic setup.
type SetupRepository struct {
	db *sqlx.DB
}

// NewSetupRepository constructs the repository.
func NewSetupRepository(db *sqlx.DB) *SetupRepository {
	return &SetupRepository{db: db}
}

// Exists reports whether the academic setup is known.
func (r *SetupRepository) Exists(ctx context.Context, setupID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM academic_setups WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, setupID); err != nil {
		return false, fmt.Errorf("check academic setup: %w", err)
	}
	return exists, nil
}

// LoadInput assembles blocks, faculty, rooms and time slots for one setup. A missing setup
// returns sql.ErrNoRows.
func (r *SetupRepository) LoadInput(ctx context.Context, setupID string) (scheduler.Input, error) {
	var input scheduler.Input

	exists, err := r.Exists(ctx, setupID)
	if err != nil {
		return input, err
	}
	if !exists {
		return input, sql.ErrNoRows
	}

	const blocksQuery = `SELECT id, subject_id, subject_code, title, course_ids, course_codes, block_number, expected_students, needs_lab,
preferred_lecture_room_id, preferred_lab_room_id, parallel_subject_ids, units, lecture_hours, lab_hours
FROM academic_setup_subjects WHERE academic_setup_id = $1 ORDER BY subject_code ASC, block_number ASC`
	if err := r.db.SelectContext(ctx, &input.Blocks, blocksQuery, setupID); err != nil {
		return input, fmt.Errorf("list subject blocks: %w", err)
	}

	const facultyQuery = `SELECT user_id, name, max_units, preferred_day_off, COALESCE(preferred_day_off_time, 'wholeday') AS preferred_day_off_time, preferred_time_period
FROM faculty_preferences WHERE academic_setup_id = $1 ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &input.Faculty, facultyQuery, setupID); err != nil {
		return input, fmt.Errorf("list faculty preferences: %w", err)
	}

	const roomsQuery = `SELECT id, name, room_type, capacity, building_id FROM rooms WHERE is_active = TRUE ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &input.Rooms, roomsQuery); err != nil {
		return input, fmt.Errorf("list rooms: %w", err)
	}

	const slotsQuery = `SELECT id, day_group, name, start_time, end_time, priority
FROM time_slots WHERE academic_setup_id = $1 ORDER BY day_group ASC, start_time ASC, priority ASC`
	if err := r.db.SelectContext(ctx, &input.TimeSlots, slotsQuery, setupID); err != nil {
		return input, fmt.Errorf("list time slots: %w", err)
	}

	return input, nil
}
