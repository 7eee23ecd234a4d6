package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

const scheduleEntryColumns = `id, schedule_id, day, time_slot_id, room_id, user_id, academic_setup_subject_id, is_lab_session,
session_group_id, slots_span, custom_start_time, custom_end_time, has_conflict, conflict_reason, display_code,
parallel_display_code, created_at, updated_at`

// ScheduleEntryRepository persists the per-slot rows of a schedule.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository builds the repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

func (r *ScheduleEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch writes materialized entries.
func (r *ScheduleEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO schedule_entries (` + scheduleEntryColumns + `)
VALUES (:id, :schedule_id, :day, :time_slot_id, :room_id, :user_id, :academic_setup_subject_id, :is_lab_session,
:session_group_id, :slots_span, :custom_start_time, :custom_end_time, :has_conflict, :conflict_reason, :display_code,
:parallel_display_code, :created_at, :updated_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns entries ordered by day, slot and display code.
func (r *ScheduleEntryRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleEntryColumns + `
FROM schedule_entries WHERE schedule_id = $1 ORDER BY day ASC, time_slot_id ASC, display_code ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// FindByID loads a single entry.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleEntryColumns + ` FROM schedule_entries WHERE id = $1`
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateBatch writes back the editable columns of the provided entries: placement, faculty and
// conflict flag.
func (r *ScheduleEntryRepository) UpdateBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
UPDATE schedule_entries
SET day = :day,
    time_slot_id = :time_slot_id,
    room_id = :room_id,
    user_id = :user_id,
    custom_start_time = :custom_start_time,
    custom_end_time = :custom_end_time,
    has_conflict = :has_conflict,
    conflict_reason = :conflict_reason,
    updated_at = :updated_at
WHERE id = :id`

	for i := range entries {
		entry := &entries[i]
		entry.UpdatedAt = now
		result, err := sqlx.NamedExecContext(ctx, target, query, entry)
		if err != nil {
			return fmt.Errorf("update schedule entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("schedule entry rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
	}
	return nil
}
