package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ScheduleStatus represents lifecycle phases for generated schedules.
type ScheduleStatus string

const (
	ScheduleStatusDraft     ScheduleStatus = "draft"
	ScheduleStatusPublished ScheduleStatus = "published"
)

// Schedule is the persisted output of one generation run for an academic setup.
type Schedule struct {
	ID              string         `db:"id" json:"id"`
	AcademicSetupID string         `db:"academic_setup_id" json:"academic_setup_id"`
	Status          ScheduleStatus `db:"status" json:"status"`
	FitnessScore    float64        `db:"fitness_score" json:"fitness_score"`
	Generation      int            `db:"generation" json:"generation"`
	Meta            types.JSONText `db:"meta" json:"meta"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`

	Entries []ScheduleEntry `db:"-" json:"entries,omitempty"`
}

// ScheduleEntry is one (day, slot) occupancy of a session. A multi-slot session yields one
// entry per occupied slot; all of them share SessionGroupID with the paired day's entries.
type ScheduleEntry struct {
	ID                     string    `db:"id" json:"id"`
	ScheduleID             string    `db:"schedule_id" json:"schedule_id"`
	Day                    string    `db:"day" json:"day"`
	TimeSlotID             string    `db:"time_slot_id" json:"time_slot_id"`
	RoomID                 string    `db:"room_id" json:"room_id"`
	UserID                 *string   `db:"user_id" json:"user_id"`
	AcademicSetupSubjectID string    `db:"academic_setup_subject_id" json:"academic_setup_subject_id"`
	IsLabSession           bool      `db:"is_lab_session" json:"is_lab_session"`
	SessionGroupID         string    `db:"session_group_id" json:"session_group_id"`
	SlotsSpan              int       `db:"slots_span" json:"slots_span"`
	CustomStartTime        *string   `db:"custom_start_time" json:"custom_start_time,omitempty"`
	CustomEndTime          *string   `db:"custom_end_time" json:"custom_end_time,omitempty"`
	HasConflict            bool      `db:"has_conflict" json:"has_conflict"`
	ConflictReason         *string   `db:"conflict_reason" json:"conflict_reason,omitempty"`
	DisplayCode            string    `db:"display_code" json:"display_code"`
	ParallelDisplayCode    *string   `db:"parallel_display_code" json:"parallel_display_code,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// SetConflict records or clears the conflict flag on the entry.
func (e *ScheduleEntry) SetConflict(reason string) {
	if reason == "" {
		e.HasConflict = false
		e.ConflictReason = nil
		return
	}
	e.HasConflict = true
	e.ConflictReason = &reason
}
