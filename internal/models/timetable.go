package models

import (
	"strings"

	"github.com/lib/pq"
)

// DayGroup buckets time slots into the concrete days a session meets on.
type DayGroup string

const (
	DayGroupMW  DayGroup = "MW"
	DayGroupTTH DayGroup = "TTH"
	DayGroupFRI DayGroup = "FRI"
	DayGroupSAT DayGroup = "SAT"
	DayGroupSUN DayGroup = "SUN"
)

// AllDayGroups lists day groups in calendar order.
var AllDayGroups = []DayGroup{DayGroupMW, DayGroupTTH, DayGroupFRI, DayGroupSAT, DayGroupSUN}

// Days returns the calendar days covered by the group.
func (g DayGroup) Days() []string {
	switch g {
	case DayGroupMW:
		return []string{"monday", "wednesday"}
	case DayGroupTTH:
		return []string{"tuesday", "thursday"}
	case DayGroupFRI:
		return []string{"friday"}
	case DayGroupSAT:
		return []string{"saturday"}
	case DayGroupSUN:
		return []string{"sunday"}
	default:
		return nil
	}
}

// Valid reports whether g is a known day group.
func (g DayGroup) Valid() bool {
	return len(g.Days()) > 0
}

// DayGroupOf maps a calendar day name back to its group.
func DayGroupOf(day string) (DayGroup, bool) {
	switch strings.ToLower(strings.TrimSpace(day)) {
	case "monday", "wednesday":
		return DayGroupMW, true
	case "tuesday", "thursday":
		return DayGroupTTH, true
	case "friday":
		return DayGroupFRI, true
	case "saturday":
		return DayGroupSAT, true
	case "sunday":
		return DayGroupSUN, true
	}
	return "", false
}

// RoomType enumerates what kind of session a room can host.
type RoomType string

const (
	RoomTypeLecture    RoomType = "lecture"
	RoomTypeLaboratory RoomType = "laboratory"
	RoomTypeHybrid     RoomType = "hybrid"
)

// Hosts reports whether the room type can host a lab or lecture session.
func (t RoomType) Hosts(lab bool) bool {
	switch t {
	case RoomTypeHybrid:
		return true
	case RoomTypeLaboratory:
		return lab
	case RoomTypeLecture:
		return !lab
	}
	return false
}

// TimePeriod is a half-day window.
type TimePeriod string

const (
	TimePeriodMorning   TimePeriod = "morning"
	TimePeriodAfternoon TimePeriod = "afternoon"
	TimePeriodWholeDay  TimePeriod = "wholeday"
)

// SubjectBlock is one section of a subject offering that needs its own room, time and faculty.
type SubjectBlock struct {
	ID                     string         `db:"id" json:"id"`
	SubjectID              string         `db:"subject_id" json:"subject_id"`
	SubjectCode            string         `db:"subject_code" json:"subject_code"`
	Title                  string         `db:"title" json:"title"`
	CourseIDs              pq.StringArray `db:"course_ids" json:"course_ids"`
	CourseCodes            pq.StringArray `db:"course_codes" json:"course_codes"`
	BlockNumber            int            `db:"block_number" json:"block_number"`
	ExpectedStudents       int            `db:"expected_students" json:"expected_students"`
	NeedsLab               bool           `db:"needs_lab" json:"needs_lab"`
	PreferredLectureRoomID *string        `db:"preferred_lecture_room_id" json:"preferred_lecture_room_id,omitempty"`
	PreferredLabRoomID     *string        `db:"preferred_lab_room_id" json:"preferred_lab_room_id,omitempty"`
	ParallelSubjectIDs     pq.StringArray `db:"parallel_subject_ids" json:"parallel_subject_ids"`
	Units                  float64        `db:"units" json:"units"`
	LectureHours           float64        `db:"lecture_hours" json:"lecture_hours"`
	LabHours               float64        `db:"lab_hours" json:"lab_hours"`
}

// Faculty is a teaching staff member together with scheduling preferences.
type Faculty struct {
	UserID              string      `db:"user_id" json:"user_id"`
	Name                string      `db:"name" json:"name"`
	MaxUnits            float64     `db:"max_units" json:"max_units"`
	PreferredDayOff     *string     `db:"preferred_day_off" json:"preferred_day_off,omitempty"`
	PreferredDayOffTime TimePeriod  `db:"preferred_day_off_time" json:"preferred_day_off_time"`
	PreferredPeriod     *TimePeriod `db:"preferred_time_period" json:"preferred_time_period,omitempty"`
}

// Room is a schedulable room.
type Room struct {
	ID         string   `db:"id" json:"id"`
	Name       string   `db:"name" json:"name"`
	RoomType   RoomType `db:"room_type" json:"room_type"`
	Capacity   int      `db:"capacity" json:"capacity"`
	BuildingID string   `db:"building_id" json:"building_id"`
}

// TimeSlot is one catalogue slot inside a day group. Times use "15:04".
type TimeSlot struct {
	ID        string   `db:"id" json:"id"`
	DayGroup  DayGroup `db:"day_group" json:"day_group"`
	Name      string   `db:"name" json:"name"`
	StartTime string   `db:"start_time" json:"start_time"`
	EndTime   string   `db:"end_time" json:"end_time"`
	Priority  int      `db:"priority" json:"priority"`
}
