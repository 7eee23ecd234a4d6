package dto

import (
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/scheduler"
)

// GenerateTimetableRequest starts an asynchronous generation job for an academic setup.
type GenerateTimetableRequest struct {
	AcademicSetupID  string   `json:"academic_setup_id" validate:"required"`
	PopulationSize   int      `json:"population_size" validate:"gt=0,lte=5000"`
	MaxGenerations   int      `json:"max_generations" validate:"gt=0,lte=100000"`
	MutationRate     float64  `json:"mutation_rate" validate:"gte=0,lte=1"`
	IncludedDays     []string `json:"included_days" validate:"required,min=1,unique,dive,oneof=MW TTH FRI SAT SUN"`
	TargetFitnessMin float64  `json:"target_fitness_min"`
	TargetFitnessMax float64  `json:"target_fitness_max" validate:"gtefield=TargetFitnessMin"`
}

// DayGroups converts the validated day strings.
func (r GenerateTimetableRequest) DayGroups() []models.DayGroup {
	groups := make([]models.DayGroup, 0, len(r.IncludedDays))
	for _, d := range r.IncludedDays {
		groups = append(groups, models.DayGroup(d))
	}
	return groups
}

// GenerateTimetableResponse returns the key to poll.
type GenerateTimetableResponse struct {
	JobKey string `json:"job_key"`
}

// RepositionEntryRequest moves one schedule entry to a new day, slot and room.
type RepositionEntryRequest struct {
	Day        string `json:"day" validate:"required"`
	TimeSlotID string `json:"time_slot_id" validate:"required"`
	RoomID     string `json:"room_id" validate:"required"`
}

// RepositionEntryResponse carries the moved entry and every neighbour whose conflict flag changed.
type RepositionEntryResponse struct {
	Entry    models.ScheduleEntry   `json:"entry"`
	Affected []models.ScheduleEntry `json:"affected"`
}

// FacultyRefreshResponse lists entries whose faculty or conflict flag changed.
type FacultyRefreshResponse struct {
	ScheduleID string                 `json:"schedule_id"`
	Fitness    float64                `json:"fitness"`
	Updated    []models.ScheduleEntry `json:"updated"`
}

// ParallelSuggestionsResponse lists subject pairs whose titles look equivalent.
type ParallelSuggestionsResponse struct {
	AcademicSetupID string                   `json:"academic_setup_id"`
	Threshold       float64                  `json:"threshold"`
	Pairs           []scheduler.ParallelPair `json:"pairs"`
}
