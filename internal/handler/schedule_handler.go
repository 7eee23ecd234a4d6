package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-timetable-api/internal/dto"
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/service"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
	"github.com/noah-isme/course-timetable-api/pkg/response"
)

type scheduleService interface {
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Reposition(ctx context.Context, entryID string, req dto.RepositionEntryRequest) (*dto.RepositionEntryResponse, error)
	RefreshFaculty(ctx context.Context, scheduleID string) (*dto.FacultyRefreshResponse, error)
	SuggestParallel(ctx context.Context, setupID string) (*dto.ParallelSuggestionsResponse, error)
}

// ScheduleHandler manages generated schedules and manual edits.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Get godoc
// @Summary Get a generated schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, map[string]interface{}{"entries": len(schedule.Entries)})
}

// Reposition godoc
// @Summary Move a schedule entry
// @Description Moves are always applied. Broken constraints are reported through has_conflict and conflict_reason.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule entry ID"
// @Param payload body dto.RepositionEntryRequest true "Target day, slot and room"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-entries/{id} [patch]
func (h *ScheduleHandler) Reposition(c *gin.Context) {
	var req dto.RepositionEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reposition payload"))
		return
	}
	result, err := h.service.Reposition(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// FacultyRefresh godoc
// @Summary Re-run faculty assignment for a schedule
// @Description Rooms, days and time slots are kept; only faculty change.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/{id}/faculty-refresh [post]
func (h *ScheduleHandler) FacultyRefresh(c *gin.Context) {
	result, err := h.service.RefreshFaculty(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ParallelSuggestions godoc
// @Summary Suggest parallel subject links
// @Tags Schedules
// @Produce json
// @Param id path string true "Academic setup ID"
// @Success 200 {object} response.Envelope
// @Router /academic-setups/{id}/parallel-suggestions [get]
func (h *ScheduleHandler) ParallelSuggestions(c *gin.Context) {
	result, err := h.service.SuggestParallel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
