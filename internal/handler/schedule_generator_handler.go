package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/dto"
	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/internal/service"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
	"github.com/noah-isme/course-timetable-api/pkg/response"
)

const streamWriteTimeout = 10 * time.Second

type generationService interface {
	Start(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Poll(ctx context.Context, jobKey string) models.JobProgress
	Cancel(jobKey string) error
	Subscribe(jobKey string) (<-chan models.JobProgress, func(), bool)
}

// GenerationHandler exposes timetable generation and job polling endpoints.
type GenerationHandler struct {
	service  generationService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGenerationHandler constructs the handler. An empty allowedOrigins accepts any origin on the
// progress stream.
func NewGenerationHandler(svc *service.GenerationService, allowedOrigins []string, logger *zap.Logger) *GenerationHandler {
	return newGenerationHandler(svc, allowedOrigins, logger)
}

func newGenerationHandler(svc generationService, allowedOrigins []string, logger *zap.Logger) *GenerationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationHandler{
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Generate godoc
// @Summary Start a timetable generation job
// @Description Validates the parameters, queues a genetic-algorithm run and returns the job key to poll.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation parameters"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Poll godoc
// @Summary Poll generation progress
// @Description Unknown keys answer 200 with status not_found.
// @Tags Timetable
// @Produce json
// @Param key path string true "Job key"
// @Success 200 {object} response.Envelope
// @Router /timetable/jobs/{key} [get]
func (h *GenerationHandler) Poll(c *gin.Context) {
	response.OK(c, h.service.Poll(c.Request.Context(), c.Param("key")))
}

// Cancel godoc
// @Summary Cancel a generation job
// @Tags Timetable
// @Param key path string true "Job key"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/jobs/{key} [delete]
func (h *GenerationHandler) Cancel(c *gin.Context) {
	key := c.Param("key")
	if err := h.service.Cancel(key); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"job_key": key, "cancelled": true})
}

// Stream godoc
// @Summary Stream generation progress over a websocket
// @Description Sends one JSON snapshot per update and closes once the job completes or fails.
// @Tags Timetable
// @Param key path string true "Job key"
// @Success 101
// @Router /timetable/jobs/{key}/stream [get]
func (h *GenerationHandler) Stream(c *gin.Context) {
	key := c.Param("key")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("job_key", key), zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe, ok := h.service.Subscribe(key)
	defer unsubscribe()
	if !ok {
		// the job may live on another replica; answer with what the mirror knows
		_ = h.write(conn, h.service.Poll(c.Request.Context(), key))
		h.close(conn, "job not held by this instance")
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("progress stream closed by client", zap.String("job_key", key), zap.Error(err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, open := <-updates:
			if !open {
				h.close(conn, "job finished")
				return
			}
			if err := h.write(conn, snap); err != nil {
				h.logger.Debug("progress stream write failed", zap.String("job_key", key), zap.Error(err))
				return
			}
		}
	}
}

func (h *GenerationHandler) write(conn *websocket.Conn, snap models.JobProgress) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(snap)
}

func (h *GenerationHandler) close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
