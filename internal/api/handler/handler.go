package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillstore/jobengine/internal/jobs"
	"github.com/skillstore/jobengine/internal/outbox"
	"github.com/skillstore/jobengine/internal/quota"
	"github.com/skillstore/jobengine/internal/schedules"
	"github.com/skillstore/jobengine/shared/postgresql"
	"github.com/skillstore/jobengine/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	DBClient      *postgresql.Client
	RabbitClient  *rabbitmq.Client // nil when the nudge channel is disabled
	JobStore      *jobs.Store
	ScheduleStore *schedules.Store
	Scheduler     *schedules.Scheduler
	OutboxStore   *outbox.Store
	Gateway       *outbox.Gateway
	Dispatcher    *outbox.Dispatcher
	Counter       *quota.Counter
	Environment   string
	AppName       string
}

// respondError maps domain errors to HTTP status codes. Anything not
// recognized is a 500 with a generic message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var validationErr *schedules.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, schedules.ErrScheduleNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, outbox.ErrEntryNotFound),
		errors.Is(err, quota.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, schedules.ErrDuplicateSchedule):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, quota.ErrLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logger.Error("Request failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
