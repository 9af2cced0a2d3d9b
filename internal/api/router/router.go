package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillstore/jobengine/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint. The nudge channel and webhook gateway are
	// optional, so their absence degrades the report without failing it.
	r.GET("/health", func(c *gin.Context) {
		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": deps.AppName,
				"error":   err.Error(),
			})
			return
		}

		status := "healthy"
		if !deps.Gateway.Configured() {
			status = "degraded"
		}
		if deps.RabbitClient != nil && !deps.RabbitClient.IsConnected() {
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  status,
			"service": deps.AppName,
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	scheduleHandler := handler.NewScheduleHandler(deps)
	outboxHandler := handler.NewOutboxHandler(deps)
	tokenHandler := handler.NewTokenHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.POST("", jobHandler.CreateJob)
			jobsGroup.GET("", jobHandler.ListJobs)
			jobsGroup.GET("/:job_id", jobHandler.GetJob)
		}

		schedulesGroup := v1.Group("/schedules")
		{
			schedulesGroup.POST("", scheduleHandler.CreateSchedule)
			schedulesGroup.GET("", scheduleHandler.ListSchedules)
			schedulesGroup.GET("/:schedule_id", scheduleHandler.GetSchedule)
			schedulesGroup.PATCH("/:schedule_id", scheduleHandler.UpdateSchedule)
			schedulesGroup.DELETE("/:schedule_id", scheduleHandler.DeleteSchedule)
			schedulesGroup.POST("/:schedule_id/trigger", scheduleHandler.TriggerSchedule)
			schedulesGroup.POST("/:schedule_id/pause", scheduleHandler.PauseSchedule)
			schedulesGroup.POST("/:schedule_id/resume", scheduleHandler.ResumeSchedule)
		}

		outboxGroup := v1.Group("/outbox")
		{
			outboxGroup.GET("", outboxHandler.ListOutbox)
			outboxGroup.GET("/status", outboxHandler.OutboxStatus)
			outboxGroup.POST("/process", outboxHandler.ProcessOutbox)
			outboxGroup.POST("/:entry_id/retry", outboxHandler.RetryOutboxEntry)
		}

		tokensGroup := v1.Group("/tokens")
		{
			tokensGroup.POST("", tokenHandler.CreateToken)
			tokensGroup.GET("/:token_id", tokenHandler.GetToken)
			tokensGroup.POST("/:token_id/download", tokenHandler.Download)
		}
	}

	return r
}
