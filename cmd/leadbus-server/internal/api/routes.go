package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus"
)

// RegisterRoutes sets up all API endpoints.
func RegisterRoutes(r *gin.Engine, h *Handler, tracer trace.Tracer, logger leadbus.Logger) {
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(logger))
	r.Use(TracingMiddleware(tracer))

	// Dev endpoints for exercising the pipeline and the dead letter queue.
	dev := r.Group("/dev")
	dev.Use(ActorMiddleware(DevUserID, "system"))
	{
		dev.POST("/sendEvent", h.HandleSendEvent)
		dev.GET("/dlq", h.HandleListDLQ)
		dev.DELETE("/dlq", h.HandleClearDLQ)
		dev.POST("/dlq/retry", h.HandleRetryDLQ)
		dev.POST("/dlq/add", h.HandleAddDLQ)
		dev.GET("/dlq/stats", h.HandleDLQStats)
		dev.GET("/audit", h.HandleListAudit)
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.HandleHealth)

	leads := v1.Group("/leads")
	leads.Use(RequireUser(), ActorMiddleware("", ""))
	{
		leads.POST("", h.HandleCreateLead)
		leads.PUT("/:id", h.HandleUpdateLead)
		leads.DELETE("/:id", h.HandleDeleteLead)
	}
}
