package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus"
)

// Actor headers. Token verification happens in front of this service.
const (
	HeaderUserID      = "X-User-ID"
	HeaderWorkspaceID = "X-Workspace-ID"

	actorKey = "leadbus.actor"
)

// ActorMiddleware stores the caller taken from the actor headers.
// Missing values fall back to the given defaults.
func ActorMiddleware(defaultUser, defaultWorkspace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := leadbus.Actor{
			UserID:      c.GetHeader(HeaderUserID),
			WorkspaceID: c.GetHeader(HeaderWorkspaceID),
		}
		if actor.UserID == "" {
			actor.UserID = defaultUser
		}
		if actor.WorkspaceID == "" {
			actor.WorkspaceID = defaultWorkspace
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireUser rejects requests without a user header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing " + HeaderUserID + " header",
				Code:    "UNAUTHENTICATED",
				Message: "missing " + HeaderUserID + " header",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) leadbus.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(leadbus.Actor); ok {
			return actor
		}
	}
	return leadbus.Actor{}
}

// TracingMiddleware starts a server span for each request, continuing a
// trace propagated in the request headers.
func TracingMiddleware(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
			),
		)
		defer span.End()

		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String("lead.id", id))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(logger leadbus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger.Infof("%s %s", c.Request.Method, c.Request.URL.Path)
		c.Next()
		logger.Debugf("%s %s - %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
