// Package api provides the gin HTTP handlers of the leadbus server.
package api

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/dlq"
	"github.com/coregx/leadbus/model"
)

// DevUserID is recorded for dev endpoints called without a user header.
const DevUserID = "dev-test-user"

// DefaultAuditLimit is the number of audit records returned by GET /dev/audit.
const DefaultAuditLimit = 100

// Handler holds dependencies for API handlers.
type Handler struct {
	leads      *leadbus.LeadService
	topic      *leadbus.Topic
	inspector  *dlq.Inspector
	accessLogs leadbus.AccessLogRepository
	audit      leadbus.AuditLogger
	logger     leadbus.Logger
}

// Dependencies groups the services used by the handlers.
type Dependencies struct {
	Leads      *leadbus.LeadService
	Topic      *leadbus.Topic
	Inspector  *dlq.Inspector
	AccessLogs leadbus.AccessLogRepository
	Audit      leadbus.AuditLogger // Defaults to NoopAuditLogger
	Logger     leadbus.Logger      // Defaults to NoopLogger
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Leads == nil || deps.Topic == nil || deps.Inspector == nil || deps.AccessLogs == nil {
		return nil, leadbus.NewError(leadbus.ErrCodeConfiguration, "leads, topic, inspector and access logs are required")
	}
	h := &Handler{
		leads:      deps.Leads,
		topic:      deps.Topic,
		inspector:  deps.Inspector,
		accessLogs: deps.AccessLogs,
		audit:      deps.Audit,
		logger:     deps.Logger,
	}
	if h.audit == nil {
		h.audit = leadbus.NoopAuditLogger{}
	}
	if h.logger == nil {
		h.logger = &leadbus.NoopLogger{}
	}
	return h, nil
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendEventRequest is the body of POST /dev/sendEvent. Every field is
// optional.
type SendEventRequest struct {
	LeadID        int64  `json:"leadId"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	Source        string `json:"source"`
	WorkspaceID   int64  `json:"workspace_id"`
	SimulateError bool   `json:"simulateError"`
}

// Validate validates the request.
func (r SendEventRequest) Validate() error {
	statuses := make([]interface{}, len(model.LeadStatuses))
	for i, s := range model.LeadStatuses {
		statuses[i] = s
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.LeadID, validation.Min(int64(0))),
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Status, validation.In(statuses...)),
		validation.Field(&r.WorkspaceID, validation.Min(int64(0))),
	)
}

// payload fills the defaults of the test lead.
func (r SendEventRequest) payload() model.LeadPayload {
	lead := model.LeadPayload{
		ID:          r.LeadID,
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		Status:      r.Status,
		Source:      r.Source,
		WorkspaceID: r.WorkspaceID,
	}
	if lead.ID == 0 {
		lead.ID = rand.Int64N(10000) + 1
	}
	if lead.Name == "" {
		lead.Name = "Test Lead"
	}
	if lead.Email == "" {
		lead.Email = "testlead@example.com"
	}
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
	if lead.Source == "" {
		lead.Source = "Test"
	}
	if r.SimulateError {
		lead.Source = "test-error"
	}
	if lead.WorkspaceID == 0 {
		lead.WorkspaceID = 1
	}
	return lead
}

// HandleSendEvent handles POST /dev/sendEvent
func (h *Handler) HandleSendEvent(c *gin.Context) {
	const endpoint, action = "/dev/sendEvent", "send test lead event"
	actor := actorFrom(c)

	var req SendEventRequest
	if !h.bindOptional(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.logAccess(c, endpoint, action, false, actor.UserID, "unknown", "Error: "+err.Error(), model.APITypeEvent)
		h.respondError(c, http.StatusBadRequest, err.Error(), leadbus.ErrCodeValidation)
		return
	}

	lead := req.payload()
	workspace := strconv.FormatInt(lead.WorkspaceID, 10)
	event := model.NewEvent(model.EventTypeLeadNew, lead, actor.UserID, workspace)
	event.Metadata.SimulateError = req.SimulateError

	h.logger.Infof("Publishing test %s event %s for lead %d", event.EventType, event.ID, lead.ID)
	result, err := h.topic.Publish(c.Request.Context(), event)
	if err != nil && !leadbus.IsDeadLettered(err) {
		h.logAccess(c, endpoint, action, false, actor.UserID, workspace, "Error: "+err.Error(), model.APITypeEvent)
		h.respondLeadbusError(c, err)
		return
	}

	suffix := ""
	if req.SimulateError {
		suffix = " (with simulated error)"
	}
	h.logAccess(c, endpoint, action, true, actor.UserID, workspace,
		fmt.Sprintf("Published test event for lead: %d - %s%s", lead.ID, lead.Name, suffix), model.APITypeEvent)

	h.respondSuccess(c, http.StatusOK, gin.H{
		"lead":           lead,
		"event":          event,
		"publish":        result,
		"simulatedError": req.SimulateError,
	}, fmt.Sprintf("Successfully published Lead.New event for test lead: %d - %s%s", lead.ID, lead.Name, suffix))
}

// HandleListDLQ handles GET /dev/dlq
func (h *Handler) HandleListDLQ(c *gin.Context) {
	actor := actorFrom(c)
	messages := h.inspector.List()
	h.logAccess(c, "/dev/dlq", "retrieve DLQ messages", true, actor.UserID, actor.WorkspaceID,
		fmt.Sprintf("Retrieved %d messages from DLQ", len(messages)), model.APITypeEvent)

	h.respondSuccess(c, http.StatusOK, gin.H{
		"count":    len(messages),
		"messages": messages,
	}, "")
}

// HandleClearDLQ handles DELETE /dev/dlq
func (h *Handler) HandleClearDLQ(c *gin.Context) {
	actor := actorFrom(c)
	count := h.inspector.Clear()
	h.logAccess(c, "/dev/dlq", "clear DLQ messages", true, actor.UserID, actor.WorkspaceID,
		fmt.Sprintf("Cleared %d messages from DLQ", count), model.APITypeEvent)

	h.respondSuccess(c, http.StatusOK, gin.H{"count": count},
		fmt.Sprintf("Successfully cleared %d messages from Dead Letter Queue", count))
}

// HandleRetryDLQ handles POST /dev/dlq/retry. The body selects messages by
// index or leadId; an empty body retries everything.
func (h *Handler) HandleRetryDLQ(c *gin.Context) {
	const endpoint, action = "/dev/dlq/retry", "retry DLQ messages"
	actor := actorFrom(c)

	var sel dlq.Selector
	if !h.bindOptional(c, &sel) {
		return
	}

	result, err := h.inspector.Retry(c.Request.Context(), sel)
	if result == nil {
		h.logAccess(c, endpoint, action, false, actor.UserID, actor.WorkspaceID, "Error: "+err.Error(), model.APITypeEvent)
		h.respondLeadbusError(c, err)
		return
	}

	message := fmt.Sprintf("Retried %d message(s) from Dead Letter Queue", len(result.Retried))
	if err != nil {
		h.logger.Warnf("DLQ retry finished with errors: %v", err)
		if leadbus.IsPublishFailure(err) || leadbus.IsDropped(err) {
			h.logAccess(c, endpoint, action, false, actor.UserID, actor.WorkspaceID, "Error: "+err.Error(), model.APITypeEvent)
			h.respondLeadbusError(c, err)
			return
		}
		message += fmt.Sprintf(", %d failed again and were dead-lettered", result.DeadLettered)
	}

	h.logAccess(c, endpoint, action, true, actor.UserID, actor.WorkspaceID, message, model.APITypeEvent)
	h.respondSuccess(c, http.StatusOK, result, message)
}

// AddDLQRequest is the body of POST /dev/dlq/add.
type AddDLQRequest struct {
	dlq.SyntheticMessage
}

// Validate validates the request.
func (r AddDLQRequest) Validate() error {
	return validation.ValidateStruct(&r.SyntheticMessage,
		validation.Field(&r.SyntheticMessage.LeadID, validation.Min(int64(0))),
		validation.Field(&r.SyntheticMessage.Email, is.Email),
		validation.Field(&r.SyntheticMessage.Name, validation.Length(0, 255)),
	)
}

// HandleAddDLQ handles POST /dev/dlq/add
func (h *Handler) HandleAddDLQ(c *gin.Context) {
	const endpoint, action = "/dev/dlq/add", "add test message to DLQ"
	actor := actorFrom(c)

	var req AddDLQRequest
	if !h.bindOptional(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.logAccess(c, endpoint, action, false, actor.UserID, actor.WorkspaceID, "Error: "+err.Error(), model.APITypeEvent)
		h.respondError(c, http.StatusBadRequest, err.Error(), leadbus.ErrCodeValidation)
		return
	}

	event := h.inspector.Add(req.SyntheticMessage)
	h.logAccess(c, endpoint, action, true, actor.UserID, actor.WorkspaceID,
		fmt.Sprintf("Added test message for lead %d to DLQ", event.Lead.ID), model.APITypeEvent)

	h.respondSuccess(c, http.StatusCreated, gin.H{
		"message":  event,
		"dlqCount": h.inspector.Count(),
	}, "Successfully added test message to Dead Letter Queue")
}

// HandleDLQStats handles GET /dev/dlq/stats
func (h *Handler) HandleDLQStats(c *gin.Context) {
	h.respondSuccess(c, http.StatusOK, h.inspector.Stats(), "")
}

// HandleListAudit handles GET /dev/audit?limit=N
func (h *Handler) HandleListAudit(c *gin.Context) {
	limit := DefaultAuditLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.respondError(c, http.StatusBadRequest, "limit must be a positive integer", leadbus.ErrCodeValidation)
			return
		}
		limit = n
	}

	records, err := h.accessLogs.FindRecent(c.Request.Context(), limit)
	if err != nil {
		h.respondLeadbusError(c, err)
		return
	}
	h.respondSuccess(c, http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	}, "")
}

// HandleCreateLead handles POST /api/v1/leads
func (h *Handler) HandleCreateLead(c *gin.Context) {
	var req leadbus.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	outcome, err := h.leads.CreateLead(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.respondLeadbusError(c, err)
		return
	}
	h.respondSuccess(c, http.StatusCreated, outcome, "Lead created")
}

// HandleUpdateLead handles PUT /api/v1/leads/:id
func (h *Handler) HandleUpdateLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req leadbus.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	outcome, err := h.leads.UpdateLead(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		h.respondLeadbusError(c, err)
		return
	}
	h.respondSuccess(c, http.StatusOK, outcome, "Lead updated")
}

// HandleDeleteLead handles DELETE /api/v1/leads/:id
func (h *Handler) HandleDeleteLead(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	outcome, err := h.leads.DeleteLead(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondLeadbusError(c, err)
		return
	}
	h.respondSuccess(c, http.StatusOK, outcome, "Lead deleted")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(c *gin.Context) {
	h.respondSuccess(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"dlqCount":  h.inspector.Count(),
	}, "")
}

func (h *Handler) leadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, http.StatusBadRequest, "Invalid lead ID", leadbus.ErrCodeValidation)
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one is sent. An empty body, with or
// without a Content-Length, leaves dst untouched.
func (h *Handler) bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return false
	}
	return true
}

func (h *Handler) logAccess(c *gin.Context, endpoint, action string, ok bool, userID, workspaceID, details, apiType string) {
	h.audit.LogAccessAttempt(c.Request.Context(),
		model.NewAccessLog(endpoint, action, ok, userID, workspaceID, details, apiType))
}

// statusFor maps leadbus error codes to HTTP statuses.
func statusFor(err error) int {
	switch {
	case leadbus.IsValidation(err):
		return http.StatusBadRequest
	case leadbus.IsNoData(err):
		return http.StatusNotFound
	case leadbus.IsPublishFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondLeadbusError(c *gin.Context, err error) {
	code := ""
	var lbErr *leadbus.Error
	if errors.As(err, &lbErr) {
		code = lbErr.Code
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	h.respondError(c, status, err.Error(), code)
}

// respondError sends an error response.
func (h *Handler) respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
