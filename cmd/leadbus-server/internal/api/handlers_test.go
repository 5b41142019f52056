package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/adapters/memory"
	"github.com/coregx/leadbus/dlq"
	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/retry"
	"github.com/coregx/leadbus/worker"
)

type fixture struct {
	router     *gin.Engine
	leads      *memory.LeadRepository
	accessLogs *memory.AccessLogRepository
	dlq        *leadbus.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		leads:      memory.NewLeadRepository(),
		accessLogs: memory.NewAccessLogRepository(),
	}
	audit := leadbus.NewRepositoryAuditLogger(f.accessLogs, &leadbus.NoopLogger{})

	var err error
	f.dlq, err = leadbus.NewDeadLetterQueue("lead-dlq")
	require.NoError(t, err)
	queue, err := leadbus.NewQueue("new-lead",
		leadbus.WithDeadLetterQueue(f.dlq),
		leadbus.WithRetryStrategy(retry.Strategy{MaxRetries: 3, BaseDelay: time.Millisecond}),
		leadbus.WithQueueAudit(audit),
	)
	require.NoError(t, err)

	processor, err := worker.NewLeadProcessor(
		worker.WithFault(worker.SimulatedErrorFault()),
		worker.WithCategoryStore(f.leads),
		worker.WithAudit(audit),
	)
	require.NoError(t, err)
	processor.Register(queue)

	topic, err := leadbus.NewTopic("lead-events")
	require.NoError(t, err)
	_, err = topic.Subscribe(queue, leadbus.NewFilter(model.EventTypeLeadNew))
	require.NoError(t, err)

	leads, err := leadbus.NewLeadService(
		leadbus.WithLeadRepository(f.leads),
		leadbus.WithLeadTopic(topic),
		leadbus.WithLeadServiceAudit(audit),
	)
	require.NoError(t, err)

	inspector, err := dlq.NewInspector(f.dlq, topic)
	require.NoError(t, err)

	h, err := NewHandler(Dependencies{
		Leads:      leads,
		Topic:      topic,
		Inspector:  inspector,
		AccessLogs: f.accessLogs,
		Audit:      audit,
	})
	require.NoError(t, err)

	f.router = gin.New()
	RegisterRoutes(f.router, h, otel.Tracer("test"), &leadbus.NoopLogger{})
	return f
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) (int, response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

var actorHeaders = map[string]string{HeaderUserID: "user-1", HeaderWorkspaceID: "7"}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	_, err := NewHandler(Dependencies{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", decode[map[string]interface{}](t, resp.Data)["status"])
}

func TestSendEvent_Delivered(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodPost, "/dev/sendEvent", `{"leadId": 5, "source": "website"}`, nil)

	require.Equal(t, http.StatusOK, status, resp.Error)
	data := decode[struct {
		Lead    model.LeadPayload     `json:"lead"`
		Publish leadbus.PublishResult `json:"publish"`
	}](t, resp.Data)
	assert.Equal(t, int64(5), data.Lead.ID)
	assert.Equal(t, "Test Lead", data.Lead.Name)
	assert.Equal(t, 1, data.Publish.Delivered)
	assert.Equal(t, 0, f.dlq.MessageCount())
}

func TestSendEvent_InvalidEmail(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodPost, "/dev/sendEvent", `{"email": "not-an-email"}`, nil)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, leadbus.ErrCodeValidation, resp.Code)
}

func TestSendEvent_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodPost, "/dev/sendEvent", `{`, nil)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestSimulatedErrorThenRetry(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/dev/sendEvent", `{"leadId": 9, "simulateError": true}`, nil)
	require.Equal(t, http.StatusOK, status, resp.Error)
	data := decode[struct {
		Lead           model.LeadPayload     `json:"lead"`
		Publish        leadbus.PublishResult `json:"publish"`
		SimulatedError bool                  `json:"simulatedError"`
	}](t, resp.Data)
	assert.True(t, data.SimulatedError)
	assert.Equal(t, "test-error", data.Lead.Source)
	assert.Equal(t, 1, data.Publish.DeadLettered)

	status, resp = f.do(t, http.MethodGet, "/dev/dlq", "", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Count    int           `json:"count"`
		Messages []model.Event `json:"messages"`
	}](t, resp.Data)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, model.EventTypeLeadProcessingFailed, list.Messages[0].EventType)
	assert.Equal(t, 4, list.Messages[0].Metadata.RetryCount)

	status, resp = f.do(t, http.MethodGet, "/dev/dlq/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[model.DLQStats](t, resp.Data)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Equal(t, 1, stats.ByOriginalEventType[model.EventTypeLeadNew])

	status, resp = f.do(t, http.MethodPost, "/dev/dlq/retry", `{"index": 0}`, nil)
	require.Equal(t, http.StatusOK, status, resp.Error)
	result := decode[dlq.RetryResult](t, resp.Data)
	require.Len(t, result.Retried, 1)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Retried[0].Metadata.RetryCount)
	assert.False(t, result.Retried[0].Metadata.SimulateError)
	assert.Equal(t, 0, f.dlq.MessageCount())
}

func TestRetryDLQ_Errors(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/dev/dlq/retry", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, leadbus.ErrCodeNoData, resp.Code)

	f.do(t, http.MethodPost, "/dev/dlq/add", `{"leadId": 3}`, nil)

	status, resp = f.do(t, http.MethodPost, "/dev/dlq/retry", `{"index": 4}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "invalid index: 4")

	status, _ = f.do(t, http.MethodPost, "/dev/dlq/retry", `{"leadId": 99}`, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 1, f.dlq.MessageCount())
}

func TestRetryDLQ_ChunkedEmptyBodyRetriesAll(t *testing.T) {
	f := newFixture(t)

	chunked := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/dev/dlq/retry", io.NopCloser(strings.NewReader("")))
		req.TransferEncoding = []string{"chunked"}
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	req := chunked()
	require.Equal(t, int64(-1), req.ContentLength)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, leadbus.ErrCodeNoData, resp.Code)

	status, resp := f.do(t, http.MethodPost, "/dev/sendEvent", `{"leadId": 5, "simulateError": true}`, nil)
	require.Equal(t, http.StatusOK, status, resp.Error)
	require.Equal(t, 1, f.dlq.MessageCount())

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, chunked())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, f.dlq.MessageCount())
}

func TestAddAndClearDLQ(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/dev/dlq/add", `{"leadId": 3, "errorMessage": "smtp down"}`, nil)
	require.Equal(t, http.StatusCreated, status, resp.Error)
	added := decode[struct {
		Message  model.Event `json:"message"`
		DLQCount int         `json:"dlqCount"`
	}](t, resp.Data)
	assert.Equal(t, int64(3), added.Message.Lead.ID)
	assert.Equal(t, "smtp down", added.Message.Metadata.ErrorMessage)
	assert.Equal(t, 1, added.DLQCount)

	status, _ = f.do(t, http.MethodPost, "/dev/dlq/add", `{"email": "broken"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = f.do(t, http.MethodDelete, "/dev/dlq", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, resp.Data)["count"])
	assert.Equal(t, 0, f.dlq.MessageCount())
}

func TestLeadLifecycle(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/v1/leads",
		`{"name": "Ada Lovelace", "email": "ada@example.com", "source": "referral"}`, actorHeaders)
	require.Equal(t, http.StatusCreated, status, resp.Error)
	created := decode[leadbus.LeadOutcome](t, resp.Data)
	assert.Equal(t, int64(7), created.Lead.WorkspaceID)
	assert.Equal(t, model.EventTypeLeadNew, created.Event.EventType)

	stored, err := f.leads.Load(t.Context(), created.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.LeadCategoryReferral), stored.Category)

	path := "/api/v1/leads/" + jsonNumber(created.Lead.ID)

	status, resp = f.do(t, http.MethodPut, path, `{"status": "qualified"}`, actorHeaders)
	require.Equal(t, http.StatusOK, status, resp.Error)
	assert.Equal(t, model.LeadStatusQualified, decode[leadbus.LeadOutcome](t, resp.Data).Lead.Status)

	status, _ = f.do(t, http.MethodPut, path, `{"status": "archived"}`, actorHeaders)
	assert.Equal(t, http.StatusBadRequest, status)

	other := map[string]string{HeaderUserID: "user-2", HeaderWorkspaceID: "8"}
	status, _ = f.do(t, http.MethodDelete, path, "", other)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodDelete, path, "", actorHeaders)
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodPut, path, `{"name": "Ada"}`, actorHeaders)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLeads_RequestErrors(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodPost, "/api/v1/leads", `{"name": "Ada", "email": "ada@example.com"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", resp.Code)

	status, resp = f.do(t, http.MethodPost, "/api/v1/leads", `{"name": "", "email": "ada@example.com"}`, actorHeaders)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, leadbus.ErrCodeValidation, resp.Code)

	status, _ = f.do(t, http.MethodPut, "/api/v1/leads/abc", `{}`, actorHeaders)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListAudit(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/dev/dlq", "", nil)
	f.do(t, http.MethodDelete, "/dev/dlq", "", nil)

	status, resp := f.do(t, http.MethodGet, "/dev/audit?limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	records := decode[struct {
		Count   int               `json:"count"`
		Records []model.AccessLog `json:"records"`
	}](t, resp.Data)
	require.Equal(t, 1, records.Count)
	assert.Equal(t, "clear DLQ messages", records.Records[0].Action)
	assert.Equal(t, DevUserID, records.Records[0].UserID)
	assert.Equal(t, model.APITypeEvent, records.Records[0].APIType)

	status, _ = f.do(t, http.MethodGet, "/dev/audit?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
