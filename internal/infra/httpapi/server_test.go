package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lead_notification_bot/internal/app"
	"lead_notification_bot/internal/domain/lead"
	"lead_notification_bot/internal/domain/message"
	"lead_notification_bot/internal/domain/phone"
	"lead_notification_bot/internal/infra/msglog"
	"lead_notification_bot/internal/infra/whatsapp"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{}

func (stubSource) Fetch(ctx context.Context) ([]lead.Lead, error) { return nil, nil }

type stubSender struct{}

func (stubSender) SendText(ctx context.Context, phone, text string) error { return nil }
func (stubSender) SendDocument(ctx context.Context, phone, filePath, caption string) error {
	return nil
}

type stubSession struct {
	state    whatsapp.State
	resetErr error
	resets   int
}

func (s *stubSession) State() whatsapp.State { return s.state }
func (s *stubSession) Reset(ctx context.Context) error {
	s.resets++
	return s.resetErr
}

type stubTrigger struct {
	starts, stops int
}

func (t *stubTrigger) Start() { t.starts++ }
func (t *stubTrigger) Stop()  { t.stops++ }

func newTestServer(t *testing.T) (*Server, *msglog.Store, *stubSession, *stubTrigger) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	mainLog := msglog.NewMainStore(filepath.Join(dir, "log.txt"), logger)
	catalogLog := msglog.NewCatalogStore(filepath.Join(dir, "catalog.txt"), logger)
	t.Cleanup(mainLog.Close)
	t.Cleanup(catalogLog.Close)

	sender := stubSender{}
	health := app.NewHealthMonitor(sender, "", 3, 0, logger)
	leads := app.NewLeadService(stubSource{}, sender, mainLog, catalogLog,
		app.NewLockRegistry(), health, phone.Normalizer{},
		app.LeadServiceConfig{CatalogPolicy: app.CatalogNone}, logger)

	session := &stubSession{state: whatsapp.StateReady}
	trigger := &stubTrigger{}
	srv := NewServer(":0", leads, health, session, trigger, mainLog, logger)
	return srv, mainLog, session, trigger
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["session"])
	assert.Equal(t, false, body["processing"])
	assert.Contains(t, body, "health")
}

func TestStartEndpoint_TriggersCycleAndSchedule(t *testing.T) {
	srv, _, _, trigger := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, trigger.starts)
}

func TestStartEndpoint_RejectsGet(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStopEndpoint(t *testing.T) {
	srv, _, _, trigger := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, trigger.stops)
}

func TestResetSessionEndpoint(t *testing.T) {
	srv, _, session, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset-session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, session.resets)
}

func TestAnalyticsEndpoint_Aggregates(t *testing.T) {
	srv, mainLog, _, _ := newTestServer(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, mainLog.Append(message.Entry{Phone: "911111111111", Name: "A", Timestamp: now, Status: message.StatusSent}))
	require.NoError(t, mainLog.Append(message.Entry{
		Phone: "912222222222", Name: "B", Timestamp: now, Status: message.StatusSeen,
		SeenTimestamp: now.Add(time.Minute), TimeToSeeSecs: 60, LastUpdated: now.Add(time.Minute),
	}))
	require.NoError(t, mainLog.Append(message.Entry{Phone: "913333333333", Name: "C", Timestamp: now, Status: message.StatusFailed}))

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body analyticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 1, body.Sent)
	assert.Equal(t, 1, body.Seen)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, float64(60), body.AvgTimeToSeeSecs)
}

func TestAnalyticsEndpoint_BadDate(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics?from=nonsense", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsEndpoint_DateRange(t *testing.T) {
	srv, mainLog, _, _ := newTestServer(t)

	old := time.Now().AddDate(0, 0, -30).Truncate(time.Second)
	require.NoError(t, mainLog.Append(message.Entry{Phone: "911111111111", Name: "Old", Timestamp: old, Status: message.StatusSent}))
	require.NoError(t, mainLog.Append(message.Entry{Phone: "912222222222", Name: "New", Timestamp: time.Now().Truncate(time.Second), Status: message.StatusSent}))

	from := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?from="+from, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rows []logRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "912222222222", body.Rows[0].Phone)
}
