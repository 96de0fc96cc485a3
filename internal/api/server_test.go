package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rapidresponse/internal/common/config"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"
	"rapidresponse/internal/notification"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIntake struct {
	ProcessReportFunc func(ctx context.Context, r intake.Report) (*models.Emergency, error)
}

func (m *mockIntake) ProcessReport(ctx context.Context, r intake.Report) (*models.Emergency, error) {
	return m.ProcessReportFunc(ctx, r)
}

type mockEmergencies struct {
	GetFunc           func(ctx context.Context, id string) (*models.Emergency, error)
	UpdateStatusFunc  func(ctx context.Context, id, status, notes string) (*models.Emergency, error)
	UpdateNotesFunc   func(ctx context.Context, id, notes string) (*models.Emergency, error)
	StatusHistoryFunc func(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error)
	HistoryFunc       func(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error)
	StatsFunc         func(ctx context.Context, period string) (*models.EmergencyStats, error)
}

func (m *mockEmergencies) Get(ctx context.Context, id string) (*models.Emergency, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockEmergencies) UpdateStatus(ctx context.Context, id, status, notes string) (*models.Emergency, error) {
	return m.UpdateStatusFunc(ctx, id, status, notes)
}

func (m *mockEmergencies) UpdateNotes(ctx context.Context, id, notes string) (*models.Emergency, error) {
	return m.UpdateNotesFunc(ctx, id, notes)
}

func (m *mockEmergencies) StatusHistory(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error) {
	return m.StatusHistoryFunc(ctx, id)
}

func (m *mockEmergencies) History(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error) {
	return m.HistoryFunc(ctx, f)
}

func (m *mockEmergencies) Stats(ctx context.Context, period string) (*models.EmergencyStats, error) {
	return m.StatsFunc(ctx, period)
}

type mockAvailability struct {
	ListFunc   func(ctx context.Context) ([]models.ServiceAvailability, error)
	UpsertFunc func(ctx context.Context, a models.ServiceAvailability) (*models.ServiceAvailability, error)
}

func (m *mockAvailability) List(ctx context.Context) ([]models.ServiceAvailability, error) {
	return m.ListFunc(ctx)
}

func (m *mockAvailability) Upsert(ctx context.Context, a models.ServiceAvailability) (*models.ServiceAvailability, error) {
	return m.UpsertFunc(ctx, a)
}

type mockNotifications struct {
	SubscribeFunc         func(ctx context.Context, req notification.SubscribeRequest) (*models.NotificationSubscription, error)
	ListForSubscriberFunc func(ctx context.Context, subscriberType, subscriberID string) ([]models.Notification, error)
	AcknowledgeFunc       func(ctx context.Context, id string) (*models.Notification, error)
	ConnectFunc           func(clientID string, conn notification.Conn) (func(), error)
}

func (m *mockNotifications) Subscribe(ctx context.Context, req notification.SubscribeRequest) (*models.NotificationSubscription, error) {
	return m.SubscribeFunc(ctx, req)
}

func (m *mockNotifications) ListForSubscriber(ctx context.Context, subscriberType, subscriberID string) ([]models.Notification, error) {
	return m.ListForSubscriberFunc(ctx, subscriberType, subscriberID)
}

func (m *mockNotifications) Acknowledge(ctx context.Context, id string) (*models.Notification, error) {
	return m.AcknowledgeFunc(ctx, id)
}

func (m *mockNotifications) Connect(clientID string, conn notification.Conn) (func(), error) {
	return m.ConnectFunc(clientID, conn)
}

type fixture struct {
	intake        *mockIntake
	emergencies   *mockEmergencies
	availability  *mockAvailability
	notifications *mockNotifications
	server        *Server
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		intake:        &mockIntake{},
		emergencies:   &mockEmergencies{},
		availability:  &mockAvailability{},
		notifications: &mockNotifications{},
	}
	cfg := &config.Config{}
	cfg.Server.MaxAudioBytes = 1024
	f.server = NewServer(Dependencies{
		Intake:        f.intake,
		Emergencies:   f.emergencies,
		Availability:  f.availability,
		Notifications: f.notifications,
	}, cfg, logger.NewTestLogger(t))
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestSubmitReport_JSON(t *testing.T) {
	f := newFixture(t)
	var got intake.Report
	f.intake.ProcessReportFunc = func(ctx context.Context, r intake.Report) (*models.Emergency, error) {
		got = r
		return &models.Emergency{ID: "em-1", Type: "FIRE", Status: models.StatusActive}, nil
	}

	rec := f.do(t, http.MethodPost, "/emergency/report", map[string]interface{}{
		"text":     "smoke in the stairwell",
		"location": map[string]float64{"lat": 40.7, "lon": -74.0},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "smoke in the stairwell", got.Text)
	require.NotNil(t, got.Location)
	assert.Equal(t, 40.7, got.Location.Lat)

	var e models.Emergency
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "em-1", e.ID)
}

func TestSubmitReport_Multipart(t *testing.T) {
	f := newFixture(t)
	var got intake.Report
	f.intake.ProcessReportFunc = func(ctx context.Context, r intake.Report) (*models.Emergency, error) {
		got = r
		return &models.Emergency{ID: "em-2"}, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "call.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF-audio"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("lat", "51.5"))
	require.NoError(t, w.WriteField("lon", "-0.12"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/emergency/report", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("RIFF-audio"), got.Audio)
	assert.Empty(t, got.Text)
	require.NotNil(t, got.Location)
	assert.Equal(t, -0.12, got.Location.Lon)
}

func TestSubmitReport_MultipartRejectsHalfLocation(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("text", "help"))
	require.NoError(t, w.WriteField("lat", "51.5"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/emergency/report", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)
}

func TestSubmitReport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", apperrors.NewInvalidInputError("text or audio is required"), http.StatusBadRequest, "INVALID_INPUT"},
		{"classification", apperrors.NewClassificationFailedError(errors.New("model down")), http.StatusBadGateway, "CLASSIFICATION_FAILED"},
		{"upstream", apperrors.NewUpstreamUnavailableError("speech", errors.New("timeout")), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"database", apperrors.NewDatabaseInsertFailedError(errors.New("pq: secret detail")), http.StatusInternalServerError, "DATABASE_INSERT_FAILED"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.intake.ProcessReportFunc = func(ctx context.Context, r intake.Report) (*models.Emergency, error) {
				return nil, tt.err
			}

			rec := f.do(t, http.MethodPost, "/emergency/report", map[string]string{"text": "x"})
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}

func TestGetEmergency(t *testing.T) {
	f := newFixture(t)
	f.emergencies.GetFunc = func(ctx context.Context, id string) (*models.Emergency, error) {
		if id == "em-1" {
			return &models.Emergency{ID: "em-1"}, nil
		}
		return nil, apperrors.NewNotFoundError("emergency", id)
	}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/emergency/em-1", nil).Code)

	rec := f.do(t, http.MethodGet, "/emergency/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestUpdateEmergency(t *testing.T) {
	f := newFixture(t)
	var statusCall, notesCall []string
	f.emergencies.UpdateStatusFunc = func(ctx context.Context, id, status, notes string) (*models.Emergency, error) {
		statusCall = []string{id, status, notes}
		if status == "ACTIVE" {
			return nil, apperrors.NewInvalidTransitionError("RESOLVED", "ACTIVE")
		}
		return &models.Emergency{ID: id, Status: models.StatusResolved}, nil
	}
	f.emergencies.UpdateNotesFunc = func(ctx context.Context, id, notes string) (*models.Emergency, error) {
		notesCall = []string{id, notes}
		return &models.Emergency{ID: id, Notes: notes}, nil
	}

	rec := f.do(t, http.MethodPut, "/emergency/em-1", map[string]string{"status": "resolved", "notes": "all clear"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"em-1", "resolved", "all clear"}, statusCall)

	rec = f.do(t, http.MethodPut, "/emergency/em-1", map[string]string{"notes": "units on scene"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"em-1", "units on scene"}, notesCall)

	rec = f.do(t, http.MethodPut, "/emergency/em-1", map[string]string{"status": "ACTIVE"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, rec).Error.Code)

	rec = f.do(t, http.MethodPut, "/emergency/em-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUpdates(t *testing.T) {
	f := newFixture(t)
	f.emergencies.StatusHistoryFunc = func(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error) {
		return []models.EmergencyStatusUpdate{{ID: "u-1", EmergencyID: id, OldStatus: models.StatusActive, NewStatus: models.StatusCancelled}}, nil
	}

	rec := f.do(t, http.MethodGet, "/emergency/em-1/updates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Updates []models.EmergencyStatusUpdate `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Updates, 1)
	assert.Equal(t, models.StatusCancelled, body.Updates[0].NewStatus)
}

func TestEmergencyHistory(t *testing.T) {
	f := newFixture(t)
	var got models.HistoryFilter
	f.emergencies.HistoryFunc = func(ctx context.Context, fl models.HistoryFilter) ([]models.Emergency, error) {
		got = fl
		return []models.Emergency{{ID: "em-1"}}, nil
	}

	rec := f.do(t, http.MethodGet, "/emergency/history?from=2024-01-01T00:00:00Z&status=resolved&type=fire&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, got.From)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.From.UTC())
	assert.Nil(t, got.To)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, "fire", got.Type)
	assert.Equal(t, 5, got.Limit)

	for _, q := range []string{"from=yesterday", "status=ON_HOLD", "limit=0"} {
		rec := f.do(t, http.MethodGet, "/emergency/history?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestEmergencyStats(t *testing.T) {
	f := newFixture(t)
	f.emergencies.StatsFunc = func(ctx context.Context, period string) (*models.EmergencyStats, error) {
		if period == "1y" {
			return nil, apperrors.NewInvalidInputError("period must be one of 24h, 7d, 30d")
		}
		return &models.EmergencyStats{Period: period, TotalEmergencies: 3, ByType: map[string]int{"FIRE": 3}}, nil
	}

	rec := f.do(t, http.MethodGet, "/emergency/stats?period=7d", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_emergencies":3`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/emergency/stats?period=1y", nil).Code)
}

func TestSubscribeAndList(t *testing.T) {
	f := newFixture(t)
	f.notifications.SubscribeFunc = func(ctx context.Context, req notification.SubscribeRequest) (*models.NotificationSubscription, error) {
		return &models.NotificationSubscription{ID: "sub-1", SubscriberID: req.SubscriberID, Channel: models.ChannelLive}, nil
	}
	var gotType string
	f.notifications.ListForSubscriberFunc = func(ctx context.Context, subscriberType, subscriberID string) ([]models.Notification, error) {
		gotType = subscriberType
		return []models.Notification{{ID: "n-1", RecipientType: "dispatcher", RecipientID: subscriberID}}, nil
	}

	rec := f.do(t, http.MethodPost, "/notifications/subscribe", map[string]string{
		"subscriber_type": "dispatcher", "subscriber_id": "d-1", "notification_type": "emergency_created", "channel": "live",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sub-1"`)

	rec = f.do(t, http.MethodGet, "/notifications/d-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Empty(t, gotType)

	rec = f.do(t, http.MethodGet, "/notifications/d-1?subscriber_type=dispatcher", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dispatcher", gotType)
}

func TestAcknowledge(t *testing.T) {
	f := newFixture(t)
	f.notifications.AcknowledgeFunc = func(ctx context.Context, id string) (*models.Notification, error) {
		switch id {
		case "n-1":
			return &models.Notification{ID: id, Status: models.NotificationDelivered}, nil
		case "n-failed":
			return nil, apperrors.NewInvalidTransitionError("failed", "delivered")
		}
		return nil, apperrors.NewNotFoundError("notification", id)
	}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/notifications/n-1/ack", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/notifications/n-failed/ack", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/notifications/nope/ack", nil).Code)
}

func TestServiceStatus(t *testing.T) {
	f := newFixture(t)
	var got models.ServiceAvailability
	f.availability.UpsertFunc = func(ctx context.Context, a models.ServiceAvailability) (*models.ServiceAvailability, error) {
		got = a
		return &a, nil
	}
	f.availability.ListFunc = func(ctx context.Context) ([]models.ServiceAvailability, error) {
		return []models.ServiceAvailability{got}, nil
	}

	avg := 7
	rec := f.do(t, http.MethodPut, "/services/fire/status", map[string]interface{}{
		"status": "limited", "available_units": 2, "average_response_time": avg,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fire", got.ServiceType)
	assert.Equal(t, models.ServiceLimited, got.Status)
	require.NotNil(t, got.AverageResponseTime)
	assert.Equal(t, avg, *got.AverageResponseTime)
	assert.False(t, got.UpdatedAt.IsZero())

	rec = f.do(t, http.MethodGet, "/services/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"services"`)
}

func TestLiveConnect(t *testing.T) {
	f := newFixture(t)
	hub := notification.NewHub(config.LiveConfig{SendBuffer: 4, WriteTimeout: 1000, PingInterval: 60000}, logger.NewTestLogger(t))
	t.Cleanup(hub.Close)
	f.notifications.ConnectFunc = func(clientID string, conn notification.Conn) (func(), error) {
		return hub.Connect(clientID, conn), nil
	}

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dispatcher-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("dispatcher-1") }, time.Second, 5*time.Millisecond)
	require.True(t, hub.Push("dispatcher-1", []byte(`{"type":"emergency_created"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"emergency_created"}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !hub.Connected("dispatcher-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestLiveConnect_Rejected(t *testing.T) {
	f := newFixture(t)
	f.notifications.ConnectFunc = func(clientID string, conn notification.Conn) (func(), error) {
		return nil, apperrors.NewInvalidInputError("live channel is not enabled")
	}

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/d-1", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}
