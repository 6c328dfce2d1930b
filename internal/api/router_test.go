package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ev-monitor/backend/internal/db/models"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/services"
	"github.com/ev-monitor/backend/internal/testutil"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	cfg := testutil.NewTestConfig()
	logger := testutil.NewTestLogger(t)
	database := testutil.NewTestDB(t)

	provider := services.NewServiceProvider(logger, cfg, database)
	require.NoError(t, provider.Initialize(context.Background()))
	t.Cleanup(func() { _ = provider.Shutdown() })

	router := NewRouter(cfg, logger, database, provider)
	router.SetupRoutes()
	return router
}

type recordResponse struct {
	Band    string `json:"band"`
	AlertID *uint  `json:"alert_id"`
}

func TestRouter_Health(t *testing.T) {
	ts := testutil.NewTestServer(t, newTestRouter(t).GetEngine())

	resp := ts.ExecuteRequest(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	testutil.ParseResponse(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["stream_clients"])
}

func TestRouter_AlertLifecycle(t *testing.T) {
	ts := testutil.NewTestServer(t, newTestRouter(t).GetEngine())

	resp := ts.ExecuteRequest(http.MethodPost, "/api/v1/sensors/readings", map[string]interface{}{
		"sensor_type": "current",
		"value":       19.5,
		"device_id":   "charger-01",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var recorded recordResponse
	testutil.ParseResponse(t, resp, &recorded)
	assert.Equal(t, "critical", recorded.Band)
	require.NotNil(t, recorded.AlertID)
	alertPath := fmt.Sprintf("/api/v1/alerts/%d", *recorded.AlertID)

	t.Run("Should list and filter alerts", func(t *testing.T) {
		var page utils.PaginatedResponse[models.Alert]
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts?status=new&type=overcurrent", nil), &page)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 20, page.PerPage)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Abnormal current: 19.5A", page.Items[0].Message)

		today := time.Now().UTC().Format("2006-01-02")
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts?end_date="+today, nil), &page)
		assert.Equal(t, 1, page.Total)

		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts?status=resolved", nil), &page)
		assert.Equal(t, 0, page.Total)
		assert.Empty(t, page.Items)
	})

	t.Run("Should reject malformed filters", func(t *testing.T) {
		for _, query := range []string{
			"status=closed",
			"type=flood",
			"start_date=10/06/2024",
			"start_date=2024-06-10&end_date=2024-06-01",
		} {
			resp := ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts?"+query, nil)
			assert.Equal(t, http.StatusBadRequest, resp.Code, query)
		}
	})

	t.Run("Should move the alert through its lifecycle", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPut, alertPath, map[string]string{
			"status":     "acknowledged",
			"handled_by": "operator",
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var updated struct {
			Alert       models.Alert   `json:"alert"`
			CountsDelta map[string]int `json:"counts_delta"`
		}
		testutil.ParseResponse(t, resp, &updated)
		assert.Equal(t, "acknowledged", updated.Alert.Status)
		require.NotNil(t, updated.Alert.HandledBy)
		assert.Equal(t, "operator", *updated.Alert.HandledBy)
		assert.Equal(t, map[string]int{"new": -1, "acknowledged": 1}, updated.CountsDelta)

		resp = ts.ExecuteRequest(http.MethodPut, alertPath, map[string]string{"status": "new"})
		assert.Equal(t, http.StatusConflict, resp.Code)
		var conflict utils.ErrorResponse
		testutil.ParseResponse(t, resp, &conflict)
		assert.Equal(t, "transition_not_allowed", conflict.Code)

		resp = ts.ExecuteRequest(http.MethodPut, alertPath, map[string]string{"status": "closed"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)

		resp = ts.ExecuteRequest(http.MethodPut, alertPath, map[string]string{"status": "resolved"})
		require.Equal(t, http.StatusOK, resp.Code)
		testutil.ParseResponse(t, resp, &updated)
		assert.NotNil(t, updated.Alert.ResolvedAt)

		var active []models.Alert
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts/active", nil), &active)
		assert.Empty(t, active)
	})

	t.Run("Should report statistics", func(t *testing.T) {
		var stats services.AlertStats
		resp := ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts/stats?days=3", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		testutil.ParseResponse(t, resp, &stats)
		assert.Equal(t, 1, stats.Counts.Total)
		assert.Equal(t, 1, stats.Counts.Resolved)
		assert.Len(t, stats.ByDate, 1)

		resp = ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts/stats?days=zero", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("Should delete the alert", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, ts.ExecuteRequest(http.MethodDelete, alertPath, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.ExecuteRequest(http.MethodGet, alertPath, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.ExecuteRequest(http.MethodDelete, alertPath, nil).Code)
		assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodGet, "/api/v1/alerts/abc", nil).Code)
	})
}

func TestRouter_CreateAlert(t *testing.T) {
	ts := testutil.NewTestServer(t, newTestRouter(t).GetEngine())

	resp := ts.ExecuteRequest(http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"alert_type":  "fire",
		"message":     "Flames reported at bay 2",
		"source_type": "manual",
		"details":     map[string]string{"reporter": "guard"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var alert models.Alert
	testutil.ParseResponse(t, resp, &alert)
	assert.Equal(t, "new", alert.Status)
	assert.Equal(t, 3, alert.Severity)
	assert.JSONEq(t, `{"reporter":"guard"}`, string(alert.Details))

	invalid := map[string]interface{}{
		"unknown type":   map[string]interface{}{"alert_type": "flood", "message": "x"},
		"missing text":   map[string]interface{}{"alert_type": "fire"},
		"severity range": map[string]interface{}{"alert_type": "fire", "message": "x", "severity": 9},
		"malformed body": `{"alert_type":`,
	}
	for name, body := range invalid {
		t.Run("Should reject "+name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodPost, "/api/v1/alerts", body).Code)
		})
	}
}

func TestRouter_Sensors(t *testing.T) {
	ts := testutil.NewTestServer(t, newTestRouter(t).GetEngine())

	now := time.Now().UTC()
	for _, r := range []map[string]interface{}{
		{"sensor_type": "temperature", "value": 31, "device_id": "charger-01", "timestamp": now.Add(-time.Hour)},
		{"sensor_type": "temperature", "value": 47, "device_id": "charger-01", "timestamp": now.Add(-time.Minute)},
		{"sensor_type": "humidity", "value": 55, "device_id": "charger-02"},
	} {
		resp := ts.ExecuteRequest(http.MethodPost, "/api/v1/sensors/readings", r)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}

	t.Run("Should reject invalid readings", func(t *testing.T) {
		for _, body := range []interface{}{
			map[string]interface{}{"sensor_type": "infrared", "value": 1, "device_id": "d"},
			map[string]interface{}{"sensor_type": "smoke", "device_id": "d"},
			map[string]interface{}{"sensor_type": "smoke", "value": 1},
		} {
			assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodPost, "/api/v1/sensors/readings", body).Code)
		}
	})

	t.Run("Should query history", func(t *testing.T) {
		var data []models.SensorData
		resp := ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/data?type=temperature", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		testutil.ParseResponse(t, resp, &data)
		require.Len(t, data, 2)
		assert.Equal(t, 47.0, data[0].Value)
		assert.Equal(t, "warning", data[0].Band)

		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/data?device_id=charger-02", nil), &data)
		assert.Len(t, data, 1)

		assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/data?type=infrared", nil).Code)
		assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/data?start_time=yesterday", nil).Code)
	})

	t.Run("Should return latest readings and a summary", func(t *testing.T) {
		var latest map[string]struct {
			Band string `json:"band"`
		}
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/latest", nil), &latest)
		assert.Equal(t, "warning", latest["temperature"].Band)
		assert.Contains(t, latest, "humidity")

		var summary services.SensorSummary
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/summary?device_id=charger-01", nil), &summary)
		assert.InDelta(t, 39.0, summary.Averages[monitoring.SensorTemperature], 1e-9)
		assert.NotContains(t, summary.Bands, monitoring.SensorHumidity)
	})

	t.Run("Should classify and update thresholds", func(t *testing.T) {
		var classified map[string]interface{}
		resp := ts.ExecuteRequest(http.MethodPost, "/api/v1/sensors/classify", map[string]interface{}{"sensor_type": "current", "value": 15})
		require.Equal(t, http.StatusOK, resp.Code)
		testutil.ParseResponse(t, resp, &classified)
		assert.Equal(t, "warning", classified["band"])

		resp = ts.ExecuteRequest(http.MethodPut, "/api/v1/sensors/thresholds", `{"current":{"warning":16}}`)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodPost, "/api/v1/sensors/classify", map[string]interface{}{"sensor_type": "current", "value": 15}), &classified)
		assert.Equal(t, "normal", classified["band"])

		var thresholds map[string]map[string]float64
		testutil.ParseResponse(t, ts.ExecuteRequest(http.MethodGet, "/api/v1/sensors/thresholds", nil), &thresholds)
		assert.Equal(t, 16.0, thresholds["current"]["warning"])

		assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodPut, "/api/v1/sensors/thresholds", `{"current":{"critical":99}}`).Code)
		assert.Equal(t, http.StatusBadRequest, ts.ExecuteRequest(http.MethodPut, "/api/v1/sensors/thresholds", `{}`).Code)
	})
}

func TestRouter_AlertStream(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router.GetEngine())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/alerts?topic=created"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hub := router.serviceProvider.GetAlertHub()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts := testutil.NewTestServer(t, router.GetEngine())
	resp := ts.ExecuteRequest(http.MethodPost, "/api/v1/alerts", map[string]interface{}{"alert_type": "smoke", "message": "Smoke detected"})
	require.Equal(t, http.StatusCreated, resp.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var message services.HubMessage
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "created", message.Topic)
}
