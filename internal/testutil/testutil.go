// Package testutil wires the in-memory fixtures shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestLogger returns a logger that writes through t.Log
func NewTestLogger(t testing.TB) *utils.Logger {
	return &utils.Logger{Logger: zaptest.NewLogger(t)}
}

// NewTestConfig returns a configuration suitable for tests
func NewTestConfig() *config.Config {
	thresholds := make(map[string]monitoring.ThresholdSet)
	for sensorType, set := range monitoring.DefaultThresholds() {
		thresholds[string(sensorType)] = set
	}

	return &config.Config{
		Server:   config.ServerConfig{Environment: "test", CORSOrigins: []string{"*"}},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: "file::memory:", AutoMigrate: true},
		Log:      config.LogConfig{Level: "debug", Format: "console"},
		Alerts: config.AlertsConfig{
			TransitionPolicy: string(monitoring.PolicyStrict),
			DefaultPageSize:  20,
			MaxPageSize:      100,
		},
		Sensors: config.SensorsConfig{
			Thresholds:         thresholds,
			HistoryWindowHours: 24,
			HistoryLimit:       500,
		},
		Notification: config.NotificationConfig{
			WebhookMinSeverity: 1,
			SMS:                config.SMSConfig{MinSeverity: 4},
			TimeoutSeconds:     2,
		},
	}
}

// NewTestDB opens a private in-memory sqlite database with every model
// migrated. It is closed when the test ends.
func NewTestDB(t testing.TB) *db.Database {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err, "Failed to create in-memory database")

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// each connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)

	database := db.Wrap(gormDB, NewTestLogger(t))
	require.NoError(t, database.AutoMigrate(), "Failed to migrate database")

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return database
}

// TestServer executes requests against a gin engine
type TestServer struct {
	t      testing.TB
	Router *gin.Engine
}

// NewTestServer wraps router for request helpers
func NewTestServer(t testing.TB, router *gin.Engine) *TestServer {
	gin.SetMode(gin.TestMode)
	return &TestServer{t: t, Router: router}
}

// ExecuteRequest executes a test request and returns the response
func (s *TestServer) ExecuteRequest(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	var reqBody []byte
	if body != nil {
		var err error
		if raw, ok := body.(string); ok {
			reqBody = []byte(raw)
		} else {
			reqBody, err = json.Marshal(body)
			require.NoError(s.t, err, "Failed to marshal request body")
		}
	}

	req, err := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	require.NoError(s.t, err, "Failed to create request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)
	return resp
}

// ParseResponse parses the JSON response into target
func ParseResponse(t testing.TB, response *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	err := json.Unmarshal(response.Body.Bytes(), target)
	require.NoError(t, err, "Failed to parse response body: %s", response.Body.String())
}
