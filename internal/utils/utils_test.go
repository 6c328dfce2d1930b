package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestProcessError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{"not found", fmt.Errorf("alert 3: %w", ErrNotFound), http.StatusNotFound, "not_found", ""},
		{"conflict with code", NewErrorWithCode(fmt.Errorf("%w: new -> resolved", ErrConflict), "transition_not_allowed"), http.StatusConflict, "conflict", "transition_not_allowed"},
		{"validation", fmt.Errorf("%w: bad status", ErrValidation), http.StatusBadRequest, "validation_error", ""},
		{"bad request", ErrBadRequest, http.StatusBadRequest, "bad_request", ""},
		{"unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_server_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := processError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleError_WritesJSON(t *testing.T) {
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/v1/alerts/9", nil)

	HandleError(ctx, fmt.Errorf("alert 9: %w", ErrNotFound), NewNopLogger())

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
	assert.Contains(t, resp.Message, "alert 9")
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	page := Paginate(items, PaginationRequest{Page: 2, Limit: 3})
	assert.Equal(t, []int{4, 5, 6}, page.Items)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.CurrentPage)

	last := Paginate(items, PaginationRequest{Page: 3, Limit: 3})
	assert.Equal(t, []int{7}, last.Items)

	beyond := Paginate(items, PaginationRequest{Page: 9, Limit: 3})
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
	assert.Equal(t, 7, beyond.Total)

	empty := Paginate([]int{}, PaginationRequest{Page: 1, Limit: 20})
	assert.Equal(t, 0, empty.Pages)
}

func TestGetPaginationFromContext(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 10},
		{"page=3&per_page=5", 3, 5},
		{"page=0&per_page=-1", 1, 10},
		{"page=abc&per_page=1000", 1, 50},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
			ctx.Request = httptest.NewRequest(http.MethodGet, "/alerts?"+tt.query, nil)

			p := GetPaginationFromContext(ctx, 10, 50)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestSchemaRegistry(t *testing.T) {
	schema, err := NewJSONSchemaBuilder("reading").
		AddEnumProperty("sensor_type", []string{"current", "voltage"}, true).
		AddNumberProperty("value", true).
		AddStringProperty("device_id", false).
		AddDateTimeProperty("timestamp", false).
		Build()
	require.NoError(t, err)

	registry := NewSchemaRegistry()
	require.NoError(t, registry.Register("reading", schema))

	assert.NoError(t, registry.Validate("reading", []byte(`{"sensor_type":"current","value":19.5,"timestamp":"2024-06-01T10:00:00Z"}`)))

	err = registry.Validate("reading", []byte(`{"sensor_type":"infrared","value":"hot"}`))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "sensor_type")

	err = registry.Validate("reading", []byte(`{"value":1}`))
	assert.ErrorIs(t, err, ErrValidation)

	err = registry.Validate("reading", []byte(`{not json`))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Error(t, registry.Validate("missing", []byte(`{}`)))
}

type statusBody struct {
	Status     string `json:"status" binding:"required,alert_status"`
	SensorType string `json:"sensor_type" binding:"omitempty,sensor_type"`
}

func TestHandleValidationErrors_DomainTags(t *testing.T) {
	RegisterValidators()
	RegisterValidators()

	router := gin.New()
	router.POST("/", func(c *gin.Context) {
		var body statusBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationErrors(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	do := func(payload string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do(`{"status":"in_progress","sensor_type":"smoke"}`).Code)

	w := do(`{"status":"closed","sensor_type":"infrared"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ValidationErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "status", resp.Errors[0].Field)
	assert.Equal(t, "Unknown alert status", resp.Errors[0].Message)
	assert.Equal(t, "sensor_type", resp.Errors[1].Field)

	w = do(`{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "handled_by", toSnakeCase("HandledBy"))
	assert.Equal(t, "sensor_type", toSnakeCase("sensor_type"))
	assert.Equal(t, "status", toSnakeCase("status"))
}
