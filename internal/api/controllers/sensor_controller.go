package controllers

import (
	"net/http"
	"time"

	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/services"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// SensorDataRequest defines the query parameters for sensor history
type SensorDataRequest struct {
	SensorType string    `form:"type" json:"type" binding:"omitempty,sensor_type"`
	DeviceID   string    `form:"device_id" json:"device_id"`
	Start      time.Time `form:"start_time" json:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	End        time.Time `form:"end_time" json:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit      int       `form:"limit" json:"limit" binding:"omitempty,min=1"`
}

// RecordReadingRequest defines the request body for submitting a reading
type RecordReadingRequest struct {
	SensorType string     `json:"sensor_type" binding:"required,sensor_type"`
	Value      *float64   `json:"value" binding:"required"`
	DeviceID   string     `json:"device_id" binding:"required"`
	Location   string     `json:"location"`
	Unit       string     `json:"unit"`
	Timestamp  *time.Time `json:"timestamp"`
}

// ClassifyRequest defines the request body for a dry-run classification
type ClassifyRequest struct {
	SensorType string   `json:"sensor_type" binding:"required,sensor_type"`
	Value      *float64 `json:"value" binding:"required"`
}

// ClassifyResponse is the band a value would fall into
type ClassifyResponse struct {
	SensorType monitoring.SensorType   `json:"sensor_type"`
	Value      float64                 `json:"value"`
	Band       monitoring.Band         `json:"band"`
	Thresholds monitoring.ThresholdSet `json:"thresholds"`
}

// SensorController handles sensor requests
type SensorController struct {
	sensorService *services.SensorService
	logger        *utils.Logger
}

// NewSensorController creates a new sensor controller
func NewSensorController(sensorService *services.SensorService, logger *utils.Logger) *SensorController {
	return &SensorController{
		sensorService: sensorService,
		logger:        logger.Named("sensor_controller"),
	}
}

// RegisterRoutes registers the sensor routes
func (c *SensorController) RegisterRoutes(router *gin.RouterGroup) {
	sensors := router.Group("/sensors")
	{
		sensors.GET("/data", c.GetSensorData)
		sensors.GET("/latest", c.GetLatestReadings)
		sensors.GET("/summary", c.GetSummary)
		sensors.POST("/readings", c.RecordReading)
		sensors.POST("/classify", c.Classify)
		sensors.GET("/thresholds", c.GetThresholds)
		sensors.PUT("/thresholds", c.UpdateThresholds)
	}
}

// GetSensorData returns stored readings, newest first
// @Summary Sensor history
// @Tags sensors
// @Produce json
// @Param type query string false "Sensor type"
// @Param device_id query string false "Device ID"
// @Param start_time query string false "Start time (RFC3339)"
// @Param end_time query string false "End time (RFC3339)"
// @Param limit query int false "Maximum rows"
// @Success 200 {array} models.SensorData
// @Failure 400 {object} utils.ErrorResponse
// @Router /sensors/data [get]
func (c *SensorController) GetSensorData(ctx *gin.Context) {
	var req SensorDataRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	data, err := c.sensorService.History(ctx.Request.Context(), services.HistoryQuery{
		SensorType: req.SensorType,
		DeviceID:   req.DeviceID,
		Start:      req.Start,
		End:        req.End,
		Limit:      req.Limit,
	})
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, data)
}

// GetLatestReadings returns the newest reading of every sensor type
// @Summary Latest readings
// @Tags sensors
// @Produce json
// @Success 200 {object} map[string]cache.LatestReading
// @Router /sensors/latest [get]
func (c *SensorController) GetLatestReadings(ctx *gin.Context) {
	latest, err := c.sensorService.Latest(ctx.Request.Context())
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, latest)
}

// GetSummary returns band counts and averages over the history window
// @Summary Sensor summary
// @Tags sensors
// @Produce json
// @Param device_id query string false "Device ID"
// @Success 200 {object} services.SensorSummary
// @Router /sensors/summary [get]
func (c *SensorController) GetSummary(ctx *gin.Context) {
	summary, err := c.sensorService.Summary(ctx.Request.Context(), ctx.Query("device_id"))
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, summary)
}

// RecordReading stores a reading and raises an alert when it calls for one
// @Summary Submit reading
// @Tags sensors
// @Accept json
// @Produce json
// @Param reading body RecordReadingRequest true "Reading"
// @Success 201 {object} services.RecordResult
// @Failure 400 {object} utils.ErrorResponse
// @Router /sensors/readings [post]
func (c *SensorController) RecordReading(ctx *gin.Context) {
	var req RecordReadingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	reading := monitoring.SensorReading{
		SensorType: monitoring.SensorType(req.SensorType),
		Value:      *req.Value,
		Unit:       req.Unit,
		DeviceID:   req.DeviceID,
		Location:   req.Location,
	}
	if req.Timestamp != nil {
		reading.Timestamp = *req.Timestamp
	}

	result, err := c.sensorService.Record(ctx.Request.Context(), reading)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusCreated, result)
}

// Classify reports the band a value falls into without storing anything
// @Summary Classify value
// @Tags sensors
// @Accept json
// @Produce json
// @Param request body ClassifyRequest true "Value to classify"
// @Success 200 {object} ClassifyResponse
// @Failure 400 {object} utils.ErrorResponse
// @Router /sensors/classify [post]
func (c *SensorController) Classify(ctx *gin.Context) {
	var req ClassifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	band, set, err := c.sensorService.Classify(req.SensorType, *req.Value)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, ClassifyResponse{
		SensorType: monitoring.SensorType(req.SensorType),
		Value:      *req.Value,
		Band:       band,
		Thresholds: set,
	})
}

// GetThresholds returns the thresholds in effect
// @Summary Get thresholds
// @Tags sensors
// @Produce json
// @Success 200 {object} monitoring.Thresholds
// @Router /sensors/thresholds [get]
func (c *SensorController) GetThresholds(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.sensorService.Thresholds())
}

// UpdateThresholds applies a partial update keyed by sensor type
// @Summary Update thresholds
// @Tags sensors
// @Accept json
// @Produce json
// @Param patches body map[string]monitoring.ThresholdPatch true "Per-type changes"
// @Success 200 {object} monitoring.Thresholds
// @Failure 400 {object} utils.ErrorResponse
// @Router /sensors/thresholds [put]
func (c *SensorController) UpdateThresholds(ctx *gin.Context) {
	var patches map[monitoring.SensorType]monitoring.ThresholdPatch
	if err := ctx.ShouldBindJSON(&patches); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	updated, err := c.sensorService.UpdateThresholds(ctx.Request.Context(), patches)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, updated)
}
