package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/services"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListAlertsRequest defines the query parameters for listing alerts
type ListAlertsRequest struct {
	Status    string    `form:"status" json:"status" binding:"omitempty,alert_status"`
	AlertType string    `form:"type" json:"type" binding:"omitempty,alert_type"`
	StartDate time.Time `form:"start_date" json:"start_date" time_format:"2006-01-02" time_utc:"1"`
	EndDate   time.Time `form:"end_date" json:"end_date" time_format:"2006-01-02" time_utc:"1"`
}

// criteria converts the query into filter criteria. A single date bound
// leaves the other side open.
func (r ListAlertsRequest) criteria() monitoring.Criteria {
	var c monitoring.Criteria
	if r.Status != "" {
		status := monitoring.AlertStatus(r.Status)
		c.Status = &status
	}
	if r.AlertType != "" {
		alertType := monitoring.AlertType(r.AlertType)
		c.AlertType = &alertType
	}
	if !r.StartDate.IsZero() || !r.EndDate.IsZero() {
		end := r.EndDate
		if end.IsZero() {
			end = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
		}
		c.DateRange = &monitoring.DateRange{Start: r.StartDate, End: end}
	}
	return c
}

// CreateAlertRequest defines the request body for raising an alert manually
type CreateAlertRequest struct {
	AlertType  string                 `json:"alert_type" binding:"required,alert_type"`
	Message    string                 `json:"message" binding:"required"`
	SourceType string                 `json:"source_type"`
	SourceID   string                 `json:"source_id"`
	Location   string                 `json:"location"`
	Severity   int                    `json:"severity" binding:"omitempty,min=1,max=5"`
	Details    map[string]interface{} `json:"details"`
}

// UpdateAlertRequest defines the request body for changing an alert's status
type UpdateAlertRequest struct {
	Status       string  `json:"status" binding:"omitempty,alert_status"`
	HandledBy    *string `json:"handled_by"`
	HandlerNotes *string `json:"handler_notes"`
}

// UpdateAlertResponse carries the updated alert and the change it made to
// the status counts
type UpdateAlertResponse struct {
	Alert       interface{}            `json:"alert"`
	CountsDelta monitoring.CountsDelta `json:"counts_delta"`
}

// AlertController handles alert requests
type AlertController struct {
	alertService *services.AlertService
	hub          *services.AlertHub
	config       *config.AlertsConfig
	logger       *utils.Logger
}

// NewAlertController creates a new alert controller
func NewAlertController(
	alertService *services.AlertService,
	hub *services.AlertHub,
	cfg *config.AlertsConfig,
	logger *utils.Logger,
) *AlertController {
	return &AlertController{
		alertService: alertService,
		hub:          hub,
		config:       cfg,
		logger:       logger.Named("alert_controller"),
	}
}

// RegisterRoutes registers the alert routes
func (c *AlertController) RegisterRoutes(router *gin.RouterGroup) {
	alerts := router.Group("/alerts")
	{
		alerts.GET("", c.ListAlerts)
		alerts.POST("", c.CreateAlert)
		alerts.GET("/active", c.GetActiveAlerts)
		alerts.GET("/stats", c.GetAlertStats)
		alerts.GET("/:id", c.GetAlert)
		alerts.PUT("/:id", c.UpdateAlert)
		alerts.DELETE("/:id", c.DeleteAlert)
	}

	if c.hub != nil {
		router.GET("/ws/alerts", c.StreamAlerts)
	}
}

// ListAlerts returns a filtered page of alerts
// @Summary List alerts
// @Tags alerts
// @Produce json
// @Param status query string false "Alert status"
// @Param type query string false "Alert type"
// @Param start_date query string false "First day (YYYY-MM-DD)"
// @Param end_date query string false "Last day (YYYY-MM-DD), inclusive"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} utils.PaginatedResponse[models.Alert]
// @Failure 400 {object} utils.ErrorResponse
// @Router /alerts [get]
func (c *AlertController) ListAlerts(ctx *gin.Context) {
	var req ListAlertsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		ctx.JSON(http.StatusBadRequest, utils.ErrorResponse{
			Error:   "bad_request",
			Message: "end_date must not be before start_date",
		})
		return
	}

	page := utils.GetPaginationFromContext(ctx, c.config.DefaultPageSize, c.config.MaxPageSize)

	result, err := c.alertService.List(ctx.Request.Context(), req.criteria(), page)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// CreateAlert raises an alert
// @Summary Create alert
// @Tags alerts
// @Accept json
// @Produce json
// @Param alert body CreateAlertRequest true "Alert"
// @Success 201 {object} models.Alert
// @Failure 400 {object} utils.ErrorResponse
// @Router /alerts [post]
func (c *AlertController) CreateAlert(ctx *gin.Context) {
	var req CreateAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	alert, err := c.alertService.Create(ctx.Request.Context(), monitoring.AlertDraft{
		AlertType:  monitoring.AlertType(req.AlertType),
		Message:    req.Message,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Location:   req.Location,
		Severity:   req.Severity,
		Details:    req.Details,
	})
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusCreated, alert)
}

// GetActiveAlerts returns every alert that is neither resolved nor a false alarm
// @Summary List active alerts
// @Tags alerts
// @Produce json
// @Success 200 {array} models.Alert
// @Router /alerts/active [get]
func (c *AlertController) GetActiveAlerts(ctx *gin.Context) {
	alerts, err := c.alertService.Active(ctx.Request.Context())
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, alerts)
}

// GetAlertStats returns status counts and per-type, per-status and per-day breakdowns
// @Summary Alert statistics
// @Tags alerts
// @Produce json
// @Param days query int false "Days covered by by_date (default 7)"
// @Success 200 {object} services.AlertStats
// @Router /alerts/stats [get]
func (c *AlertController) GetAlertStats(ctx *gin.Context) {
	days := 0
	if raw := ctx.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			ctx.JSON(http.StatusBadRequest, utils.ErrorResponse{
				Error:   "bad_request",
				Message: "days must be a positive integer",
			})
			return
		}
		days = parsed
	}

	stats, err := c.alertService.Stats(ctx.Request.Context(), days)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, stats)
}

// GetAlert returns one alert
// @Summary Get alert
// @Tags alerts
// @Produce json
// @Param id path int true "Alert ID"
// @Success 200 {object} models.Alert
// @Failure 404 {object} utils.ErrorResponse
// @Router /alerts/{id} [get]
func (c *AlertController) GetAlert(ctx *gin.Context) {
	id, ok := alertID(ctx)
	if !ok {
		return
	}

	alert, err := c.alertService.Get(ctx.Request.Context(), id)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, alert)
}

// UpdateAlert changes an alert's status and handler fields
// @Summary Update alert status
// @Tags alerts
// @Accept json
// @Produce json
// @Param id path int true "Alert ID"
// @Param update body UpdateAlertRequest true "Status update"
// @Success 200 {object} UpdateAlertResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse "Transition not allowed"
// @Router /alerts/{id} [put]
func (c *AlertController) UpdateAlert(ctx *gin.Context) {
	id, ok := alertID(ctx)
	if !ok {
		return
	}

	var req UpdateAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	alert, delta, err := c.alertService.UpdateStatus(ctx.Request.Context(), id, services.StatusUpdate{
		Status:       req.Status,
		HandledBy:    req.HandledBy,
		HandlerNotes: req.HandlerNotes,
	})
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	if delta == nil {
		delta = monitoring.CountsDelta{}
	}
	ctx.JSON(http.StatusOK, UpdateAlertResponse{Alert: alert, CountsDelta: delta})
}

// DeleteAlert removes an alert
// @Summary Delete alert
// @Tags alerts
// @Param id path int true "Alert ID"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Router /alerts/{id} [delete]
func (c *AlertController) DeleteAlert(ctx *gin.Context) {
	id, ok := alertID(ctx)
	if !ok {
		return
	}

	if err := c.alertService.Delete(ctx.Request.Context(), id); err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// StreamAlerts upgrades the connection and streams alert events
// @Summary Alert event stream (websocket)
// @Tags alerts
// @Param topic query string false "Event action to receive; repeatable"
// @Router /ws/alerts [get]
func (c *AlertController) StreamAlerts(ctx *gin.Context) {
	if err := c.hub.ServeWS(ctx.Writer, ctx.Request); err != nil {
		c.logger.Warn("Websocket upgrade failed", zap.Error(err))
	}
}

func alertID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, utils.ErrorResponse{
			Error:   "bad_request",
			Message: "Invalid alert ID",
		})
		return 0, false
	}
	return uint(id), true
}
