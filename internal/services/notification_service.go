package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db/models"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// webhookPayload is the body posted to the alert webhook
type webhookPayload struct {
	ID         uint        `json:"id"`
	AlertType  string      `json:"alert_type"`
	Message    string      `json:"message"`
	SourceType string      `json:"source_type"`
	SourceID   string      `json:"source_id"`
	Location   string      `json:"location"`
	Severity   int         `json:"severity"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	Details    models.JSON `json:"details"`
}

// smsRequest is the body posted to the SMS gateway, once per recipient
type smsRequest struct {
	APIKey  string `json:"api_key"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// NotificationService delivers new alerts to the configured channels.
// Delivery failures are logged and never returned.
type NotificationService struct {
	logger     *utils.Logger
	config     *config.NotificationConfig
	httpClient *resty.Client
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg *config.NotificationConfig, logger *utils.Logger) *NotificationService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &NotificationService{
		logger:     logger.Named("notification_service"),
		config:     cfg,
		httpClient: client,
	}
}

// NotifyAlert sends alert to every channel whose severity floor it reaches
func (s *NotificationService) NotifyAlert(ctx context.Context, alert *models.Alert) {
	if s.config.Webhook.Enabled && alert.Severity >= s.config.WebhookMinSeverity {
		if err := s.sendWebhook(ctx, alert); err != nil {
			s.logger.Error("Failed to send webhook notification",
				zap.Uint("alert_id", alert.ID),
				zap.String("url", s.config.Webhook.URL),
				zap.Error(err))
		}
	}

	if s.config.SMS.Enabled && alert.Severity >= s.config.SMS.MinSeverity {
		s.sendSMS(ctx, alert)
	}
}

func (s *NotificationService) sendWebhook(ctx context.Context, alert *models.Alert) error {
	payload := webhookPayload{
		ID:         alert.ID,
		AlertType:  alert.AlertType,
		Message:    alert.Message,
		SourceType: alert.SourceType,
		SourceID:   alert.SourceID,
		Location:   alert.Location,
		Severity:   alert.Severity,
		Status:     alert.Status,
		CreatedAt:  alert.CreatedAt,
		Details:    alert.Details,
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeaders(s.config.Webhook.Headers).
		SetBody(payload).
		Post(s.config.Webhook.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	switch resp.StatusCode() {
	case 200, 201, 202:
		s.logger.Info("Webhook notification sent", zap.Uint("alert_id", alert.ID))
		return nil
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
}

func (s *NotificationService) sendSMS(ctx context.Context, alert *models.Alert) {
	recipients := s.config.SMS.Recipients
	if len(recipients) == 0 {
		s.logger.Warn("Cannot send SMS notification: no recipients configured")
		return
	}

	message := fmt.Sprintf("Alert: %s - %s (severity: %d/5)", alert.AlertType, alert.Message, alert.Severity)

	for _, recipient := range recipients {
		resp, err := s.httpClient.R().
			SetContext(ctx).
			SetBody(smsRequest{
				APIKey:  s.config.SMS.APIKey,
				To:      recipient,
				Message: message,
			}).
			Post(s.config.SMS.APIURL)
		if err != nil {
			s.logger.Error("Failed to send SMS notification",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}

		if resp.StatusCode() != 200 {
			s.logger.Warn("SMS gateway rejected notification",
				zap.String("recipient", recipient),
				zap.Int("status_code", resp.StatusCode()))
			continue
		}

		s.logger.Info("SMS notification sent", zap.String("recipient", recipient))
	}
}
