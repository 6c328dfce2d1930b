package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Alerts       AlertsConfig       `mapstructure:"alerts"`
	Sensors      SensorsConfig      `mapstructure:"sensors"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	IdleTimeout  int      `mapstructure:"idle_timeout"`
	Environment  string   `mapstructure:"environment"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	TimeZone    string `mapstructure:"timezone"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled        bool        `mapstructure:"enabled"`
	Brokers        string      `mapstructure:"brokers"`
	ConsumerGroup  string      `mapstructure:"consumer_group"`
	SecurityEnable bool        `mapstructure:"security_enable"`
	SecurityUser   string      `mapstructure:"security_user"`
	SecurityPass   string      `mapstructure:"security_pass"`
	Topics         KafkaTopics `mapstructure:"topics"`
}

// KafkaTopics names the topics the service reads and writes
type KafkaTopics struct {
	SensorReadings string `mapstructure:"sensor_readings"`
	AlertEvents    string `mapstructure:"alert_events"`
}

// RedisConfig holds the latest-reading cache configuration
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	LatestTTL int    `mapstructure:"latest_ttl"` // seconds, 0 keeps entries forever
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// AlertsConfig controls alert lifecycle handling and listing
type AlertsConfig struct {
	TransitionPolicy string `mapstructure:"transition_policy"`
	DefaultPageSize  int    `mapstructure:"default_page_size"`
	MaxPageSize      int    `mapstructure:"max_page_size"`
}

// SensorsConfig holds thresholds and history defaults
type SensorsConfig struct {
	Thresholds         map[string]monitoring.ThresholdSet `mapstructure:"thresholds"`
	HistoryWindowHours int                                `mapstructure:"history_window_hours"`
	HistoryLimit       int                                `mapstructure:"history_limit"`
}

// NotificationConfig holds outbound alert delivery configuration
type NotificationConfig struct {
	Webhook            WebhookConfig `mapstructure:"webhook"`
	WebhookMinSeverity int           `mapstructure:"webhook_min_severity"`
	SMS                SMSConfig     `mapstructure:"sms"`
	TimeoutSeconds     int           `mapstructure:"timeout_seconds"`
}

// WebhookConfig configures the alert webhook
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// SMSConfig configures the SMS gateway
type SMSConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	APIURL      string   `mapstructure:"api_url"`
	APIKey      string   `mapstructure:"api_key"`
	Recipients  []string `mapstructure:"recipients"`
	MinSeverity int      `mapstructure:"min_severity"`
}

// LoadConfig loads the application configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default configuration file path if not provided
	if configPath == "" {
		configPath = "./config"
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("EV_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)  // seconds
	v.SetDefault("server.write_timeout", 15) // seconds
	v.SetDefault("server.idle_timeout", 60)  // seconds
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "ev_monitor.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "ev_monitor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.auto_migrate", true)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "kafka:9092")
	v.SetDefault("kafka.consumer_group", "ev-monitor")
	v.SetDefault("kafka.security_enable", false)
	v.SetDefault("kafka.topics.sensor_readings", "ev.sensor.readings")
	v.SetDefault("kafka.topics.alert_events", "ev.alert.events")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.latest_ttl", 3600)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	// Alert defaults
	v.SetDefault("alerts.transition_policy", string(monitoring.PolicyStrict))
	v.SetDefault("alerts.default_page_size", 20)
	v.SetDefault("alerts.max_page_size", 100)

	// Sensor defaults
	for sensorType, set := range monitoring.DefaultThresholds() {
		prefix := "sensors.thresholds." + string(sensorType)
		v.SetDefault(prefix+".min", set.Min)
		v.SetDefault(prefix+".max", set.Max)
		v.SetDefault(prefix+".warning", set.Warning)
		v.SetDefault(prefix+".critical", set.Critical)
	}
	v.SetDefault("sensors.history_window_hours", 24)
	v.SetDefault("sensors.history_limit", 500)

	// Notification defaults
	v.SetDefault("notification.webhook.enabled", false)
	v.SetDefault("notification.webhook_min_severity", 1)
	v.SetDefault("notification.sms.enabled", false)
	v.SetDefault("notification.sms.min_severity", 4)
	v.SetDefault("notification.timeout_seconds", 10)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "sqlite":
	case "postgres":
		if config.Database.Password == "" {
			dbPassword := os.Getenv("EV_MONITOR_DATABASE_PASSWORD")
			if dbPassword == "" {
				if config.Server.Environment != "development" {
					return fmt.Errorf("database password is required in non-development environments")
				}
			} else {
				config.Database.Password = dbPassword
			}
		}
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if !monitoring.Policy(config.Alerts.TransitionPolicy).Valid() {
		return fmt.Errorf("alerts.transition_policy must be %q or %q, got %q",
			monitoring.PolicyStrict, monitoring.PolicyPermissive, config.Alerts.TransitionPolicy)
	}

	if config.Alerts.DefaultPageSize <= 0 || config.Alerts.MaxPageSize < config.Alerts.DefaultPageSize {
		return fmt.Errorf("invalid alert page sizes: default %d, max %d",
			config.Alerts.DefaultPageSize, config.Alerts.MaxPageSize)
	}

	if _, err := config.Sensors.ThresholdMap(); err != nil {
		return fmt.Errorf("invalid sensor thresholds: %w", err)
	}

	return nil
}

// ThresholdMap converts the configured thresholds into the core mapping.
// Sensor types missing from the configuration fall back to the defaults.
func (c *SensorsConfig) ThresholdMap() (monitoring.Thresholds, error) {
	thresholds := monitoring.DefaultThresholds()
	for name, set := range c.Thresholds {
		sensorType, err := monitoring.ParseSensorType(name)
		if err != nil {
			return nil, err
		}
		thresholds[sensorType] = set
	}

	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return thresholds, nil
}

// Policy returns the configured transition policy
func (c *AlertsConfig) Policy() monitoring.Policy {
	return monitoring.Policy(c.TransitionPolicy)
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.TimeZone)
}

// IsProduction returns true if the environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}
