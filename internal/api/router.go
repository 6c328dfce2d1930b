package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ev-monitor/backend/internal/api/controllers"
	"github.com/ev-monitor/backend/internal/api/middleware"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db"
	"github.com/ev-monitor/backend/internal/services"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Router manages the API routes and controllers
type Router struct {
	engine           *gin.Engine
	logger           *utils.Logger
	config           *config.Config
	serviceProvider  *services.ServiceProvider
	db               *db.Database
	apiV1            *gin.RouterGroup
	alertController  *controllers.AlertController
	sensorController *controllers.SensorController
}

// NewRouter creates a new Router instance
func NewRouter(
	config *config.Config,
	logger *utils.Logger,
	db *db.Database,
	serviceProvider *services.ServiceProvider,
) *Router {
	// Set Gin mode based on environment
	if config.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	utils.RegisterValidators()

	engine := gin.New()

	// Use the logger and recovery middleware
	engine.Use(gin.Recovery())
	engine.Use(middleware.LoggingMiddleware(logger))

	// Configure CORS
	engine.Use(cors.New(corsConfig(config.Server.CORSOrigins)))

	return &Router{
		engine:          engine,
		logger:          logger.Named("router"),
		config:          config,
		serviceProvider: serviceProvider,
		db:              db,
	}
}

func corsConfig(origins []string) cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || lo.Contains(origins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Origin"}
	return corsConfig
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.health)

	// All main API routes are under /api/v1
	r.apiV1 = r.engine.Group("/api/v1")

	r.alertController = controllers.NewAlertController(
		r.serviceProvider.GetAlertService(),
		r.serviceProvider.GetAlertHub(),
		&r.config.Alerts,
		r.logger,
	)
	r.sensorController = controllers.NewSensorController(r.serviceProvider.GetSensorService(), r.logger)

	r.alertController.RegisterRoutes(r.apiV1)
	r.sensorController.RegisterRoutes(r.apiV1)

	r.logger.Info("API routes setup completed")
}

func (r *Router) health(c *gin.Context) {
	status := gin.H{"status": "healthy"}

	if r.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.db.VerifyConnection(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}

	if r.config.Kafka.Enabled {
		manager := r.serviceProvider.GetKafkaManager()
		status["kafka"] = manager != nil && manager.IsRunning()
	}
	if hub := r.serviceProvider.GetAlertHub(); hub != nil {
		status["stream_clients"] = hub.ClientCount()
	}

	c.JSON(http.StatusOK, status)
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
