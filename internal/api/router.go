package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/coachsync/coachsync/internal/app"
	"github.com/coachsync/coachsync/internal/auth"
	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/handlers"
	"github.com/coachsync/coachsync/internal/middleware"
	"github.com/coachsync/coachsync/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(
	db *gorm.DB,
	cfg *app.Config,
	sessions *services.SessionService,
	registry *collab.Registry,
	gateway *collab.Gateway,
	tokens *auth.TokenService,
) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry must be provided")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway must be provided")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	sessionHandler, err := handlers.NewSessionHandler(sessions, registry, tokens)
	if err != nil {
		return nil, err
	}
	realtimeHandler, err := handlers.NewRealtimeHandler(gateway, tokens)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")

	sessionRoutes := api.Group("/sessions")
	{
		sessionRoutes.POST("", sessionHandler.Create)
		sessionRoutes.GET("", sessionHandler.List)
		sessionRoutes.GET("/:sessionID", sessionHandler.Get)
		sessionRoutes.PATCH("/:sessionID/status", sessionHandler.ChangeStatus)
		sessionRoutes.GET("/:sessionID/messages", sessionHandler.ListMessages)
		sessionRoutes.POST("/:sessionID/documents", sessionHandler.CreateDocument)
		sessionRoutes.POST("/:sessionID/tokens", sessionHandler.IssueToken)
	}

	// Websocket entry point; identity travels in the connection token.
	r.GET("/ws/sessions/:sessionID", realtimeHandler.Connect)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
