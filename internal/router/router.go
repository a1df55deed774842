package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/handler"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Admin   *handler.AdminHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Session Group (Bearer Forwarding) ──────────────────────────
	sessionAPI := router.Group("/api/v1/sessions")
	sessionAPI.Use(middleware.RequireBearer(log))
	{
		sessionAPI.POST("", handlers.Session.CreateSession)
		sessionAPI.GET("/:session_id", handlers.Session.GetSession)
		sessionAPI.PUT("/:session_id/answers", handlers.Session.ApplyAnswer)
		sessionAPI.POST("/:session_id/navigate", handlers.Session.Navigate)
		sessionAPI.POST("/:session_id/flush", handlers.Session.Flush)
		sessionAPI.POST("/:session_id/submit", handlers.Session.Submit)
		sessionAPI.POST("/:session_id/switch", handlers.Session.Switch)
		sessionAPI.DELETE("/:session_id", handlers.Session.DeleteSession)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	// The socket is observe-only so no bearer is required; session ids are
	// unguessable UUIDs handed out at create time.
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (Proctor Proxy) ────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireBearer(log))
	{
		adminAPI.POST("/exams/:exam_id/start", handlers.Admin.StartExam)
		adminAPI.POST("/exams/:exam_id/stop", handlers.Admin.StopExam)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Admin.PublishResults)
		adminAPI.GET("/exams/:exam_id/active-students", handlers.Admin.ActiveStudents)
	}

	return router
}
