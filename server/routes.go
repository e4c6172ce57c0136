package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/controllers"
)

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg config.CORSConfig, h *controllers.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), controllers.RequestID(), controllers.RequestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           time.Duration(cfg.MaxAgeHours) * time.Hour,
	}))

	SetupRoutes(router, h)
	return router
}

func SetupRoutes(router *gin.Engine, h *controllers.Handler) {
	// Public routes
	router.GET("/health", h.Health)
	router.POST("/api/login", h.Login)
	router.POST("/api/logout", h.Logout)

	// Authenticated routes
	auth := router.Group("/api")
	auth.Use(h.AuthMiddleware())
	{
		auth.POST("/connection/verify-api", h.VerifyAPI)
		auth.POST("/connection/verify-ftp", h.VerifyFTP)
		auth.POST("/connection/setup", h.SetupConnection)

		auth.POST("/plugins/package", h.PackagePlugin)
		auth.POST("/plugins/deploy", h.DeployPlugin)
		auth.POST("/plugins/delete", h.DeletePlugin)
		auth.POST("/plugins/upload-files", h.UploadPluginFiles)

		auth.POST("/debug-log", h.GetDebugLog)
		auth.POST("/generate", controllers.NoWriteDeadline(), h.Generate)

		auth.POST("/session/export", h.ExportSession)
		auth.POST("/session/import", h.ImportSession)

		auth.GET("/activities", h.GetActivities)
	}
}
