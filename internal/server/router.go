package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/handlers"
	"github.com/thomasmilici/domux-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware  *middleware.AuthMiddleware
	UserHandler     *handlers.UserHandler
	SessionHandler  *handlers.SessionHandler
	GenerateHandler *handlers.GenerateHandler
	FinalizeHandler *handlers.FinalizeHandler
	ProjectHandler  *handlers.ProjectHandler

	AllowedOrigins string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if cfg.AllowedOrigins != "" {
		origins = strings.Split(cfg.AllowedOrigins, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// User
	api.GET("/me", cfg.UserHandler.GetMe)

	// Sessions
	api.POST("/sessions", cfg.SessionHandler.Create)
	api.GET("/sessions", cfg.SessionHandler.List)
	api.GET("/sessions/:id", cfg.SessionHandler.Get)
	api.PATCH("/sessions/:id", cfg.SessionHandler.Patch)
	api.PATCH("/sessions/:id/context", cfg.SessionHandler.PatchContext)
	api.POST("/sessions/:id/description", cfg.SessionHandler.AddDescription)
	api.PUT("/sessions/:id/description/:index", cfg.SessionHandler.EditDescription)
	api.DELETE("/sessions/:id/description/:index", cfg.SessionHandler.RemoveDescription)
	api.POST("/sessions/:id/resume", cfg.SessionHandler.Resume)
	api.POST("/sessions/:id/image", cfg.SessionHandler.UploadImage)

	// Estimate pipeline
	api.POST("/sessions/:id/generate", cfg.GenerateHandler.Generate)
	api.POST("/sessions/:id/finalize/title", cfg.FinalizeHandler.SuggestTitle)
	api.POST("/sessions/:id/finalize", cfg.FinalizeHandler.Finalize)

	// Projects
	api.GET("/projects", cfg.ProjectHandler.List)
	api.GET("/projects/:id", cfg.ProjectHandler.Get)
	api.POST("/projects/:id/revision", cfg.ProjectHandler.NewRevision)
	api.POST("/projects/:id/rebuild", cfg.ProjectHandler.Rebuild)

	return router
}
