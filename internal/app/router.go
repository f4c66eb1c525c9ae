package app

import (
	"cad_practice_backend/docs"
	"cad_practice_backend/internal/config"
	"cad_practice_backend/internal/middleware"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// Public routes
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/auth/launch", c.auth.Launch)
		public.GET("/auth/oauth/redirect", c.auth.OAuthRedirect)
		public.POST("/auth/admin/login", c.auth.AdminLogin)
	}

	// User routes: launched extension sessions
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/questions", c.question.List)
		authGroup.GET("/questions/:type/:id", c.question.Get)

		attempts := authGroup.Group("/attempts")
		{
			attempts.POST("/:type/:id/initiate", c.attempt.Initiate)
			attempts.POST("/evaluate", c.attempt.Evaluate)
			attempts.POST("/give-up", c.attempt.GiveUp)
			attempts.GET("/summary", c.attempt.Summary)
		}
	}

	// Admin routes: management console
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(util.RoleAdmin))
	{
		admin.POST("/questions", c.admin.CreateQuestion)
		admin.POST("/questions/:id/steps", c.admin.AddStep)
		admin.PUT("/questions/:id/publish", c.admin.Publish)
		admin.PUT("/questions/:id/collecting", c.admin.SetCollecting)
		admin.DELETE("/questions/:id", c.admin.DeleteQuestion)

		admin.GET("/reviewers", c.admin.ListReviewers)
		admin.POST("/reviewers", c.admin.CreateReviewer)
		admin.PUT("/reviewers/:id", c.admin.UpdateReviewer)
		admin.DELETE("/reviewers/:id", c.admin.DeleteReviewer)

		admin.POST("/password", c.auth.ChangeAdminPassword)
	}
}
