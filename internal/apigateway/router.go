package apigateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/auth"
	"gpt4o-speed-bench/internal/jobmanagement"
	"gpt4o-speed-bench/internal/logging"
)

// SetupRouter initializes the gin router for the read-only history browser.
// A non-empty token protects everything under /api.
func SetupRouter(handlers *jobmanagement.RunHandlers, token string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(auth.TokenMiddleware(token))

	runRoutes := api.Group("/runs")
	{
		runRoutes.GET("", handlers.ListRunsHandler)
		runRoutes.GET("/:id", handlers.GetRunHandler)
		runRoutes.GET("/:id/records", handlers.GetRunRecordsHandler)
		runRoutes.GET("/:id/artifacts/:kind", handlers.DownloadArtifactHandler)
	}

	return router
}

// requestLogger logs each request through the global zap logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger.Info("HTTP request",
			zap.String("component", "api"),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
