package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Legalphoenix/tabular-review/config"
	"github.com/Legalphoenix/tabular-review/handler"
	"github.com/Legalphoenix/tabular-review/middleware"
	"github.com/Legalphoenix/tabular-review/pkg/logger"
	"github.com/Legalphoenix/tabular-review/service"
	"github.com/Legalphoenix/tabular-review/viewer"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO service", "error", err)
		os.Exit(1)
	}

	// Ensure bucket exists
	if err := minioSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	answerSvc := service.NewAnswerService(&cfg.Services)
	preprocessSvc := service.NewPreprocessService(&cfg.Services, minioSvc)

	// Initialize review store with config
	service.InitReviewStore(&cfg.Store)

	runner := service.NewCellRunner(service.GetReviewStore(), answerSvc)
	viewerCtrl := viewer.NewController(viewer.NewPDFOpener(minioSvc))

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	documentHandler := handler.NewDocumentHandler(minioSvc, preprocessSvc)
	columnHandler := handler.NewColumnHandler(answerSvc)
	cellHandler := handler.NewCellHandler(runner)
	viewerHandler := handler.NewViewerHandler(viewerCtrl)
	exportHandler := handler.NewExportHandler()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.POST("/documents", documentHandler.Upload)
		protected.GET("/documents", documentHandler.List)
		protected.GET("/documents/:id", documentHandler.Get)
		protected.GET("/documents/:id/status", documentHandler.GetStatus)
		protected.DELETE("/documents/:id", documentHandler.Delete)
		protected.POST("/documents/:id/preprocess", documentHandler.Preprocess)
		protected.POST("/documents/:id/appendices", documentHandler.AddAppendices)
		protected.DELETE("/documents/:id/appendices", documentHandler.RemoveAppendix)

		protected.POST("/columns", columnHandler.Save)
		protected.GET("/columns", columnHandler.List)
		protected.DELETE("/columns/:id", columnHandler.Delete)
		protected.POST("/columns/suggest", columnHandler.SuggestPrompt)

		protected.GET("/table", cellHandler.Table)
		protected.GET("/cells/:docID/:colID", cellHandler.Get)
		protected.PUT("/cells/:docID/:colID", cellHandler.Save)
		protected.POST("/cells/:docID/:colID/run", cellHandler.Run)
		protected.GET("/cells/:docID/:colID/content", cellHandler.Content)
		protected.POST("/cells/run-all", cellHandler.RunAll)

		protected.POST("/viewer/open", viewerHandler.Open)
		protected.POST("/viewer/navigate", viewerHandler.Navigate)
		protected.POST("/viewer/close", viewerHandler.Close)
		protected.GET("/viewer/status", viewerHandler.Status)

		protected.GET("/export/csv", exportHandler.CSV)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The viewer may hold a staged PDF on disk
	viewerCtrl.Close()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
