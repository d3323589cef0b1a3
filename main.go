package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/handlers"
	"github.com/pixima/avatar-backend/middleware"
	"github.com/pixima/avatar-backend/monitor"
	"github.com/pixima/avatar-backend/notify"
	"github.com/pixima/avatar-backend/openai"
	"github.com/pixima/avatar-backend/replicate"
	"github.com/pixima/avatar-backend/repository"
	"github.com/pixima/avatar-backend/service"
	"github.com/pixima/avatar-backend/storage"
)

func main() {
	port := flag.String("port", getEnvOrDefault("PORT", "8080"), "Server port")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	logPath := flag.String("log-path", getEnvOrDefault("LOG_PATH", "logs/app.log"), "Log file path")
	pollInterval := flag.Duration("poll-interval", 30*time.Second, "Background training poll interval")
	flag.Parse()

	config.InitLogger(*logPath)
	log.Println("Starting avatar training backend")

	cfg, err := config.New(*databaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	defer cfg.Close()

	ctx := context.Background()

	blobs, err := storage.NewMinIOClient(ctx, storage.MinIOConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		UseSSL:    cfg.MinIO.UseSSL,
		Bucket:    cfg.MinIO.Bucket,
	})
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}
	media := storage.NewMediaStore(blobs)

	queue, err := notify.NewKafkaQueue(cfg.KafkaBroker, cfg.NotifyTopic)
	if err != nil {
		log.Fatalf("Failed to initialize notification queue: %v", err)
	}
	defer queue.Close()

	trainer := replicate.NewClient(replicate.Settings{
		APIKey:         cfg.Replicate.APIKey,
		Owner:          cfg.Replicate.Owner,
		TrainerModel:   cfg.Replicate.TrainerModel,
		TrainerVersion: cfg.Replicate.TrainerVersion,
		WebhookURL:     cfg.Replicate.WebhookURL,
	})

	var enhancer service.PromptEnhancer
	if cfg.OpenAIKey != "" {
		enhancer = openai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	repo := repository.New(cfg.DB)
	fetcher := service.NewHTTPFetcher()

	uploads := service.NewUploadService(media, fetcher)
	trainings := service.NewTrainingService(repo, media, trainer)
	reconciler := service.NewReconciler(repo, media, queue, trainer)
	generations := service.NewGenerationService(repo, media, trainer, queue, fetcher, enhancer)

	jobMonitor := monitor.NewJobMonitor(repo, reconciler, *pollInterval)
	jobMonitor.Start()

	handler := handlers.NewHandler(uploads, trainings, reconciler, generations, trainer, repo)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// The provider pushes webhooks anonymously; everything else is keyed.
	router.POST("/api/v1/webhooks/replicate", handler.ReplicateWebhook)

	api := router.Group("/api/v1")
	api.Use(middleware.APIKeyMiddleware())
	{
		api.POST("/images/upload", handler.UploadImages)
		api.POST("/trainings", handler.CreateAndTrain)
		api.POST("/trainings/status", handler.GetTrainingStatus)
		api.POST("/trainings/:id/cancel", handler.CancelTraining)
		api.POST("/generations", handler.GenerateImage)
	}

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	jobMonitor.Stop()
	log.Println("Server stopped gracefully")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
