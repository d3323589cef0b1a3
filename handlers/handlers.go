package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/repository"
	"github.com/pixima/avatar-backend/service"
	"github.com/pixima/avatar-backend/storage"
)

// Handler handles HTTP requests.
type Handler struct {
	uploads     *service.UploadService
	trainings   *service.TrainingService
	reconciler  *service.Reconciler
	generations *service.GenerationService
	trainer     service.Trainer
	repo        *repository.Repository
}

// NewHandler creates a new handler instance.
func NewHandler(
	uploads *service.UploadService,
	trainings *service.TrainingService,
	reconciler *service.Reconciler,
	generations *service.GenerationService,
	trainer service.Trainer,
	repo *repository.Repository,
) *Handler {
	return &Handler{
		uploads:     uploads,
		trainings:   trainings,
		reconciler:  reconciler,
		generations: generations,
		trainer:     trainer,
		repo:        repo,
	}
}

// UploadImages handles POST /api/v1/images/upload
func (h *Handler) UploadImages(c *gin.Context) {
	var req models.UploadImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid upload payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload. userId and imageUrls are required.",
			"details": err.Error(),
		})
		return
	}

	log.Printf("Processing image upload for user %s, %d images", req.UserID, len(req.ImageURLs))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	resp, err := h.uploads.UploadImages(ctx, req.UserID, req.ImageURLs)
	if err != nil {
		if errors.Is(err, service.ErrNoImagesUploaded) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to fetch any images"})
			return
		}
		log.Printf("Image upload failed for user %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload images", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateAndTrain handles POST /api/v1/trainings
func (h *Handler) CreateAndTrain(c *gin.Context) {
	var req models.CreateAndTrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid training payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload. userId is required.",
			"details": err.Error(),
		})
		return
	}

	log.Printf("Training submission for user %s", req.UserID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 120*time.Second)
	defer cancel()

	resp, err := h.trainings.Submit(ctx, req)
	if err != nil {
		var conflict *repository.TrainingConflictError
		switch {
		case errors.As(err, &conflict):
			log.Printf("Training already in progress for user %s: %s (%s)",
				req.UserID, conflict.TrainingID, conflict.Status)
			c.JSON(http.StatusConflict, gin.H{
				"error":      "Training is already in progress. Please wait for it to complete before starting a new one.",
				"trainingId": conflict.TrainingID,
				"status":     conflict.Status,
			})
		case errors.Is(err, storage.ErrNoUploads):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No uploaded images found. Upload images first."})
		default:
			log.Printf("Training submission failed for user %s: %v", req.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start training", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetTrainingStatus handles POST /api/v1/trainings/status
func (h *Handler) GetTrainingStatus(c *gin.Context) {
	var req models.GetTrainingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload. userId is required.",
			"details": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	job, err := h.reconciler.Poll(ctx, req.UserID, req.TrainingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No training found for this user. Please start a training first."})
			return
		}
		log.Printf("Failed to get training status for user %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get training status"})
		return
	}

	c.JSON(http.StatusOK, models.GetTrainingStatusResponse{
		TrainingID:   job.ID,
		ModelID:      job.ModelRef,
		Status:       job.Status,
		ModelVersion: job.ModelVersion,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	})
}

// CancelTraining handles POST /api/v1/trainings/:id/cancel
//
// Cancellation is a provider-side request only; the local record transitions
// to canceled through the normal reconciliation paths once the provider
// reports it.
func (h *Handler) CancelTraining(c *gin.Context) {
	id := c.Param("id")
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if _, err := h.repo.GetTrainingJob(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Training not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load training"})
		return
	}

	if err := h.trainer.CancelTraining(ctx, id); err != nil {
		log.Printf("Failed to cancel training %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel training", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

// ReplicateWebhook handles POST /api/v1/webhooks/replicate
//
// Local reconciliation failures are swallowed after logging: answering with
// an error here would only trigger provider-side retry storms.
func (h *Handler) ReplicateWebhook(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.ID == "" {
		log.Printf("Invalid webhook payload: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	log.Printf("Processing webhook for training %s, status %s", payload.ID, payload.Status)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.reconciler.HandleWebhook(ctx, payload); err != nil {
		log.Printf("Webhook processing failed for training %s: %v", payload.ID, err)
	}

	c.Status(http.StatusOK)
}

// GenerateImage handles POST /api/v1/generations
func (h *Handler) GenerateImage(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload. userId, trainingId and prompt are required.",
			"details": err.Error(),
		})
		return
	}

	log.Printf("Generation request for user %s, training %s", req.UserID, req.TrainingID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 120*time.Second)
	defer cancel()

	resp, err := h.generations.Generate(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Training not found"})
		case errors.Is(err, service.ErrTrainingNotReady):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Training is not completed or failed"})
		default:
			log.Printf("Generation failed for user %s: %v", req.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
