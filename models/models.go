package models

import "time"

// TrainingStatus is the closed set of lifecycle states for a training job.
// Provider responses are converted at the wire boundary so the rest of the
// code never compares raw status strings.
type TrainingStatus string

const (
	TrainingStarting   TrainingStatus = "starting"
	TrainingProcessing TrainingStatus = "processing"
	TrainingSucceeded  TrainingStatus = "succeeded"
	TrainingFailed     TrainingStatus = "failed"
	TrainingCanceled   TrainingStatus = "canceled"
)

// Terminal reports whether no further transitions are permitted.
func (s TrainingStatus) Terminal() bool {
	switch s {
	case TrainingSucceeded, TrainingFailed, TrainingCanceled:
		return true
	}
	return false
}

// ParseTrainingStatus maps a raw provider status string onto the closed enum.
// Unknown intermediate states (queued, etc.) collapse into processing.
func ParseTrainingStatus(raw string) TrainingStatus {
	switch raw {
	case "starting":
		return TrainingStarting
	case "succeeded":
		return TrainingSucceeded
	case "failed":
		return TrainingFailed
	case "canceled":
		return TrainingCanceled
	default:
		return TrainingProcessing
	}
}

// GenerationStatus is the lifecycle of a generation job. Generation is a
// synchronous request/result flow, so there is no reconciler path for it.
type GenerationStatus string

const (
	GenerationProcessing GenerationStatus = "processing"
	GenerationSucceeded  GenerationStatus = "succeeded"
	GenerationFailed     GenerationStatus = "failed"
)

// UploadImagesRequest carries source image URLs pushed from the chat gateway.
type UploadImagesRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	ImageURLs []string `json:"imageUrls" binding:"required"`
}

type UploadedImageInfo struct {
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
	URL       string `json:"url"`
}

type UploadImagesResponse struct {
	ImageCount     int                 `json:"imageCount"`
	UploadedImages []UploadedImageInfo `json:"uploadedImages"`
}

// CreateAndTrainRequest starts the provisioning pipeline for a user.
type CreateAndTrainRequest struct {
	UserID           string `json:"userId" binding:"required"`
	ModelDescription string `json:"modelDescription"`
	TriggerWord      string `json:"triggerWord"`
	Steps            int    `json:"steps"`
}

type CreateAndTrainResponse struct {
	TrainingID string         `json:"trainingId"`
	ModelID    string         `json:"modelId"`
	Status     TrainingStatus `json:"status"`
}

// GetTrainingStatusRequest asks for the user's most recent training, refreshed
// against the provider if the local record is not terminal.
type GetTrainingStatusRequest struct {
	UserID     string `json:"userId" binding:"required"`
	TrainingID string `json:"trainingId"`
}

type GetTrainingStatusResponse struct {
	TrainingID   string         `json:"trainingId"`
	ModelID      string         `json:"modelId"`
	Status       TrainingStatus `json:"status"`
	ModelVersion string         `json:"modelVersion,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// GenerateRequest runs the generation pipeline against a completed training.
type GenerateRequest struct {
	UserID            string `json:"userId" binding:"required"`
	TrainingID        string `json:"trainingId" binding:"required"`
	Prompt            string `json:"prompt" binding:"required"`
	Seed              *int   `json:"seed"`
	AspectRatio       string `json:"aspectRatio"`
	NumInferenceSteps int    `json:"numInferenceSteps"`
	EnhancePrompt     bool   `json:"enhancePrompt"`
}

type GenerateResponse struct {
	GenerationID string           `json:"generationId"`
	Status       GenerationStatus `json:"status"`
	ImageURL     string           `json:"imageUrl,omitempty"`
	Seed         *int             `json:"seed,omitempty"`
}

// Notification is the payload published to the outbound notification topic.
// Delivery is at-least-once; consumers must tolerate duplicates.
type Notification struct {
	UserID      string            `json:"userId"`
	Text        string            `json:"text,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	MessageType string            `json:"messageType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

const (
	NotifyTrainingComplete   = "training_complete"
	NotifyGenerationComplete = "generation_complete"
)
