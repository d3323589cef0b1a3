package models

// Wire types for the Replicate HTTP API. Field names follow the provider's
// JSON contract exactly.

type CreateModelRequest struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	Hardware    string `json:"hardware"`
}

type CreateModelResponse struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	URL         string `json:"url"`
}

type TrainModelRequest struct {
	Destination string          `json:"destination"`
	Input       TrainModelInput `json:"input"`
	Webhook     string          `json:"webhook,omitempty"`
}

// TrainModelInput is the trainer's hyperparameter block. Everything except
// Steps, TriggerWord, AutocaptionPrefix and InputImages is a constant of the
// provisioning pipeline (see replicate.TrainingProfile).
type TrainModelInput struct {
	Steps              int     `json:"steps"`
	LoraRank           int     `json:"lora_rank"`
	Optimizer          string  `json:"optimizer"`
	BatchSize          int     `json:"batch_size"`
	Resolution         string  `json:"resolution"`
	Autocaption        bool    `json:"autocaption"`
	AutocaptionPrefix  string  `json:"autocaption_prefix"`
	InputImages        string  `json:"input_images"`
	TriggerWord        string  `json:"trigger_word"`
	LearningRate       float64 `json:"learning_rate"`
	WandbProject       string  `json:"wandb_project"`
	WandbSaveInterval  int     `json:"wandb_save_interval"`
	WandbSampleInterval int    `json:"wandb_sample_interval"`
	CaptionDropoutRate float64 `json:"caption_dropout_rate"`
	CacheLatentsToDisk bool    `json:"cache_latents_to_disk"`
}

// TrainingOutput is present on succeeded trainings. Version is an opaque
// "namespace:version" token.
type TrainingOutput struct {
	Version string `json:"version"`
	Weights string `json:"weights"`
}

// TrainingState is the provider's view of a training job, returned by both
// the submission and the status endpoints, and pushed by webhooks.
type TrainingState struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output *TrainingOutput `json:"output"`
	Logs   string          `json:"logs"`
}

type GenerateImageRequest struct {
	Version string             `json:"version"`
	Input   GenerateImageInput `json:"input"`
}

type GenerateImageInput struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	Seed              *int    `json:"seed,omitempty"`
	LoraScale         float64 `json:"lora_scale"`
	NumOutputs        int     `json:"num_outputs"`
	AspectRatio       string  `json:"aspect_ratio"`
	OutputFormat      string  `json:"output_format"`
	GuidanceScale     float64 `json:"guidance_scale"`
	OutputQuality     int     `json:"output_quality"`
	PromptStrength    float64 `json:"prompt_strength"`
	ExtraLoraScale    float64 `json:"extra_lora_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

// Prediction is the provider's result for a synchronous generation call.
type Prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Logs   string   `json:"logs"`
}

// WebhookPayload is the inbound push from the provider, identified by the
// remote job id only. No owner is known a priori.
type WebhookPayload struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output *TrainingOutput `json:"output"`
	Logs   string          `json:"logs"`
}
