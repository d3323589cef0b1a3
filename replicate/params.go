package replicate

import (
	"fmt"

	"github.com/pixima/avatar-backend/models"
)

// Fixed parameter profiles. Only trigger word, step count, prompt, seed and
// aspect ratio are user-tunable; everything else is a pipeline constant.

const (
	DefaultTriggerWord    = "TOK"
	DefaultTrainingSteps  = 1000
	DefaultAspectRatio    = "1:1"
	DefaultInferenceSteps = 28
)

// TrainingProfile builds the trainer hyperparameter block for an archive of
// source images.
func TrainingProfile(archiveURL, triggerWord string, steps int) models.TrainModelInput {
	if triggerWord == "" {
		triggerWord = DefaultTriggerWord
	}
	if steps <= 0 {
		steps = DefaultTrainingSteps
	}

	return models.TrainModelInput{
		Steps:               steps,
		LoraRank:            16,
		Optimizer:           "adamw8bit",
		BatchSize:           1,
		Resolution:          "512,768,1024",
		Autocaption:         true,
		AutocaptionPrefix:   fmt.Sprintf("a photo of %s", triggerWord),
		InputImages:         archiveURL,
		TriggerWord:         triggerWord,
		LearningRate:        0.0004,
		WandbProject:        "flux_train_replicate",
		WandbSaveInterval:   100,
		WandbSampleInterval: 100,
		CaptionDropoutRate:  0.05,
		CacheLatentsToDisk:  false,
	}
}

// GenerationProfile builds the prediction input for a user prompt.
func GenerationProfile(prompt string, seed *int, aspectRatio string, inferenceSteps int) models.GenerateImageInput {
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}
	if inferenceSteps <= 0 {
		inferenceSteps = DefaultInferenceSteps
	}

	return models.GenerateImageInput{
		Model:             "dev",
		Prompt:            prompt,
		Seed:              seed,
		LoraScale:         1.0,
		NumOutputs:        1,
		AspectRatio:       aspectRatio,
		OutputFormat:      "jpg",
		GuidanceScale:     3.5,
		OutputQuality:     90,
		PromptStrength:    0.8,
		ExtraLoraScale:    1.0,
		NumInferenceSteps: inferenceSteps,
	}
}
