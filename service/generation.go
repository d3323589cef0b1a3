package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/replicate"
	"github.com/pixima/avatar-backend/repository"
)

// ErrTrainingNotReady rejects generation against a training that has not
// completed successfully. This is a precondition failure, not a retryable
// state.
var ErrTrainingNotReady = errors.New("training is not completed successfully")

// GenerationService runs the synchronous generation pipeline.
type GenerationService struct {
	repo     *repository.Repository
	media    Media
	trainer  Trainer
	notifier Notifier
	fetcher  Fetcher
	enhancer PromptEnhancer // optional
}

func NewGenerationService(repo *repository.Repository, media Media, trainer Trainer, notifier Notifier, fetcher Fetcher, enhancer PromptEnhancer) *GenerationService {
	return &GenerationService{
		repo:     repo,
		media:    media,
		trainer:  trainer,
		notifier: notifier,
		fetcher:  fetcher,
		enhancer: enhancer,
	}
}

// Generate validates the referenced training, persists a processing record
// before the remote call (a crash mid-call still leaves a discoverable
// record), waits synchronously for the provider's answer, and finalizes the
// record exactly once whichever branch is taken.
func (s *GenerationService) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	training, err := s.repo.GetTrainingJob(ctx, req.UserID, req.TrainingID)
	if err != nil {
		return nil, err
	}
	if training.Status != models.TrainingSucceeded || training.ModelVersion == "" {
		return nil, ErrTrainingNotReady
	}

	prompt := req.Prompt
	if req.EnhancePrompt && s.enhancer != nil {
		// The trigger word recorded at submission time keeps enhanced
		// prompts aimed at the trained token.
		enhanced, err := s.enhancer.Enhance(ctx, prompt, training.TriggerWord)
		if err != nil {
			slog.Warn("prompt enhancement failed, using original prompt", "error", err)
		} else {
			prompt = enhanced
		}
	}

	gen := &config.GenerationJob{
		ID:            uuid.NewString(),
		OwnerID:       req.UserID,
		TrainingJobID: req.TrainingID,
		ModelVersion:  training.ModelVersion,
		Prompt:        prompt,
		RequestedSeed: req.Seed,
		Status:        models.GenerationProcessing,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateGenerationJob(ctx, gen); err != nil {
		return nil, err
	}

	input := replicate.GenerationProfile(prompt, req.Seed, req.AspectRatio, req.NumInferenceSteps)
	pred, callErr := s.trainer.GenerateImage(ctx, training.ModelVersion, input)

	var outErr error
	switch {
	case callErr != nil:
		gen.Status = models.GenerationFailed
		outErr = callErr
	case pred.Status == "succeeded" && len(pred.Output) > 0:
		gen.RemoteID = pred.ID
		gen.RemoteImageURL = pred.Output[0]
		if seed, ok := ExtractSeed(pred.Logs); ok {
			gen.ObservedSeed = &seed
		}
		if err := s.deliver(ctx, gen); err != nil {
			gen.Status = models.GenerationFailed
			outErr = err
		} else {
			gen.Status = models.GenerationSucceeded
		}
	default:
		if pred != nil {
			gen.RemoteID = pred.ID
		}
		gen.Status = models.GenerationFailed
	}

	completed := time.Now().UTC()
	gen.CompletedAt = &completed
	if err := s.repo.UpdateGenerationJob(ctx, gen); err != nil {
		slog.Error("failed to finalize generation record", "generation", gen.ID, "error", err)
		if outErr == nil {
			outErr = err
		}
	}
	if outErr != nil {
		return nil, fmt.Errorf("generation %s failed: %w", gen.ID, outErr)
	}

	return &models.GenerateResponse{
		GenerationID: gen.ID,
		Status:       gen.Status,
		ImageURL:     gen.ImageURL,
		Seed:         gen.ObservedSeed,
	}, nil
}

// deliver post-processes a successful prediction: persist the artifact and
// prompt, append the ledger entry and notify the user.
func (s *GenerationService) deliver(ctx context.Context, gen *config.GenerationJob) error {
	data, err := s.fetcher.Fetch(ctx, gen.RemoteImageURL)
	if err != nil {
		return fmt.Errorf("failed to download generated image: %w", err)
	}

	imageURL, err := s.media.SaveGeneratedImage(ctx, gen.OwnerID, gen.ID, data)
	if err != nil {
		return err
	}
	gen.ImageURL = imageURL

	if err := s.media.SavePrompt(ctx, gen.OwnerID, gen.ID, gen.Prompt); err != nil {
		return err
	}

	seed := 0
	if gen.ObservedSeed != nil {
		seed = *gen.ObservedSeed
	}
	block := fmt.Sprintf("\n### Generation %s\n\n- Date: %s UTC\n- Prompt: %s\n- Seed: %d\n- Image: %s\n",
		gen.ID, time.Now().UTC().Format("2006-01-02 15:04:05"), gen.Prompt, seed, imageURL)
	if err := s.media.AppendLedger(ctx, gen.OwnerID, block); err != nil {
		return err
	}

	n := models.Notification{
		UserID:      gen.OwnerID,
		ImageURL:    imageURL,
		Text:        fmt.Sprintf("🎨 Image generated!\n\nPrompt: %s\nSeed: %d", gen.Prompt, seed),
		MessageType: models.NotifyGenerationComplete,
		Metadata: map[string]string{
			"GenerationId": gen.ID,
		},
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		slog.Error("failed to send generation notification", "generation", gen.ID, "error", err)
	}
	return nil
}
