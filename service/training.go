package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/replicate"
	"github.com/pixima/avatar-backend/repository"
)

// TrainingService runs the provisioning pipeline: archive assembly, remote
// model creation, remote training submission, local persistence and the
// ledger append.
type TrainingService struct {
	repo    *repository.Repository
	media   Media
	trainer Trainer
}

func NewTrainingService(repo *repository.Repository, media Media, trainer Trainer) *TrainingService {
	return &TrainingService{repo: repo, media: media, trainer: trainer}
}

// Submit provisions a new training for the user. A second submission while a
// non-terminal training exists is rejected with a TrainingConflictError; the
// cheap pre-check below avoids wasted remote work, and the conditional
// create in the repository is the authoritative guard.
//
// A failure after the remote submission succeeded (persist or ledger) leaves
// an orphaned remote training with no local record. That divergence is
// surfaced to the caller and not auto-healed.
func (s *TrainingService) Submit(ctx context.Context, req models.CreateAndTrainRequest) (*models.CreateAndTrainResponse, error) {
	if last, err := s.repo.LatestTrainingJob(ctx, req.UserID); err == nil && !last.Status.Terminal() {
		return nil, &repository.TrainingConflictError{TrainingID: last.ID, Status: last.Status}
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	archiveURL, count, err := s.media.BuildTrainingArchive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	slog.Info("training archive assembled", "user", req.UserID, "images", count)

	description := req.ModelDescription
	if description == "" {
		description = "User model"
	}

	// Deterministic name plus a short random disambiguator. A collision
	// fails the submission rather than retrying.
	modelName := fmt.Sprintf("avatar_flux_%s_%d", req.UserID, 100+rand.Intn(900))
	created, err := s.trainer.CreateModel(ctx, modelName, description)
	if err != nil {
		return nil, fmt.Errorf("model creation failed: %w", err)
	}
	modelRef := created.Owner + "/" + created.Name

	input := replicate.TrainingProfile(archiveURL, req.TriggerWord, req.Steps)
	state, err := s.trainer.TrainModel(ctx, modelRef, input)
	if err != nil {
		return nil, fmt.Errorf("training submission failed: %w", err)
	}

	job := &config.TrainingJob{
		ID:          state.ID,
		OwnerID:     req.UserID,
		ModelRef:    modelRef,
		Status:      models.ParseTrainingStatus(state.Status),
		TriggerWord: input.TriggerWord,
		ArchiveURL:  archiveURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTrainingJob(ctx, job); err != nil {
		return nil, err
	}

	block := fmt.Sprintf("\n## Training\n\n- Training ID: %s\n- Model ID: %s\n- Status: %s\n- Archive: %s\n- Trigger Word: %s\n- Steps: %d\n- Started: %s UTC\n",
		job.ID, modelRef, job.Status, archiveURL, input.TriggerWord, input.Steps,
		job.CreatedAt.Format("2006-01-02 15:04:05"))
	if err := s.media.AppendLedger(ctx, req.UserID, block); err != nil {
		return nil, fmt.Errorf("training submitted but ledger update failed: %w", err)
	}

	slog.Info("training provisioned", "user", req.UserID, "training", job.ID, "model", modelRef)
	return &models.CreateAndTrainResponse{
		TrainingID: job.ID,
		ModelID:    modelRef,
		Status:     job.Status,
	}, nil
}
