package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleRecord is returned when an update carries an outdated
	// concurrency token. The caller must re-read before retrying, or
	// abandon the update.
	ErrStaleRecord = errors.New("record was modified concurrently")
)

// TrainingConflictError reports an in-flight training blocking a new
// submission. It carries enough detail for the caller to decide whether to
// wait.
type TrainingConflictError struct {
	TrainingID string
	Status     models.TrainingStatus
}

func (e *TrainingConflictError) Error() string {
	return fmt.Sprintf("training already in progress (ID: %s, Status: %s)", e.TrainingID, e.Status)
}

var terminalStatuses = []models.TrainingStatus{
	models.TrainingSucceeded,
	models.TrainingFailed,
	models.TrainingCanceled,
}

// Repository handles database operations for training and generation jobs.
type Repository struct {
	db *gorm.DB
}

// New creates a new repository instance.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTrainingJob inserts a new training record. The no-duplicate-in-flight
// rule is enforced inside the same transaction as the insert, so the check
// and the write cannot race with another submission for the same owner.
func (r *Repository) CreateTrainingJob(ctx context.Context, job *config.TrainingJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing config.TrainingJob
		err := tx.
			Where("owner_id = ? AND status NOT IN ?", job.OwnerID, terminalStatuses).
			Order("created_at DESC").
			First(&existing).Error
		if err == nil {
			return &TrainingConflictError{TrainingID: existing.ID, Status: existing.Status}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check in-flight trainings: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create training job: %w", err)
		}
		return nil
	})
}

// GetTrainingJob retrieves one training record by owner and id.
func (r *Repository) GetTrainingJob(ctx context.Context, ownerID, id string) (*config.TrainingJob, error) {
	var job config.TrainingJob
	err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindTrainingJobByID looks a training up from the remote job id alone. The
// remote id is the primary key, so the webhook path resolves its record
// without knowing the owner.
func (r *Repository) FindTrainingJobByID(ctx context.Context, id string) (*config.TrainingJob, error) {
	var job config.TrainingJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// LatestTrainingJob returns the owner's most recent training record.
func (r *Repository) LatestTrainingJob(ctx context.Context, ownerID string) (*config.TrainingJob, error) {
	var job config.TrainingJob
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListActiveTrainingJobs lists all trainings not yet in a terminal state.
func (r *Repository) ListActiveTrainingJobs(ctx context.Context) ([]config.TrainingJob, error) {
	var jobs []config.TrainingJob
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateTrainingJob persists a mutated training record. The write succeeds
// only if the record's version still matches the one read alongside it; a
// concurrent writer causes ErrStaleRecord instead of a silent overwrite.
func (r *Repository) UpdateTrainingJob(ctx context.Context, job *config.TrainingJob) error {
	res := r.db.WithContext(ctx).
		Model(&config.TrainingJob{}).
		Where("id = ? AND version = ?", job.ID, job.Version).
		Updates(map[string]interface{}{
			"status":        job.Status,
			"model_version": job.ModelVersion,
			"completed_at":  job.CompletedAt,
			"version":       job.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update training job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleRecord
	}
	job.Version++
	return nil
}

// CreateGenerationJob inserts a new generation record.
func (r *Repository) CreateGenerationJob(ctx context.Context, gen *config.GenerationJob) error {
	if err := r.db.WithContext(ctx).Create(gen).Error; err != nil {
		return fmt.Errorf("failed to create generation job: %w", err)
	}
	log.Printf("Generation saved: %s for user %s", gen.ID, gen.OwnerID)
	return nil
}

// GetGenerationJob retrieves one generation record by owner and id.
func (r *Repository) GetGenerationJob(ctx context.Context, ownerID, id string) (*config.GenerationJob, error) {
	var gen config.GenerationJob
	err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&gen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// UpdateGenerationJob persists a mutated generation record under the same
// optimistic-concurrency discipline as trainings.
func (r *Repository) UpdateGenerationJob(ctx context.Context, gen *config.GenerationJob) error {
	res := r.db.WithContext(ctx).
		Model(&config.GenerationJob{}).
		Where("id = ? AND version = ?", gen.ID, gen.Version).
		Updates(map[string]interface{}{
			"status":           gen.Status,
			"observed_seed":    gen.ObservedSeed,
			"image_url":        gen.ImageURL,
			"remote_image_url": gen.RemoteImageURL,
			"remote_id":        gen.RemoteID,
			"completed_at":     gen.CompletedAt,
			"version":          gen.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update generation job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleRecord
	}
	gen.Version++
	return nil
}
