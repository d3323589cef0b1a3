package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/repository"
)

// Reconciler merges the provider's view of a training into the local record.
// Three drivers feed it the same transition logic: client polls, provider
// webhooks and the background monitor. Terminal states absorb, and an
// observation that changes nothing triggers no write and no side effects, so
// duplicate deliveries cannot double-send notifications or double-append
// ledger entries.
type Reconciler struct {
	repo     *repository.Repository
	media    Media
	notifier Notifier
	trainer  Trainer
}

func NewReconciler(repo *repository.Repository, media Media, notifier Notifier, trainer Trainer) *Reconciler {
	return &Reconciler{repo: repo, media: media, notifier: notifier, trainer: trainer}
}

// transition is the computed effect of one remote observation.
type transition struct {
	changed   bool
	completed bool // entered a terminal state in this observation
}

// applyRemoteState folds a remote observation into the record. Pure with
// respect to storage; the caller persists if anything changed.
func applyRemoteState(job *config.TrainingJob, status models.TrainingStatus, output *models.TrainingOutput, now time.Time) transition {
	if job.Status.Terminal() {
		return transition{}
	}

	var t transition
	if status != job.Status {
		job.Status = status
		t.changed = true
	}

	if status == models.TrainingSucceeded && output != nil {
		if v := parseModelVersion(output.Version); v != "" && v != job.ModelVersion {
			job.ModelVersion = v
			t.changed = true
		}
	}

	if status.Terminal() && job.CompletedAt == nil {
		completed := now
		job.CompletedAt = &completed
		t.changed = true
		t.completed = true
	}

	return t
}

// parseModelVersion splits the provider's opaque "namespace:version" token
// and returns the version part, or "" when the token has another shape.
func parseModelVersion(token string) string {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// Observe applies one remote observation to a loaded record and persists it.
// The optimistic-concurrency token on the record is the sole arbiter between
// racing drivers: a stale write is abandoned, because the winning writer has
// already applied an observation at least as fresh.
func (r *Reconciler) Observe(ctx context.Context, job *config.TrainingJob, status models.TrainingStatus, output *models.TrainingOutput) error {
	t := applyRemoteState(job, status, output, time.Now().UTC())
	if !t.changed {
		return nil
	}

	if err := r.repo.UpdateTrainingJob(ctx, job); err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			slog.Warn("concurrent training update won the race, abandoning",
				"training", job.ID, "status", status)
			return nil
		}
		return err
	}

	slog.Info("training status updated", "training", job.ID, "status", job.Status)

	if t.completed {
		r.finish(ctx, job)
	}
	return nil
}

// Refresh polls the provider for a non-terminal record and reconciles the
// response. A provider failure is logged and leaves the record as-is; the
// caller still gets the last known state.
func (r *Reconciler) Refresh(ctx context.Context, job *config.TrainingJob) error {
	if job.Status.Terminal() {
		return nil
	}

	state, err := r.trainer.GetTrainingStatus(ctx, job.ID)
	if err != nil {
		slog.Error("failed to get training status from provider", "training", job.ID, "error", err)
		return nil
	}

	return r.Observe(ctx, job, models.ParseTrainingStatus(state.Status), state.Output)
}

// Poll loads a training (the owner's latest when trainingID is empty) and
// refreshes it against the provider.
func (r *Reconciler) Poll(ctx context.Context, ownerID, trainingID string) (*config.TrainingJob, error) {
	var job *config.TrainingJob
	var err error
	if trainingID == "" {
		job, err = r.repo.LatestTrainingJob(ctx, ownerID)
	} else {
		job, err = r.repo.GetTrainingJob(ctx, ownerID, trainingID)
	}
	if err != nil {
		return nil, err
	}

	if err := r.Refresh(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// HandleWebhook resolves the local record from the remote job id alone and
// reconciles the pushed state. An unknown id is logged and dropped.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	job, err := r.repo.FindTrainingJobByID(ctx, payload.ID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("webhook for unknown training", "id", payload.ID, "status", payload.Status)
		return nil
	}
	if err != nil {
		return err
	}

	return r.Observe(ctx, job, models.ParseTrainingStatus(payload.Status), payload.Output)
}

// finish runs the terminal-transition side effects. They are best effort:
// the record is already persisted, and notification delivery is
// at-least-once by contract.
func (r *Reconciler) finish(ctx context.Context, job *config.TrainingJob) {
	completedAt := time.Now().UTC()
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	block := fmt.Sprintf("\n### Training %s %s\n\n- Date: %s UTC\n- Model: %s\n- Version: %s\n",
		job.ID, job.Status, completedAt.Format("2006-01-02 15:04:05"), job.ModelRef, job.ModelVersion)
	if err := r.media.AppendLedger(ctx, job.OwnerID, block); err != nil {
		slog.Error("failed to append training result to ledger", "training", job.ID, "error", err)
	}

	var n models.Notification
	if job.Status == models.TrainingSucceeded {
		n = models.Notification{
			UserID: job.OwnerID,
			Text: fmt.Sprintf("✅ Training complete!\n\nModel: %s\nVersion: %s\n\nYou can now generate images!",
				job.ModelRef, job.ModelVersion),
			MessageType: models.NotifyTrainingComplete,
			Metadata: map[string]string{
				"TrainingId":   job.ID,
				"ModelVersion": job.ModelVersion,
			},
		}
	} else {
		n = models.Notification{
			UserID:      job.OwnerID,
			Text:        "❌ Training did not complete. Please try again or contact support.",
			MessageType: models.NotifyTrainingComplete,
			Metadata:    map[string]string{"TrainingId": job.ID},
		}
	}

	if err := r.notifier.Send(ctx, n); err != nil {
		slog.Error("failed to send training notification", "training", job.ID, "error", err)
	}
}
