package config

import (
	"time"

	"github.com/pixima/avatar-backend/models"
)

// TrainingJob is the local mirror of a remote training. The primary key is
// the remote-assigned training id, which makes the webhook path's reverse
// lookup a plain primary-key query.
type TrainingJob struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"index"`
	ModelRef     string // owner/name handle on the provider
	Status       models.TrainingStatus `gorm:"index"`
	ModelVersion string
	TriggerWord  string
	ArchiveURL   string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	// Version is the optimistic-concurrency token. Updates must carry the
	// value read alongside the record; a stale value fails the write.
	Version int64
}

func (TrainingJob) TableName() string {
	return "training_jobs"
}

// GenerationJob records one image generation. It is created in processing
// state before the remote call is made so a crash mid-call still leaves a
// discoverable record, and finalized exactly once by the same call path.
type GenerationJob struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"index"`
	TrainingJobID  string `gorm:"index"`
	ModelVersion   string
	Prompt         string `gorm:"type:text"`
	RequestedSeed  *int
	ObservedSeed   *int
	Status         models.GenerationStatus `gorm:"index"`
	ImageURL       string
	RemoteImageURL string
	RemoteID       string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	Version        int64
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
