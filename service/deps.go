package service

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/storage"
)

// Trainer is the opaque training/generation provider.
type Trainer interface {
	CreateModel(ctx context.Context, name, description string) (*models.CreateModelResponse, error)
	TrainModel(ctx context.Context, destination string, input models.TrainModelInput) (*models.TrainingState, error)
	GetTrainingStatus(ctx context.Context, id string) (*models.TrainingState, error)
	GenerateImage(ctx context.Context, version string, input models.GenerateImageInput) (*models.Prediction, error)
	CancelTraining(ctx context.Context, id string) error
}

// Media is the per-user blob area: uploads, archives, generated assets and
// the ledger document.
type Media interface {
	UploadUserImage(ctx context.Context, ownerID, fileName string, data []byte) (string, error)
	HasUploadWithSize(ctx context.Context, ownerID string, size int64) (bool, error)
	ListUploads(ctx context.Context, ownerID string) ([]storage.UploadedFile, error)
	BuildTrainingArchive(ctx context.Context, ownerID string) (string, int, error)
	SaveGeneratedImage(ctx context.Context, ownerID, generationID string, data []byte) (string, error)
	SavePrompt(ctx context.Context, ownerID, generationID, prompt string) error
	AppendLedger(ctx context.Context, ownerID, block string) error
	RewriteLedger(ctx context.Context, ownerID, content string) error
}

// Notifier delivers user-facing messages, at-least-once.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// PromptEnhancer rewrites a user prompt for the image model.
type PromptEnhancer interface {
	Enhance(ctx context.Context, prompt, triggerWord string) (string, error)
}

// Fetcher retrieves raw bytes from a URL (source images from the chat
// gateway, generated artifacts from the provider's transient URLs).
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
