package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pixima/avatar-backend/models"
)

// ErrNoImagesUploaded is returned when no source image could be fetched.
var ErrNoImagesUploaded = errors.New("failed to fetch any images")

// UploadService ingests source images for training.
type UploadService struct {
	media   Media
	fetcher Fetcher
}

func NewUploadService(media Media, fetcher Fetcher) *UploadService {
	return &UploadService{media: media, fetcher: fetcher}
}

// UploadImages fetches each source URL and stores it under the owner's
// upload prefix. An image whose byte length matches an already-stored asset
// is skipped, not stored and not an error: the length acts as a cheap
// duplicate fingerprint for retransmissions from the chat gateway. A URL
// that cannot be fetched is logged and skipped.
func (s *UploadService) UploadImages(ctx context.Context, userID string, imageURLs []string) (*models.UploadImagesResponse, error) {
	batchID := uuid.NewString()[:8]
	timestamp := time.Now().UTC().Format("20060102_150405")

	stored, skipped := 0, 0
	for i, url := range imageURLs {
		data, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			slog.Warn("failed to fetch source image", "url", url, "error", err)
			continue
		}

		exists, err := s.media.HasUploadWithSize(ctx, userID, int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("duplicate check failed: %w", err)
		}
		if exists {
			slog.Info("skipping duplicate-sized image", "url", url, "size", len(data))
			skipped++
			continue
		}

		fileName := fmt.Sprintf("image_%s_%s_%03d.jpg", timestamp, batchID, i+1)
		if _, err := s.media.UploadUserImage(ctx, userID, fileName, data); err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		stored++
	}

	if stored == 0 && skipped == 0 {
		return nil, ErrNoImagesUploaded
	}

	all, err := s.media.ListUploads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	header := fmt.Sprintf("# User %s\n\n## Uploaded Images\n\n- Date: %s UTC\n- Count: %d\n",
		userID, time.Now().UTC().Format("2006-01-02 15:04:05"), len(all))
	if err := s.media.RewriteLedger(ctx, userID, header); err != nil {
		return nil, fmt.Errorf("failed to update ledger: %w", err)
	}

	resp := &models.UploadImagesResponse{ImageCount: len(all)}
	for _, f := range all {
		resp.UploadedImages = append(resp.UploadedImages, models.UploadedImageInfo{
			FileName:  f.Name,
			SizeBytes: f.Size,
			URL:       f.URL,
		})
	}
	return resp, nil
}
