package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/pixima/avatar-backend/models"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// APIError is a failed provider call, carrying the HTTP status code so
// callers can distinguish authentication misconfiguration from other
// failures.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusUnauthorized {
		return fmt.Sprintf("replicate API authentication failed (401 Unauthorized); "+
			"verify the configured API key (it should start with 'r8_'): %s", e.Body)
	}
	return fmt.Sprintf("replicate API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Settings configures the client.
type Settings struct {
	APIKey         string
	Owner          string
	TrainerModel   string
	TrainerVersion string
	WebhookURL     string
}

// Client talks to the Replicate HTTP API.
type Client struct {
	httpClient *http.Client
	settings   Settings
	// BaseURL may be overridden in tests.
	BaseURL string
}

// NewClient creates a provider client.
func NewClient(settings Settings) *Client {
	return &Client{
		httpClient: &http.Client{},
		settings:   settings,
		BaseURL:    defaultBaseURL,
	}
}

// CreateModel creates a private model placeholder for a trained version to
// land in.
func (c *Client) CreateModel(ctx context.Context, name, description string) (*models.CreateModelResponse, error) {
	log.Printf("Creating model: %s", name)

	req := models.CreateModelRequest{
		Owner:       c.settings.Owner,
		Name:        name,
		Description: description,
		Visibility:  "private",
		Hardware:    "cpu",
	}

	var resp models.CreateModelResponse
	if err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/models", nil, req, &resp); err != nil {
		return nil, err
	}

	log.Printf("Model created successfully: %s/%s", resp.Owner, resp.Name)
	return &resp, nil
}

// TrainModel submits a training against the configured trainer, targeting the
// destination model.
func (c *Client) TrainModel(ctx context.Context, destination string, input models.TrainModelInput) (*models.TrainingState, error) {
	log.Printf("Starting training for model: %s", destination)

	req := models.TrainModelRequest{
		Destination: destination,
		Input:       input,
		Webhook:     c.settings.WebhookURL,
	}

	url := fmt.Sprintf("%s/models/%s/versions/%s/trainings",
		c.BaseURL, c.settings.TrainerModel, c.settings.TrainerVersion)

	var resp models.TrainingState
	if err := c.doJSON(ctx, http.MethodPost, url, nil, req, &resp); err != nil {
		return nil, err
	}

	log.Printf("Training started. ID: %s, Status: %s", resp.ID, resp.Status)
	return &resp, nil
}

// GetTrainingStatus fetches the provider's current view of a training.
func (c *Client) GetTrainingStatus(ctx context.Context, id string) (*models.TrainingState, error) {
	var resp models.TrainingState
	url := fmt.Sprintf("%s/predictions/%s", c.BaseURL, id)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateImage runs a prediction against a trained model version. The
// Prefer: wait header makes the call block until the provider has a result.
func (c *Client) GenerateImage(ctx context.Context, version string, input models.GenerateImageInput) (*models.Prediction, error) {
	log.Printf("Generating image with version %s", version)

	req := models.GenerateImageRequest{Version: version, Input: input}

	var resp models.Prediction
	headers := map[string]string{"Prefer": "wait"}
	if err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/predictions", headers, req, &resp); err != nil {
		return nil, err
	}

	log.Printf("Generation finished. ID: %s, Status: %s", resp.ID, resp.Status)
	return &resp, nil
}

// CancelTraining asks the provider to cancel a running job. The local record
// is not touched here; cancellation is observed through the normal status
// paths.
func (c *Client) CancelTraining(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/predictions/%s/cancel", c.BaseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, url, nil, nil, nil); err != nil {
		return err
	}
	log.Printf("Training %s cancelled", id)
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		log.Printf("Replicate API error: %v", apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
