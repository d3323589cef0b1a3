package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/repository"
	"github.com/pixima/avatar-backend/service"
	"github.com/pixima/avatar-backend/storage"
)

type stubTrainer struct {
	trainFn    func(destination string, input models.TrainModelInput) (*models.TrainingState, error)
	statusFn   func(id string) (*models.TrainingState, error)
	generateFn func(version string, input models.GenerateImageInput) (*models.Prediction, error)
	canceled   []string
}

func (s *stubTrainer) CreateModel(_ context.Context, name, _ string) (*models.CreateModelResponse, error) {
	return &models.CreateModelResponse{Owner: "acct", Name: name}, nil
}

func (s *stubTrainer) TrainModel(_ context.Context, destination string, input models.TrainModelInput) (*models.TrainingState, error) {
	if s.trainFn != nil {
		return s.trainFn(destination, input)
	}
	return &models.TrainingState{ID: "tr-1", Status: "starting"}, nil
}

func (s *stubTrainer) GetTrainingStatus(_ context.Context, id string) (*models.TrainingState, error) {
	if s.statusFn != nil {
		return s.statusFn(id)
	}
	return &models.TrainingState{ID: id, Status: "processing"}, nil
}

func (s *stubTrainer) GenerateImage(_ context.Context, version string, input models.GenerateImageInput) (*models.Prediction, error) {
	if s.generateFn != nil {
		return s.generateFn(version, input)
	}
	return &models.Prediction{ID: "pred-1", Status: "failed"}, nil
}

func (s *stubTrainer) CancelTraining(_ context.Context, id string) error {
	s.canceled = append(s.canceled, id)
	return nil
}

type stubNotifier struct{ sent []models.Notification }

func (s *stubNotifier) Send(_ context.Context, n models.Notification) error {
	s.sent = append(s.sent, n)
	return nil
}

type stubFetcher struct{ data map[string][]byte }

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := s.data[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s returned status 404", url)
	}
	return data, nil
}

type testEnv struct {
	router  *gin.Engine
	repo    *repository.Repository
	media   *storage.MediaStore
	trainer *stubTrainer
	fetcher *stubFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:h-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&config.TrainingJob{}, &config.GenerationJob{}))

	env := &testEnv{
		repo:    repository.New(db),
		media:   storage.NewMediaStore(storage.NewMemoryStore()),
		trainer: &stubTrainer{},
		fetcher: &stubFetcher{data: map[string][]byte{}},
	}

	notifier := &stubNotifier{}
	uploads := service.NewUploadService(env.media, env.fetcher)
	trainings := service.NewTrainingService(env.repo, env.media, env.trainer)
	reconciler := service.NewReconciler(env.repo, env.media, notifier, env.trainer)
	generations := service.NewGenerationService(env.repo, env.media, env.trainer, notifier, env.fetcher, nil)

	h := NewHandler(uploads, trainings, reconciler, generations, env.trainer, env.repo)

	router := gin.New()
	router.POST("/api/v1/webhooks/replicate", h.ReplicateWebhook)
	router.POST("/api/v1/images/upload", h.UploadImages)
	router.POST("/api/v1/trainings", h.CreateAndTrain)
	router.POST("/api/v1/trainings/status", h.GetTrainingStatus)
	router.POST("/api/v1/trainings/:id/cancel", h.CancelTraining)
	router.POST("/api/v1/generations", h.GenerateImage)
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadImagesRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/images/upload", gin.H{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadImagesEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.data["https://gateway/img1"] = []byte("jpeg")

	w := env.do(t, http.MethodPost, "/api/v1/images/upload", models.UploadImagesRequest{
		UserID:    "u1",
		ImageURLs: []string{"https://gateway/img1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.UploadImagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ImageCount)
}

func TestCreateAndTrainConflictReturns409(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.media.UploadUserImage(ctx, "u1", "a.jpg", []byte("jpeg"))
	require.NoError(t, err)

	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:        "tr-live",
		OwnerID:   "u1",
		Status:    models.TrainingProcessing,
		CreatedAt: time.Now().UTC(),
	}))

	w := env.do(t, http.MethodPost, "/api/v1/trainings", models.CreateAndTrainRequest{UserID: "u1"})
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tr-live", body["trainingId"])
}

func TestCreateAndTrainWithoutUploadsReturns400(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/trainings", models.CreateAndTrainRequest{UserID: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTrainingStatusUnknownUserReturns404(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/trainings/status", models.GetTrainingStatusRequest{UserID: "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTrainingStatusRefreshesFromProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:        "tr-1",
		OwnerID:   "u1",
		ModelRef:  "acct/m",
		Status:    models.TrainingStarting,
		CreatedAt: time.Now().UTC(),
	}))
	env.trainer.statusFn = func(id string) (*models.TrainingState, error) {
		return &models.TrainingState{ID: id, Status: "processing"}, nil
	}

	w := env.do(t, http.MethodPost, "/api/v1/trainings/status", models.GetTrainingStatusRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.GetTrainingStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tr-1", resp.TrainingID)
	assert.Equal(t, models.TrainingProcessing, resp.Status)
}

func TestCancelTrainingChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:        "tr-1",
		OwnerID:   "u1",
		Status:    models.TrainingProcessing,
		CreatedAt: time.Now().UTC(),
	}))

	w := env.do(t, http.MethodPost, "/api/v1/trainings/tr-1/cancel?userId=intruder", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, env.trainer.canceled)

	w = env.do(t, http.MethodPost, "/api/v1/trainings/tr-1/cancel?userId=u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tr-1"}, env.trainer.canceled)
}

func TestWebhookRejectsPayloadWithoutID(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/webhooks/replicate", gin.H{"status": "succeeded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookUnknownTrainingStillReturns200(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/webhooks/replicate", models.WebhookPayload{
		ID:     "never-seen",
		Status: "succeeded",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookReconcilesTraining(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:        "tr-1",
		OwnerID:   "u1",
		Status:    models.TrainingProcessing,
		CreatedAt: time.Now().UTC(),
	}))

	w := env.do(t, http.MethodPost, "/api/v1/webhooks/replicate", models.WebhookPayload{
		ID:     "tr-1",
		Status: "succeeded",
		Output: &models.TrainingOutput{Version: "acct/m:v42"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	job, err := env.repo.GetTrainingJob(ctx, "u1", "tr-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrainingSucceeded, job.Status)
	assert.Equal(t, "v42", job.ModelVersion)
}

func TestGenerateImageTrainingNotReadyReturns400(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:        "tr-1",
		OwnerID:   "u1",
		Status:    models.TrainingProcessing,
		CreatedAt: time.Now().UTC(),
	}))

	w := env.do(t, http.MethodPost, "/api/v1/generations", models.GenerateRequest{
		UserID: "u1", TrainingID: "tr-1", Prompt: "a photo of zog",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateImageUnknownTrainingReturns404(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/generations", models.GenerateRequest{
		UserID: "u1", TrainingID: "nope", Prompt: "a photo of zog",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateImageEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	done := time.Now().UTC()
	require.NoError(t, env.repo.CreateTrainingJob(ctx, &config.TrainingJob{
		ID:           "tr-1",
		OwnerID:      "u1",
		ModelRef:     "acct/m",
		Status:       models.TrainingSucceeded,
		ModelVersion: "v42",
		CreatedAt:    done.Add(-time.Hour),
		CompletedAt:  &done,
	}))

	remoteURL := "https://replicate.delivery/out.jpg"
	env.fetcher.data[remoteURL] = []byte("jpeg")
	env.trainer.generateFn = func(version string, _ models.GenerateImageInput) (*models.Prediction, error) {
		return &models.Prediction{
			ID:     "pred-1",
			Status: "succeeded",
			Output: []string{remoteURL},
			Logs:   "Using seed: 99",
		}, nil
	}

	w := env.do(t, http.MethodPost, "/api/v1/generations", models.GenerateRequest{
		UserID: "u1", TrainingID: "tr-1", Prompt: "a photo of zog",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.GenerationSucceeded, resp.Status)
	require.NotNil(t, resp.Seed)
	assert.Equal(t, 99, *resp.Seed)
}
