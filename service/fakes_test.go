package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pixima/avatar-backend/config"
	"github.com/pixima/avatar-backend/models"
	"github.com/pixima/avatar-backend/repository"
)

func newTestRepo(t *testing.T) (*repository.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:svc-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&config.TrainingJob{}, &config.GenerationJob{}))
	return repository.New(db), db
}

type fakeTrainer struct {
	mu sync.Mutex

	createModelFn func(name, description string) (*models.CreateModelResponse, error)
	trainFn       func(destination string, input models.TrainModelInput) (*models.TrainingState, error)
	statusFn      func(id string) (*models.TrainingState, error)
	generateFn    func(version string, input models.GenerateImageInput) (*models.Prediction, error)

	createCalls   int
	generateCalls int
	canceled      []string
}

func (f *fakeTrainer) CreateModel(_ context.Context, name, description string) (*models.CreateModelResponse, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createModelFn != nil {
		return f.createModelFn(name, description)
	}
	return &models.CreateModelResponse{Owner: "acct", Name: name}, nil
}

func (f *fakeTrainer) TrainModel(_ context.Context, destination string, input models.TrainModelInput) (*models.TrainingState, error) {
	if f.trainFn != nil {
		return f.trainFn(destination, input)
	}
	return &models.TrainingState{ID: "tr-1", Status: "starting"}, nil
}

func (f *fakeTrainer) GetTrainingStatus(_ context.Context, id string) (*models.TrainingState, error) {
	if f.statusFn != nil {
		return f.statusFn(id)
	}
	return &models.TrainingState{ID: id, Status: "processing"}, nil
}

func (f *fakeTrainer) GenerateImage(_ context.Context, version string, input models.GenerateImageInput) (*models.Prediction, error) {
	f.mu.Lock()
	f.generateCalls++
	f.mu.Unlock()
	if f.generateFn != nil {
		return f.generateFn(version, input)
	}
	return &models.Prediction{ID: "pred-1", Status: "succeeded"}, nil
}

func (f *fakeTrainer) CancelTraining(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.data[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s returned status 404", url)
	}
	return data, nil
}

type fakeEnhancer struct {
	fn          func(prompt string) (string, error)
	triggerWord string
}

func (f *fakeEnhancer) Enhance(_ context.Context, prompt, triggerWord string) (string, error) {
	f.triggerWord = triggerWord
	return f.fn(prompt)
}
