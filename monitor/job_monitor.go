package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pixima/avatar-backend/repository"
	"github.com/pixima/avatar-backend/service"
)

// JobMonitor periodically reconciles every non-terminal training against the
// provider, so progress is observed even when neither the client polls nor
// the webhook arrives.
type JobMonitor struct {
	repo       *repository.Repository
	reconciler *service.Reconciler
	interval   time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

// NewJobMonitor creates a new job monitor.
func NewJobMonitor(repo *repository.Repository, reconciler *service.Reconciler, interval time.Duration) *JobMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &JobMonitor{
		repo:       repo,
		reconciler: reconciler,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins monitoring in the background.
func (m *JobMonitor) Start() {
	m.wg.Add(1)
	go m.monitorLoop()
	log.Printf("Job monitor started - polling every %s", m.interval)
}

// Stop stops the job monitor gracefully.
func (m *JobMonitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	log.Println("Job monitor stopped")
}

func (m *JobMonitor) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.checkAllJobs()
		}
	}
}

// checkAllJobs reconciles every active training sequentially. The reconciler
// is idempotent, so overlap with poll- or webhook-driven updates is safe.
func (m *JobMonitor) checkAllJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	jobs, err := m.repo.ListActiveTrainingJobs(ctx)
	if err != nil {
		log.Printf("Failed to list active trainings: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	log.Printf("Monitoring %d active trainings", len(jobs))
	for i := range jobs {
		if err := m.reconciler.Refresh(ctx, &jobs[i]); err != nil {
			log.Printf("Failed to refresh training %s: %v", jobs[i].ID, err)
		}
	}
}
