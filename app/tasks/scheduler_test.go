package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/config"
	"github.com/openscholar/exchange/app/database"
)

func setupTestConfig() {
	// Clear os.Args to prevent config parsing from failing
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	// Set default environment variables if not set
	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	cfg.Load()
}

// MockArticleRepository implements a simple mock for testing
type MockArticleRepository struct {
	needingDOI []string
	err        error
}

func (m *MockArticleRepository) GetArticle(string) (*database.Article, error)       { return nil, nil }
func (m *MockArticleRepository) GetArticleBySlug(string) (*database.Article, error) { return nil, nil }
func (m *MockArticleRepository) GetArticleByDOI(string) (*database.Article, error)  { return nil, nil }
func (m *MockArticleRepository) ListPublished(database.ListFilter) ([]database.Article, error) {
	return nil, nil
}
func (m *MockArticleRepository) EarliestPublished() (*time.Time, error) { return nil, nil }
func (m *MockArticleRepository) GetArticleCount() (int, error)          { return 0, nil }
func (m *MockArticleRepository) GetDOIStats() (database.DOIStats, error) {
	return database.DOIStats{}, nil
}
func (m *MockArticleRepository) ListArticlesNeedingDOI(limit int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.needingDOI) > limit {
		return m.needingDOI[:limit], nil
	}
	return m.needingDOI, nil
}
func (m *MockArticleRepository) ClaimDOIPending(string) (bool, error)          { return true, nil }
func (m *MockArticleRepository) SetDOIRegistered(string, string, string) error { return nil }
func (m *MockArticleRepository) SetDOIFailed(string) error                     { return nil }
func (m *MockArticleRepository) ResetDOI(string) error                         { return nil }

// MockJournalRepository records upserts for assertion
type MockJournalRepository struct {
	mu       sync.Mutex
	upserted []string
	err      error
}

func (m *MockJournalRepository) GetJournal(string) (*database.Journal, error) { return nil, nil }
func (m *MockJournalRepository) ListPublishedJournals() ([]database.Journal, error) {
	return nil, nil
}
func (m *MockJournalRepository) GetJournalCount() (int, error) { return 0, nil }

func (m *MockJournalRepository) UpsertJournal(slug, title, issn, eissn, publisher, language string, openAccess, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, slug)
	return nil
}

// MockTask implements TaskInterface for worker tests
type MockTask struct {
	Task
	executed chan string
	err      error
}

func NewMockTask(id string, executed chan string) *MockTask {
	task := NewTask(TaskTypeRegisterDOI, id)
	task.ID = id
	return &MockTask{Task: task, executed: executed}
}

func (t *MockTask) Execute(ctx context.Context) error {
	t.executed <- t.ID
	return t.err
}

func newTestScheduler(articleRepo database.ArticleRepository, journalRepo database.JournalRepository,
	configs map[string]*config.JournalConfig) *Scheduler {
	setupTestConfig()
	return NewScheduler(configs, articleRepo, journalRepo, nil).(*Scheduler)
}

func TestTaskRetryBookkeeping(t *testing.T) {
	task := NewTask(TaskTypeRegisterDOI, "article-1")

	if task.GetRetryCount() != 0 {
		t.Errorf("Expected zero retries initially, got %d", task.GetRetryCount())
	}
	if !task.CanRetry() {
		t.Error("Expected a fresh task to be retryable")
	}

	for i := 0; i < DefaultMaxRetries; i++ {
		task.IncrementRetryCount()
	}
	if task.CanRetry() {
		t.Errorf("Expected retries exhausted at %d", task.GetRetryCount())
	}
}

func TestTaskUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		task := NewTask(TaskTypeRegisterDOI, "article-1")
		if seen[task.ID] {
			t.Fatalf("Duplicate task id: %s", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestSyncJournalConfigTask(t *testing.T) {
	journalRepo := &MockJournalRepository{}
	journalConfig := &config.JournalConfig{
		Slug:       "acta-informatica",
		Title:      "Acta Informatica",
		ISSN:       "1234-5678",
		Publisher:  "Example University Press",
		Language:   "en",
		OpenAccess: true,
		Enabled:    true,
	}

	task := NewSyncJournalConfigTask(journalConfig, journalRepo)
	if task.GetType() != TaskTypeSyncJournalConfig {
		t.Errorf("Unexpected task type: %s", task.GetType())
	}
	if task.GetSubject() != "acta-informatica" {
		t.Errorf("Unexpected subject: %s", task.GetSubject())
	}

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected execution to succeed, got: %v", err)
	}
	if len(journalRepo.upserted) != 1 || journalRepo.upserted[0] != "acta-informatica" {
		t.Errorf("Expected journal upsert, got %v", journalRepo.upserted)
	}

	// Cancelled context aborts before touching the repository
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Execute(ctx); err == nil {
		t.Error("Expected cancelled context error")
	}
}

func TestSchedulerProcessesEnqueuedTasks(t *testing.T) {
	scheduler := newTestScheduler(&MockArticleRepository{}, &MockJournalRepository{}, nil)
	scheduler.Start()
	defer scheduler.Stop()

	executed := make(chan string, 3)
	for i := 0; i < 3; i++ {
		if err := scheduler.EnqueueTask(NewMockTask(fmt.Sprintf("task-%d", i), executed)); err != nil {
			t.Fatalf("Failed to enqueue task: %v", err)
		}
	}

	seen := make(map[string]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-executed:
			seen[id] = true
		case <-timeout:
			t.Fatalf("Timed out, executed %d of 3 tasks", len(seen))
		}
	}
}

func TestSchedulerStartupTasks(t *testing.T) {
	articleRepo := &MockArticleRepository{needingDOI: []string{"article-1", "article-2"}}
	configs := map[string]*config.JournalConfig{
		"acta-informatica": {Slug: "acta-informatica", Title: "Acta Informatica"},
	}

	scheduler := newTestScheduler(articleRepo, &MockJournalRepository{}, configs)

	// Enqueue without starting workers so the queue can be inspected
	scheduler.enqueueStartupTasks()

	if got := len(scheduler.taskQueue); got != 3 {
		t.Errorf("Expected 1 sync task and 2 registration tasks, got %d", got)
	}

	byType := make(map[TaskType]int)
	for len(scheduler.taskQueue) > 0 {
		task := <-scheduler.taskQueue
		byType[task.GetType()]++
	}
	if byType[TaskTypeSyncJournalConfig] != 1 {
		t.Errorf("Expected 1 sync task, got %d", byType[TaskTypeSyncJournalConfig])
	}
	if byType[TaskTypeRegisterDOI] != 2 {
		t.Errorf("Expected 2 registration tasks, got %d", byType[TaskTypeRegisterDOI])
	}
}

func TestSchedulerSweepBatchLimit(t *testing.T) {
	ids := make([]string, sweepBatchSize+20)
	for i := range ids {
		ids[i] = fmt.Sprintf("article-%d", i)
	}
	articleRepo := &MockArticleRepository{needingDOI: ids}

	scheduler := newTestScheduler(articleRepo, &MockJournalRepository{}, nil)
	scheduler.enqueueRegistrationSweep()

	if got := len(scheduler.taskQueue); got != sweepBatchSize {
		t.Errorf("Expected sweep capped at %d tasks, got %d", sweepBatchSize, got)
	}
}

func TestSchedulerStopRejectsEnqueue(t *testing.T) {
	scheduler := newTestScheduler(&MockArticleRepository{}, &MockJournalRepository{}, nil)
	scheduler.Start()
	scheduler.Stop()

	if err := scheduler.EnqueueTask(NewMockTask("late", make(chan string, 1))); err == nil {
		t.Error("Expected enqueue after stop to fail")
	}
}

func TestSchedulerEnqueueDuringStop(t *testing.T) {
	scheduler := newTestScheduler(&MockArticleRepository{}, &MockJournalRepository{}, nil)
	scheduler.Start()

	// Enqueues racing Stop must either succeed or be refused, never panic
	executed := make(chan string, 100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				scheduler.EnqueueTask(NewMockTask(fmt.Sprintf("task-%d-%d", n, j), executed))
			}
		}(i)
	}

	scheduler.Stop()
	wg.Wait()
}
