package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/config"
	"github.com/openscholar/exchange/app/database"
	"github.com/openscholar/exchange/app/doi"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// sweepBatchSize bounds how many articles a single sweep enqueues for
// registration.
const sweepBatchSize = 50

type Scheduler struct {
	journalConfigs map[string]*config.JournalConfig
	articleRepo    database.ArticleRepository
	journalRepo    database.JournalRepository
	registrar      *doi.Registrar
	interval       time.Duration
	workerCount    int
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface
}

func NewScheduler(journalConfigs map[string]*config.JournalConfig, articleRepo database.ArticleRepository,
	journalRepo database.JournalRepository, registrar *doi.Registrar) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	appCfg := cfg.Get()

	return &Scheduler{
		journalConfigs: journalConfigs,
		articleRepo:    articleRepo,
		journalRepo:    journalRepo,
		registrar:      registrar,
		interval:       time.Duration(appCfg.SchedulerInterval) * time.Second,
		workerCount:    appCfg.WorkerCount,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueRegistrationSweep()
			}
		}
	}()

}

// Stop cancels the workers and waits for them. The queue is never closed, so
// an enqueue racing Stop parks in the buffer instead of panicking on a closed
// channel.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	if len(s.journalConfigs) == 0 {
		slog.Debug("No journal configurations found")
	}

	for _, journalConfig := range s.journalConfigs {
		syncTask := NewSyncJournalConfigTask(journalConfig, s.journalRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncJournalConfigTask", "journal", journalConfig.Slug, "error", err)
		}
	}

	s.enqueueRegistrationSweep()
}

// enqueueRegistrationSweep picks up published articles whose registration
// state is still unset, e.g. published before the service was configured for
// registration or left behind by a restart.
func (s *Scheduler) enqueueRegistrationSweep() {
	ids, err := s.articleRepo.ListArticlesNeedingDOI(sweepBatchSize)
	if err != nil {
		slog.Warn("Failed to list articles needing registration", "error", err)
		return
	}

	if len(ids) == 0 {
		slog.Debug("No articles awaiting registration")
		return
	}

	slog.Debug("Enqueueing registration tasks", "count", len(ids))

	for _, id := range ids {
		task := NewRegisterDOITask(id, s.registrar)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RegisterDOITask", "article", id, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
