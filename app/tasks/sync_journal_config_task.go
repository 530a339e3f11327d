package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openscholar/exchange/app/config"
	"github.com/openscholar/exchange/app/database"
)

type SyncJournalConfigTask struct {
	Task
	JournalConfig *config.JournalConfig
	journalRepo   database.JournalRepository
}

func NewSyncJournalConfigTask(journalConfig *config.JournalConfig, journalRepo database.JournalRepository) *SyncJournalConfigTask {
	return &SyncJournalConfigTask{
		Task:          NewTask(TaskTypeSyncJournalConfig, journalConfig.Slug),
		JournalConfig: journalConfig,
		journalRepo:   journalRepo,
	}
}

func (t *SyncJournalConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cfg := t.JournalConfig
	err := t.journalRepo.UpsertJournal(cfg.Slug, cfg.Title, cfg.ISSN, cfg.EISSN,
		cfg.Publisher, cfg.Language, cfg.OpenAccess, cfg.Enabled)
	if err != nil {
		slog.Error("Task failed", "type", "SyncJournalConfig", "journal", cfg.Slug, "error", err)
		return fmt.Errorf("failed to sync journal config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncJournalConfig",
		"journal", cfg.Slug,
		"duration", t.GetDuration())

	return nil
}
