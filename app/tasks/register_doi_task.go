package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openscholar/exchange/app/doi"
)

type RegisterDOITask struct {
	Task
	ArticleID string
	registrar *doi.Registrar
	retry     bool
}

// NewRegisterDOITask registers a DOI for a published article that has none
func NewRegisterDOITask(articleID string, registrar *doi.Registrar) *RegisterDOITask {
	return &RegisterDOITask{
		Task:      NewTask(TaskTypeRegisterDOI, articleID),
		ArticleID: articleID,
		registrar: registrar,
	}
}

// NewRetryDOITask clears a failed registration and runs the full sequence again
func NewRetryDOITask(articleID string, registrar *doi.Registrar) *RegisterDOITask {
	return &RegisterDOITask{
		Task:      NewTask(TaskTypeRegisterDOI, articleID),
		ArticleID: articleID,
		registrar: registrar,
		retry:     true,
	}
}

func (t *RegisterDOITask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var registered string
	var err error
	if t.retry {
		registered, err = t.registrar.Retry(ctx, t.ArticleID)
	} else {
		registered, err = t.registrar.Register(ctx, t.ArticleID)
	}

	if err != nil {
		// Terminal outcomes are persisted by the registrar and must not be
		// replayed by the scheduler's task retry; only infrastructure
		// failures bubble up as retryable.
		var validationErr *doi.ValidationError
		var registrationErr *doi.RegistrationError
		switch {
		case errors.As(err, &validationErr):
			slog.Error("Article not depositable", "article", t.ArticleID, "missing", validationErr.Missing)
			return nil
		case errors.As(err, &registrationErr):
			slog.Error("Registration failed terminally", "article", t.ArticleID, "cause", string(registrationErr.Cause), "error", registrationErr.Message)
			return nil
		case errors.Is(err, doi.ErrRegistrationPending),
			errors.Is(err, doi.ErrRegistrationFailed),
			errors.Is(err, doi.ErrNotPublished),
			errors.Is(err, doi.ErrArticleNotFound):
			slog.Debug("Registration skipped", "article", t.ArticleID, "reason", err)
			return nil
		case errors.Is(err, doi.ErrCollisionExhausted):
			slog.Error("DOI generation exhausted", "article", t.ArticleID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to register DOI: %w", err)
	}

	slog.Info("Task completed",
		"type", "RegisterDOI",
		"article", t.ArticleID,
		"doi", registered,
		"duration", t.GetDuration())

	return nil
}
