package doi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openscholar/exchange/app/database"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrNotPublished    = errors.New("article is not published")

	// ErrRegistrationPending rejects a second attempt while a submission is
	// in flight; the pending state acts as the lock.
	ErrRegistrationPending = errors.New("registration already in progress")

	// ErrRegistrationFailed marks an article whose previous attempt failed
	// terminally; only the explicit retry entry point clears it.
	ErrRegistrationFailed = errors.New("previous registration failed, use retry")
)

// ValidationError reports every mandatory deposit field the article is
// missing. Never retried; the underlying record must be fixed.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("article is not depositable: %s", strings.Join(e.Missing, "; "))
}

// Registrar sequences identifier generation, deposit building, and
// submission, persisting each state transition.
type Registrar struct {
	articleRepo database.ArticleRepository
	generator   *Generator
	builder     *Builder
	client      *Client
}

func NewRegistrar(articleRepo database.ArticleRepository, generator *Generator, builder *Builder, client *Client) *Registrar {
	return &Registrar{
		articleRepo: articleRepo,
		generator:   generator,
		builder:     builder,
		client:      client,
	}
}

// Register mints and registers a DOI for the article. Returns the registered
// identifier; an article that already carries one short-circuits to success.
func (r *Registrar) Register(ctx context.Context, articleID string) (string, error) {
	article, err := r.articleRepo.GetArticle(articleID)
	if err != nil {
		return "", fmt.Errorf("failed to load article: %w", err)
	}
	if article == nil {
		return "", ErrArticleNotFound
	}

	if article.DOI != "" {
		slog.Debug("Article already registered, skipping", "article", articleID, "doi", article.DOI)
		return article.DOI, nil
	}

	if article.Status != database.StatusPublished {
		return "", ErrNotPublished
	}

	switch article.DOIStatus {
	case database.DOIStatusPending:
		return "", ErrRegistrationPending
	case database.DOIStatusFailed:
		return "", ErrRegistrationFailed
	}

	if missing := Validate(article); len(missing) > 0 {
		return "", &ValidationError{Missing: missing}
	}

	candidate, err := r.generator.Run(article)
	if err != nil {
		if errors.Is(err, ErrCollisionExhausted) {
			if failErr := r.articleRepo.SetDOIFailed(articleID); failErr != nil {
				slog.Error("Failed to persist failed state", "article", articleID, "error", failErr)
			}
		}
		return "", fmt.Errorf("failed to generate DOI: %w", err)
	}

	deposit, err := r.builder.Run(article, candidate)
	if err != nil {
		return "", fmt.Errorf("failed to build deposit: %w", err)
	}

	// Persisted before the network call: a crash mid-submission leaves a
	// recoverable pending marker rather than silent loss.
	claimed, err := r.articleRepo.ClaimDOIPending(articleID)
	if err != nil {
		return "", fmt.Errorf("failed to claim registration: %w", err)
	}
	if !claimed {
		return "", ErrRegistrationPending
	}

	batchID, err := r.client.Submit(ctx, deposit)
	if err != nil {
		if failErr := r.articleRepo.SetDOIFailed(articleID); failErr != nil {
			slog.Error("Failed to persist failed state", "article", articleID, "error", failErr)
		}
		return "", fmt.Errorf("failed to submit deposit: %w", err)
	}

	if err := r.articleRepo.SetDOIRegistered(articleID, candidate, batchID); err != nil {
		return "", fmt.Errorf("failed to persist registration: %w", err)
	}

	slog.Info("DOI registered", "article", articleID, "doi", candidate, "batch_id", batchID)

	return candidate, nil
}

// Retry clears any prior candidate identifier and registration state, then
// runs the full sequence again. Repeated retries never accumulate partial
// state and never reuse a failed candidate.
func (r *Registrar) Retry(ctx context.Context, articleID string) (string, error) {
	article, err := r.articleRepo.GetArticle(articleID)
	if err != nil {
		return "", fmt.Errorf("failed to load article: %w", err)
	}
	if article == nil {
		return "", ErrArticleNotFound
	}

	if article.DOIStatus == database.DOIStatusPending {
		return "", ErrRegistrationPending
	}

	if err := r.articleRepo.ResetDOI(articleID); err != nil {
		return "", fmt.Errorf("failed to reset registration state: %w", err)
	}

	return r.Register(ctx, articleID)
}
