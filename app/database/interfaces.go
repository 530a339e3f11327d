package database

import (
	"time"
)

// ListFilter narrows a published-article listing. From/Until are inclusive
// bounds on published_at; JournalSlug restricts to a single grouping.
type ListFilter struct {
	From        *time.Time
	Until       *time.Time
	JournalSlug string
	Limit       int
	Offset      int
}

// DOIStats aggregates registration states across published articles.
type DOIStats struct {
	Unset      int
	Pending    int
	Registered int
	Failed     int
}

type ArticleRepository interface {
	GetArticle(id string) (*Article, error)
	GetArticleBySlug(slug string) (*Article, error)
	GetArticleByDOI(doi string) (*Article, error)

	ListPublished(filter ListFilter) ([]Article, error)
	EarliestPublished() (*time.Time, error)
	GetArticleCount() (int, error)
	GetDOIStats() (DOIStats, error)

	ListArticlesNeedingDOI(limit int) ([]string, error)
	ClaimDOIPending(id string) (bool, error)
	SetDOIRegistered(id, doi, batchID string) error
	SetDOIFailed(id string) error
	ResetDOI(id string) error
}

type JournalRepository interface {
	GetJournal(slug string) (*Journal, error)
	ListPublishedJournals() ([]Journal, error)
	GetJournalCount() (int, error)

	UpsertJournal(slug, title, issn, eissn, publisher, language string, openAccess, published bool) error
}
