package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// articleColumns is the shared select list for article queries, including the
// left-joined journal.
const articleColumns = `
	a.id, a.slug, COALESCE(a.title, ''), COALESCE(a.abstract, ''), COALESCE(a.body, ''),
	a.content_type, a.status, a.published_at, COALESCE(a.doi, ''), COALESCE(a.doi_status, ''),
	COALESCE(a.doi_batch_id, ''), COALESCE(a.license_url, ''), COALESCE(a.pdf_url, ''),
	a.journal_id, COALESCE(a.tags, '{}'), a.created_at, a.updated_at,
	j.id, COALESCE(j.slug, ''), COALESCE(j.title, ''), COALESCE(j.issn, ''),
	COALESCE(j.eissn, ''), COALESCE(j.publisher, ''), COALESCE(j.language, ''),
	COALESCE(j.open_access, false), COALESCE(j.status, '')`

// ArticleRepositoryImpl handles database operations for articles
type ArticleRepositoryImpl struct {
	db *DB
}

var _ ArticleRepository = (*ArticleRepositoryImpl)(nil)

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepositoryImpl {
	return &ArticleRepositoryImpl{db: db}
}

func (r *ArticleRepositoryImpl) scanArticle(row interface{ Scan(...interface{}) error }) (*Article, error) {
	var article Article
	var journalID sql.NullString
	var joinedJournalID sql.NullString
	var journal Journal

	err := row.Scan(
		&article.ID, &article.Slug, &article.Title, &article.Abstract, &article.Body,
		&article.ContentType, &article.Status, &article.PublishedAt, &article.DOI,
		&article.DOIStatus, &article.DOIBatchID, &article.LicenseURL, &article.PDFURL,
		&journalID, pq.Array(&article.Tags), &article.CreatedAt, &article.UpdatedAt,
		&joinedJournalID, &journal.Slug, &journal.Title, &journal.ISSN,
		&journal.EISSN, &journal.Publisher, &journal.Language,
		&journal.OpenAccess, &journal.Status,
	)
	if err != nil {
		return nil, err
	}

	if journalID.Valid {
		id := journalID.String
		article.JournalID = &id
	}
	if joinedJournalID.Valid {
		journal.ID = joinedJournalID.String
		article.Journal = &journal
	}

	return &article, nil
}

func (r *ArticleRepositoryImpl) getArticleBy(where string, arg interface{}) (*Article, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM articles a
		LEFT JOIN journals j ON j.id = a.journal_id
		WHERE %s
	`, articleColumns, where)

	article, err := r.scanArticle(r.db.QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	if err := r.attachAuthors([]*Article{article}); err != nil {
		return nil, err
	}

	return article, nil
}

// GetArticle returns a single article by database id, with authors and
// journal resolved. Returns nil when absent. The text cast keeps malformed
// ids (e.g. from harvester-supplied OAI identifiers) from raising a uuid
// syntax error instead of a clean miss.
func (r *ArticleRepositoryImpl) GetArticle(id string) (*Article, error) {
	return r.getArticleBy("a.id::text = $1", id)
}

// GetArticleBySlug returns a single article by URL slug. Returns nil when absent.
func (r *ArticleRepositoryImpl) GetArticleBySlug(slug string) (*Article, error) {
	return r.getArticleBy("a.slug = $1", slug)
}

// GetArticleByDOI returns the article already bearing the given external
// identifier, if any. Used as the uniqueness probe during DOI generation.
func (r *ArticleRepositoryImpl) GetArticleByDOI(doi string) (*Article, error) {
	return r.getArticleBy("a.doi = $1", doi)
}

// ListPublished returns a page of published articles ordered by publication
// date descending, ties broken by id descending so pagination is stable.
func (r *ArticleRepositoryImpl) ListPublished(filter ListFilter) ([]Article, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM articles a
		LEFT JOIN journals j ON j.id = a.journal_id
		WHERE a.status = $1
		  AND ($2::timestamptz IS NULL OR a.published_at >= $2)
		  AND ($3::timestamptz IS NULL OR a.published_at <= $3)
		  AND ($4 = '' OR j.slug = $4)
		ORDER BY a.published_at DESC, a.id DESC
		LIMIT $5 OFFSET $6
	`, articleColumns)

	rows, err := r.db.Query(query, StatusPublished, filter.From, filter.Until,
		filter.JournalSlug, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list published articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		article, err := r.scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	if err := r.attachAuthors(articles); err != nil {
		return nil, err
	}

	result := make([]Article, 0, len(articles))
	for _, article := range articles {
		result = append(result, *article)
	}

	return result, nil
}

// attachAuthors loads ordered author lists for the given articles in one query.
func (r *ArticleRepositoryImpl) attachAuthors(articles []*Article) error {
	if len(articles) == 0 {
		return nil
	}

	byID := make(map[string]*Article, len(articles))
	ids := make([]string, 0, len(articles))
	for _, article := range articles {
		byID[article.ID] = article
		ids = append(ids, article.ID)
	}

	rows, err := r.db.Query(`
		SELECT article_id, name, COALESCE(affiliation, ''), COALESCE(orcid, ''), position
		FROM article_authors
		WHERE article_id = ANY($1)
		ORDER BY article_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to get article authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID string
		var author Author
		if err := rows.Scan(&articleID, &author.Name, &author.Affiliation, &author.ORCID, &author.Position); err != nil {
			return fmt.Errorf("failed to scan author row: %w", err)
		}
		if article, ok := byID[articleID]; ok {
			article.Authors = append(article.Authors, author)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating author rows: %w", err)
	}

	return nil
}

// EarliestPublished returns the oldest publication timestamp among published
// articles, or nil when nothing has been published yet.
func (r *ArticleRepositoryImpl) EarliestPublished() (*time.Time, error) {
	var earliest sql.NullTime
	err := r.db.QueryRow(`
		SELECT MIN(published_at) FROM articles WHERE status = $1
	`, StatusPublished).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest publication date: %w", err)
	}

	if !earliest.Valid {
		return nil, nil
	}
	return &earliest.Time, nil
}

// GetArticleCount returns the total number of published articles
func (r *ArticleRepositoryImpl) GetArticleCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM articles WHERE status = $1", StatusPublished).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}

// GetDOIStats returns registration state counts for published articles
func (r *ArticleRepositoryImpl) GetDOIStats() (DOIStats, error) {
	var stats DOIStats
	err := r.db.QueryRow(`
		SELECT
			SUM(CASE WHEN doi_status = '' THEN 1 ELSE 0 END),
			SUM(CASE WHEN doi_status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN doi_status = 'registered' THEN 1 ELSE 0 END),
			SUM(CASE WHEN doi_status = 'failed' THEN 1 ELSE 0 END)
		FROM articles
		WHERE status = $1
	`, StatusPublished).Scan(&stats.Unset, &stats.Pending, &stats.Registered, &stats.Failed)
	if err != nil {
		return DOIStats{}, fmt.Errorf("failed to get DOI stats: %w", err)
	}
	return stats, nil
}

// ListArticlesNeedingDOI returns ids of published articles whose registration
// state is still unset. Failed articles are excluded; they are only retried
// through the explicit retry entry point.
func (r *ArticleRepositoryImpl) ListArticlesNeedingDOI(limit int) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT id FROM articles
		WHERE status = $1 AND doi = '' AND doi_status = ''
		ORDER BY published_at DESC
		LIMIT $2
	`, StatusPublished, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles needing DOI: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article ids: %w", err)
	}

	return ids, nil
}

// ClaimDOIPending marks an article pending before the network submission.
// The conditional update doubles as an in-flight lock: it only succeeds for a
// published article whose state is unset, so a concurrent attempt on the same
// article is turned away instead of issuing a duplicate deposit.
func (r *ArticleRepositoryImpl) ClaimDOIPending(id string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE articles
		SET doi_status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND doi_status = ''
	`, id, DOIStatusPending, StatusPublished)
	if err != nil {
		return false, fmt.Errorf("failed to claim pending registration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return affected > 0, nil
}

// SetDOIRegistered persists a successful registration outcome
func (r *ArticleRepositoryImpl) SetDOIRegistered(id, doi, batchID string) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET doi = $2, doi_status = $3, doi_batch_id = $4, updated_at = NOW()
		WHERE id = $1
	`, id, doi, DOIStatusRegistered, batchID)
	if err != nil {
		return fmt.Errorf("failed to mark article registered: %w", err)
	}
	return nil
}

// SetDOIFailed persists a terminal failure. The candidate identifier is
// discarded so a later retry generates a fresh one.
func (r *ArticleRepositoryImpl) SetDOIFailed(id string) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET doi = '', doi_status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, DOIStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark article failed: %w", err)
	}
	return nil
}

// ResetDOI clears the external identifier and registration state ahead of an
// explicit retry
func (r *ArticleRepositoryImpl) ResetDOI(id string) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET doi = '', doi_status = '', doi_batch_id = '', updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reset registration state: %w", err)
	}
	return nil
}
