package database

import (
	"database/sql"
	"fmt"
)

// JournalRepositoryImpl handles database operations for journals
type JournalRepositoryImpl struct {
	db *DB
}

var _ JournalRepository = (*JournalRepositoryImpl)(nil)

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *DB) *JournalRepositoryImpl {
	return &JournalRepositoryImpl{db: db}
}

const journalColumns = `
	id, slug, title, COALESCE(issn, ''), COALESCE(eissn, ''),
	COALESCE(publisher, ''), COALESCE(language, ''), open_access, status,
	created_at, updated_at`

func scanJournal(row interface{ Scan(...interface{}) error }) (*Journal, error) {
	var journal Journal
	err := row.Scan(
		&journal.ID, &journal.Slug, &journal.Title, &journal.ISSN, &journal.EISSN,
		&journal.Publisher, &journal.Language, &journal.OpenAccess, &journal.Status,
		&journal.CreatedAt, &journal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &journal, nil
}

// GetJournal returns a journal by slug. Returns nil when absent.
func (r *JournalRepositoryImpl) GetJournal(slug string) (*Journal, error) {
	query := fmt.Sprintf("SELECT %s FROM journals WHERE slug = $1", journalColumns)

	journal, err := scanJournal(r.db.QueryRow(query, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal: %w", err)
	}

	return journal, nil
}

// ListPublishedJournals returns all journals visible to harvesters as sets
func (r *JournalRepositoryImpl) ListPublishedJournals() ([]Journal, error) {
	query := fmt.Sprintf("SELECT %s FROM journals WHERE status = $1 ORDER BY slug", journalColumns)

	rows, err := r.db.Query(query, StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}
	defer rows.Close()

	var journals []Journal
	for rows.Next() {
		journal, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		journals = append(journals, *journal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return journals, nil
}

// GetJournalCount returns the number of published journals
func (r *JournalRepositoryImpl) GetJournalCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM journals WHERE status = $1", StatusPublished).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get journal count: %w", err)
	}
	return count, nil
}

// UpsertJournal inserts or updates a journal from its configuration
func (r *JournalRepositoryImpl) UpsertJournal(slug, title, issn, eissn, publisher, language string, openAccess, published bool) error {
	status := StatusDraft
	if published {
		status = StatusPublished
	}

	_, err := r.db.Exec(`
		INSERT INTO journals (slug, title, issn, eissn, publisher, language, open_access, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			issn = EXCLUDED.issn,
			eissn = EXCLUDED.eissn,
			publisher = EXCLUDED.publisher,
			language = EXCLUDED.language,
			open_access = EXCLUDED.open_access,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, slug, title, issn, eissn, publisher, language, openAccess, status)
	if err != nil {
		return fmt.Errorf("failed to upsert journal: %w", err)
	}

	return nil
}
