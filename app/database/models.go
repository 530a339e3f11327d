package database

import (
	"time"
)

// Publication status values shared by articles and journals.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Registration states for an article's external identifier.
const (
	DOIStatusUnset      = ""
	DOIStatusPending    = "pending"
	DOIStatusRegistered = "registered"
	DOIStatusFailed     = "failed"
)

// Content type enumeration for articles.
const (
	ContentTypeResearch   = "research"
	ContentTypeReview     = "review"
	ContentTypeEditorial  = "editorial"
	ContentTypeCommentary = "commentary"
)

type Journal struct {
	ID         string // Database UUID
	Slug       string // Configuration journal identifier derived from filename
	Title      string
	ISSN       string // Print serial number
	EISSN      string // Electronic serial number
	Publisher  string
	Language   string
	OpenAccess bool
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Author struct {
	Name        string
	Affiliation string
	ORCID       string
	Position    int // Order among co-authors, zero-based
}

type Article struct {
	ID          string // Database UUID
	Slug        string
	Title       string
	Abstract    string
	Body        string
	ContentType string
	Status      string
	PublishedAt *time.Time // Set when status becomes published, immutable afterwards
	DOI         string     // Empty until registration succeeds
	DOIStatus   string
	DOIBatchID  string // Tracking id returned by the registration authority
	LicenseURL  string
	PDFURL      string
	JournalID   *string
	Journal     *Journal // Resolved grouping, nil for unaffiliated articles
	Authors     []Author
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
