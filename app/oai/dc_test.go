package oai

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/openscholar/exchange/app/cfg"
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

func sampleArticle() database.Article {
	publishedAt := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	journalID := "journal-uuid"
	return database.Article{
		ID:          "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		Slug:        "quantum-error-correction-survey",
		Title:       "A Survey of Quantum Error Correction",
		Abstract:    "We survey recent advances in quantum error correction.",
		ContentType: database.ContentTypeResearch,
		Status:      database.StatusPublished,
		PublishedAt: &publishedAt,
		JournalID:   &journalID,
		Journal: &database.Journal{
			ID:         journalID,
			Slug:       "acta-informatica",
			Title:      "Acta Informatica",
			ISSN:       "1234-5678",
			Publisher:  "Example University Press",
			Language:   "en-US",
			OpenAccess: true,
			Status:     database.StatusPublished,
		},
		Authors: []database.Author{
			{Name: "Jane Q. Doe", ORCID: "https://orcid.org/0000-0002-1825-0097", Position: 0},
			{Name: "John Smith", Position: 1},
		},
		Tags: []string{"quantum computing", "error correction"},
	}
}

func TestSerializeDublinCore(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	output := serializer.Run(sampleArticle(), 0)

	expectations := []string{
		"<dc:title>A Survey of Quantum Error Correction</dc:title>",
		"<dc:creator>Doe, J.</dc:creator>",
		"<dc:creator>Smith, J.</dc:creator>",
		"<dc:subject>quantum computing</dc:subject>",
		"<dc:subject>error correction</dc:subject>",
		"<dc:description>We survey recent advances in quantum error correction.</dc:description>",
		"<dc:publisher>Example University Press</dc:publisher>",
		"<dc:date>2025-03-10</dc:date>",
		"<dc:type>Research Article</dc:type>",
		"<dc:language>en</dc:language>",
		"<dc:relation>Acta Informatica</dc:relation>",
		"<dc:rights>info:eu-repo/semantics/openAccess</dc:rights>",
		"<dc:source>ISSN 1234-5678</dc:source>",
	}

	for _, expected := range expectations {
		if !strings.Contains(output, expected) {
			t.Errorf("Expected output to contain %q\nGot:\n%s", expected, output)
		}
	}
}

func TestSerializeIdentifierPrefersDOI(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	article := sampleArticle()
	article.DOI = "10.5555/2025.a1b2c3d4-0f1e2d3c"

	output := serializer.Run(article, 0)
	if !strings.Contains(output, "<dc:identifier>https://doi.org/10.5555/2025.a1b2c3d4-0f1e2d3c</dc:identifier>") {
		t.Errorf("Expected DOI resolver identifier, got:\n%s", output)
	}

	article.DOI = ""
	output = serializer.Run(article, 0)
	if !strings.Contains(output, "/articles/quantum-error-correction-survey</dc:identifier>") {
		t.Errorf("Expected landing page identifier, got:\n%s", output)
	}
}

func TestSerializeEscapesMarkup(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	article := sampleArticle()
	article.Title = `Inequalities with <, >, & and "quotes"`

	output := serializer.Run(article, 0)
	if !strings.Contains(output, "Inequalities with &lt;, &gt;, &amp; and") {
		t.Errorf("Expected escaped title, got:\n%s", output)
	}
	if strings.Contains(output, "<dc:title>Inequalities with <,") {
		t.Errorf("Raw markup leaked into output:\n%s", output)
	}
}

func TestSerializeDeterministic(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()
	article := sampleArticle()

	first := serializer.Run(article, 4)
	second := serializer.Run(article, 4)
	if first != second {
		t.Error("Expected identical output for repeated serialization")
	}
}

func TestSerializeRestrictedAccess(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	article := sampleArticle()
	article.Journal.OpenAccess = false

	output := serializer.Run(article, 0)
	if !strings.Contains(output, "<dc:rights>info:eu-repo/semantics/restrictedAccess</dc:rights>") {
		t.Errorf("Expected restrictedAccess rights, got:\n%s", output)
	}
}

func TestSerializeUnknownContentType(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	article := sampleArticle()
	article.ContentType = "mystery"

	output := serializer.Run(article, 0)
	if !strings.Contains(output, "<dc:type>Article</dc:type>") {
		t.Errorf("Expected generic type label, got:\n%s", output)
	}
}

func TestSerializeNoJournal(t *testing.T) {
	setupTestConfig()
	serializer := NewSerializer()

	article := sampleArticle()
	article.Journal = nil
	article.JournalID = nil

	output := serializer.Run(article, 0)
	if strings.Contains(output, "<dc:relation>") {
		t.Errorf("Expected no relation for unaffiliated article, got:\n%s", output)
	}
	if !strings.Contains(output, "<dc:language>en</dc:language>") {
		t.Errorf("Expected fallback language, got:\n%s", output)
	}
	// Publisher falls back to the repository name
	if !strings.Contains(output, "<dc:publisher>"+cfg.Get().RepositoryName+"</dc:publisher>") {
		t.Errorf("Expected repository name as publisher, got:\n%s", output)
	}
}

func TestCreatorName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Jane Q. Doe", "Doe, J."},
		{"John Smith", "Smith, J."},
		{"Madonna", "Madonna"},
		{"Ludwig van Beethoven", "Beethoven, L."},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CreatorName(tt.name); got != tt.expected {
			t.Errorf("CreatorName(%q) = %q, expected %q", tt.name, got, tt.expected)
		}
	}
}

func TestFormatDatestamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2025, 3, 10, 15, 30, 45, 123456789, loc)

	got := FormatDatestamp(ts)
	if got != "2025-03-10T14:30:45Z" {
		t.Errorf("Expected UTC second-precision datestamp, got %q", got)
	}
}
