package doi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/database"
)

// abstractMaxLength caps the deposited abstract, in characters, after
// HTML stripping
const abstractMaxLength = 1000

type Contributor struct {
	GivenName  string
	FamilyName string
	ORCID      string
	Sequence   string // "first" or "additional"
}

// Deposit is the metadata structure submitted to the registration authority
type Deposit struct {
	BatchID         string
	Timestamp       int64
	DOI             string
	Title           string
	Contributors    []Contributor
	JournalTitle    string
	ISSN            string
	EISSN           string
	PublicationDate time.Time
	LandingURL      string
	Abstract        string
	LicenseURL      string
	PDFURL          string
}

// Validate runs the pre-build validation pass and reports every missing
// mandatory field, not a single generic error.
func Validate(article *database.Article) []string {
	var missing []string

	if strings.TrimSpace(article.Title) == "" {
		missing = append(missing, "title is required")
	}
	if len(article.Authors) == 0 {
		missing = append(missing, "at least one author is required")
	}
	if article.PublishedAt == nil {
		missing = append(missing, "publication timestamp is required")
	}
	if strings.TrimSpace(article.Slug) == "" {
		missing = append(missing, "slug is required")
	}

	return missing
}

// Builder transforms an article plus its authors and journal into deposit
// metadata. Batch id and timestamp sources are injectable for tests.
type Builder struct {
	stripPolicy *bluemonday.Policy
	newBatchID  func() string
	clock       func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{
		stripPolicy: bluemonday.StrictPolicy(),
		newBatchID:  uuid.NewString,
		clock:       time.Now,
	}
}

// Run builds the deposit for a validated article and its candidate identifier
func (b *Builder) Run(article *database.Article, doi string) (*Deposit, error) {
	if missing := Validate(article); len(missing) > 0 {
		return nil, fmt.Errorf("article is not depositable: %s", strings.Join(missing, "; "))
	}

	deposit := &Deposit{
		BatchID:         b.newBatchID(),
		Timestamp:       b.clock().UTC().Unix(),
		DOI:             doi,
		Title:           article.Title,
		Contributors:    contributors(article.Authors),
		PublicationDate: article.PublishedAt.UTC(),
		LandingURL:      fmt.Sprintf("%s/articles/%s", cfg.Get().PublicUrl(), article.Slug),
		Abstract:        b.abstract(article.Abstract),
		LicenseURL:      article.LicenseURL,
		PDFURL:          article.PDFURL,
	}

	if article.Journal != nil {
		deposit.JournalTitle = article.Journal.Title
		deposit.ISSN = article.Journal.ISSN
		deposit.EISSN = article.Journal.EISSN
	}

	return deposit, nil
}

// abstract strips markup and enforces the hard length cap. The cap counts
// characters, never splitting a multi-byte rune.
func (b *Builder) abstract(raw string) string {
	text := strings.TrimSpace(html.UnescapeString(b.stripPolicy.Sanitize(raw)))
	if runes := []rune(text); len(runes) > abstractMaxLength {
		text = string(runes[:abstractMaxLength])
	}
	return text
}

func contributors(authors []database.Author) []Contributor {
	result := make([]Contributor, 0, len(authors))
	for i, author := range authors {
		given, family := SplitName(author.Name)
		sequence := "additional"
		if i == 0 {
			sequence = "first"
		}
		result = append(result, Contributor{
			GivenName:  given,
			FamilyName: family,
			ORCID:      author.ORCID,
			Sequence:   sequence,
		})
	}
	return result
}

// SplitName splits a display name into given and family parts. The last
// whitespace-delimited token is the family name; single-token names carry no
// given name.
func SplitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
}

// XML renders the deposit in the registration authority's batch format
func (d *Deposit) XML() string {
	var buf bytes.Buffer

	appCfg := cfg.Get()

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<doi_batch xmlns="http://www.crossref.org/schema/4.4.2" version="4.4.2">`)
	buf.WriteString("\n  <head>\n")
	writeElement(&buf, "doi_batch_id", d.BatchID, 4)
	writeElement(&buf, "timestamp", fmt.Sprintf("%d", d.Timestamp), 4)
	buf.WriteString("    <depositor>\n")
	writeElement(&buf, "depositor_name", appCfg.DOIDepositor, 6)
	writeElement(&buf, "email_address", appCfg.AdminEmail, 6)
	buf.WriteString("    </depositor>\n")
	writeElement(&buf, "registrant", appCfg.RepositoryName, 4)
	buf.WriteString("  </head>\n  <body>\n    <journal>\n")

	buf.WriteString("      <journal_metadata>\n")
	if d.JournalTitle != "" {
		writeElement(&buf, "full_title", d.JournalTitle, 8)
	} else {
		writeElement(&buf, "full_title", appCfg.RepositoryName, 8)
	}
	if d.ISSN != "" {
		buf.WriteString("        <issn media_type=\"print\">")
		xml.EscapeText(&buf, []byte(d.ISSN))
		buf.WriteString("</issn>\n")
	}
	if d.EISSN != "" {
		buf.WriteString("        <issn media_type=\"electronic\">")
		xml.EscapeText(&buf, []byte(d.EISSN))
		buf.WriteString("</issn>\n")
	}
	buf.WriteString("      </journal_metadata>\n")

	buf.WriteString("      <journal_article publication_type=\"full_text\">\n")
	buf.WriteString("        <titles>\n")
	writeElement(&buf, "title", d.Title, 10)
	buf.WriteString("        </titles>\n")

	if len(d.Contributors) > 0 {
		buf.WriteString("        <contributors>\n")
		for _, c := range d.Contributors {
			buf.WriteString(fmt.Sprintf("          <person_name sequence=\"%s\" contributor_role=\"author\">\n", c.Sequence))
			writeElement(&buf, "given_name", c.GivenName, 12)
			writeElement(&buf, "surname", c.FamilyName, 12)
			writeElement(&buf, "ORCID", c.ORCID, 12)
			buf.WriteString("          </person_name>\n")
		}
		buf.WriteString("        </contributors>\n")
	}

	writeElement(&buf, "abstract", d.Abstract, 8)

	buf.WriteString("        <publication_date>\n")
	writeElement(&buf, "month", d.PublicationDate.Format("01"), 10)
	writeElement(&buf, "day", d.PublicationDate.Format("02"), 10)
	writeElement(&buf, "year", d.PublicationDate.Format("2006"), 10)
	buf.WriteString("        </publication_date>\n")

	if d.LicenseURL != "" {
		buf.WriteString("        <program xmlns=\"http://www.crossref.org/AccessIndicators.xsd\">\n")
		writeElement(&buf, "license_ref", d.LicenseURL, 10)
		buf.WriteString("        </program>\n")
	}

	buf.WriteString("        <doi_data>\n")
	writeElement(&buf, "doi", d.DOI, 10)
	writeElement(&buf, "resource", d.LandingURL, 10)
	if d.PDFURL != "" {
		buf.WriteString("          <collection property=\"text-mining\">\n            <item>\n")
		writeElement(&buf, "resource", d.PDFURL, 14)
		buf.WriteString("            </item>\n          </collection>\n")
	}
	buf.WriteString("        </doi_data>\n")

	buf.WriteString("      </journal_article>\n    </journal>\n  </body>\n</doi_batch>")

	return buf.String()
}

func writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
