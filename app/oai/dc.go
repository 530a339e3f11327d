package oai

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/database"
)

// contentTypeLabels maps the article content-type enumeration to the label
// exposed in dc:type. Unknown values fall back to the generic label.
var contentTypeLabels = map[string]string{
	database.ContentTypeResearch:   "Research Article",
	database.ContentTypeReview:     "Review Article",
	database.ContentTypeEditorial:  "Editorial",
	database.ContentTypeCommentary: "Commentary",
}

const defaultContentTypeLabel = "Article"

// Serializer renders an article into the Dublin Core fragment embedded in
// harvest responses. The mapping is fixed and total; re-serializing the same
// article yields byte-identical output.
type Serializer struct{}

func NewSerializer() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Run(article database.Article, indent int) string {
	var buf bytes.Buffer
	pad := strings.Repeat(" ", indent)

	buf.WriteString(pad)
	buf.WriteString(`<oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="http://www.openarchives.org/OAI/2.0/oai_dc/ http://www.openarchives.org/OAI/2.0/oai_dc.xsd">`)
	buf.WriteString("\n")

	writeElement(&buf, "dc:title", article.Title, indent+2)

	for _, author := range article.Authors {
		writeElement(&buf, "dc:creator", CreatorName(author.Name), indent+2)
	}

	for _, tag := range article.Tags {
		writeElement(&buf, "dc:subject", tag, indent+2)
	}

	writeElement(&buf, "dc:description", article.Abstract, indent+2)

	publisher := cfg.Get().RepositoryName
	if article.Journal != nil && article.Journal.Publisher != "" {
		publisher = article.Journal.Publisher
	}
	writeElement(&buf, "dc:publisher", publisher, indent+2)

	if article.PublishedAt != nil {
		writeElement(&buf, "dc:date", article.PublishedAt.UTC().Format("2006-01-02"), indent+2)
	}

	label, ok := contentTypeLabels[article.ContentType]
	if !ok {
		label = defaultContentTypeLabel
	}
	writeElement(&buf, "dc:type", label, indent+2)

	writeElement(&buf, "dc:identifier", s.identifier(article), indent+2)
	writeElement(&buf, "dc:language", s.languageCode(article), indent+2)

	if article.Journal != nil {
		writeElement(&buf, "dc:relation", article.Journal.Title, indent+2)
		if article.Journal.OpenAccess {
			writeElement(&buf, "dc:rights", "info:eu-repo/semantics/openAccess", indent+2)
		} else {
			writeElement(&buf, "dc:rights", "info:eu-repo/semantics/restrictedAccess", indent+2)
		}
		if article.Journal.ISSN != "" {
			writeElement(&buf, "dc:source", "ISSN "+article.Journal.ISSN, indent+2)
		}
	}

	buf.WriteString(pad)
	buf.WriteString("</oai_dc:dc>\n")

	return buf.String()
}

// identifier prefers the registered external identifier, rendered as a
// resolver URL, over the canonical landing page URL.
func (s *Serializer) identifier(article database.Article) string {
	if article.DOI != "" {
		return "https://doi.org/" + article.DOI
	}
	return fmt.Sprintf("%s/articles/%s", cfg.Get().PublicUrl(), article.Slug)
}

// languageCode derives a two-letter code from the journal language tag
func (s *Serializer) languageCode(article database.Article) string {
	if article.Journal == nil || article.Journal.Language == "" {
		return "en"
	}

	tag, err := language.Parse(article.Journal.Language)
	if err != nil {
		return "en"
	}

	base, _ := tag.Base()
	return base.String()
}

// CreatorName renders an author name in inverted "Family, F." form. The last
// whitespace-delimited token is the family name; single-token names pass
// through unchanged.
func CreatorName(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name
	}

	family := fields[len(fields)-1]
	initial := []rune(fields[0])[0]
	return fmt.Sprintf("%s, %c.", family, initial)
}

// FormatDatestamp renders a timestamp with OAI-PMH second-precision UTC
// granularity.
func FormatDatestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
