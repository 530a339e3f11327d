package oai

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openscholar/exchange/app/cfg"
	"github.com/openscholar/exchange/app/database"
)

// DefaultPageSize is the fixed page size for list responses. One extra row is
// fetched beyond it to detect truncation.
const DefaultPageSize = 100

// MetadataPrefix is the single metadata format this repository disseminates
const MetadataPrefix = "oai_dc"

// echoedArguments are the request parameters echoed back in the envelope
var echoedArguments = []string{"verb", "identifier", "metadataPrefix", "from", "until", "set", "resumptionToken"}

// Responder implements the six OAI-PMH verbs. It holds no state between
// requests; all continuation state lives in the resumption token, so it is
// safe for arbitrarily many concurrent harvesters.
type Responder struct {
	articleRepo database.ArticleRepository
	journalRepo database.JournalRepository
	serializer  *Serializer
	clock       func() time.Time
	pageSize    int
}

func NewResponder(articleRepo database.ArticleRepository, journalRepo database.JournalRepository) *Responder {
	return &Responder{
		articleRepo: articleRepo,
		journalRepo: journalRepo,
		serializer:  NewSerializer(),
		clock:       time.Now,
		pageSize:    DefaultPageSize,
	}
}

// Respond handles one harvest request and returns the response document and
// HTTP status. Protocol errors render inside the envelope at 200; only an
// unexpected internal fault yields 500, still as well-formed XML.
func (r *Responder) Respond(query url.Values) (string, int) {
	verb := query.Get("verb")

	var body string
	var perr *protocolError
	var err error

	switch verb {
	case "Identify":
		body, err = r.identify()
	case "ListMetadataFormats":
		body, perr, err = r.listMetadataFormats(query)
	case "ListSets":
		body, perr, err = r.listSets()
	case "ListIdentifiers":
		body, perr, err = r.list(verb, query, false)
	case "ListRecords":
		body, perr, err = r.list(verb, query, true)
	case "GetRecord":
		body, perr, err = r.getRecord(query)
	case "":
		perr = newProtocolError(ErrBadVerb, "Missing verb argument")
	default:
		perr = newProtocolError(ErrBadVerb, fmt.Sprintf("Unknown verb: %s", verb))
	}

	status := http.StatusOK
	if err != nil {
		slog.Error("Harvest request failed", "verb", verb, "error", err)
		perr = newProtocolError(ErrBadArgument, "Unable to process request")
		status = http.StatusInternalServerError
	}

	return r.envelope(verb, query, body, perr), status
}

// envelope wraps a verb body or protocol error in the OAI-PMH response
// document. Request attributes are not echoed for badVerb/badArgument, per
// protocol.
func (r *Responder) envelope(verb string, query url.Values, body string, perr *protocolError) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd">`)
	buf.WriteString("\n")

	buf.WriteString("  <responseDate>")
	buf.WriteString(FormatDatestamp(r.clock()))
	buf.WriteString("</responseDate>\n")

	buf.WriteString("  <request")
	echoAttributes := perr == nil || (perr.code != ErrBadVerb && perr.code != ErrBadArgument)
	if echoAttributes {
		for _, name := range echoedArguments {
			if value := query.Get(name); value != "" {
				buf.WriteString(fmt.Sprintf(" %s=\"%s\"", name, escapeAttribute(value)))
			}
		}
	}
	buf.WriteString(">")
	xml.EscapeText(&buf, []byte(r.baseURL()))
	buf.WriteString("</request>\n")

	if perr != nil {
		buf.WriteString(fmt.Sprintf("  <error code=\"%s\">", perr.code))
		xml.EscapeText(&buf, []byte(perr.message))
		buf.WriteString("</error>\n")
	} else if body != "" {
		buf.WriteString(fmt.Sprintf("  <%s>\n", verb))
		buf.WriteString(body)
		buf.WriteString(fmt.Sprintf("  </%s>\n", verb))
	}

	buf.WriteString("</OAI-PMH>")

	return buf.String()
}

func (r *Responder) identify() (string, error) {
	earliest, err := r.articleRepo.EarliestPublished()
	if err != nil {
		return "", err
	}

	earliestDatestamp := "1970-01-01T00:00:00Z"
	if earliest != nil {
		earliestDatestamp = FormatDatestamp(*earliest)
	}

	var buf bytes.Buffer
	writeElement(&buf, "repositoryName", cfg.Get().RepositoryName, 4)
	writeElement(&buf, "baseURL", r.baseURL(), 4)
	writeElement(&buf, "protocolVersion", "2.0", 4)
	writeElement(&buf, "adminEmail", cfg.Get().AdminEmail, 4)
	writeElement(&buf, "earliestDatestamp", earliestDatestamp, 4)
	writeElement(&buf, "deletedRecord", "no", 4)
	writeElement(&buf, "granularity", "YYYY-MM-DDThh:mm:ssZ", 4)

	return buf.String(), nil
}

func (r *Responder) listMetadataFormats(query url.Values) (string, *protocolError, error) {
	if identifier := query.Get("identifier"); identifier != "" {
		_, perr, err := r.resolveIdentifier(identifier)
		if err != nil {
			return "", nil, err
		}
		if perr != nil {
			return "", perr, nil
		}
	}

	var buf bytes.Buffer
	buf.WriteString("    <metadataFormat>\n")
	writeElement(&buf, "metadataPrefix", MetadataPrefix, 6)
	writeElement(&buf, "schema", "http://www.openarchives.org/OAI/2.0/oai_dc.xsd", 6)
	writeElement(&buf, "metadataNamespace", "http://www.openarchives.org/OAI/2.0/oai_dc/", 6)
	buf.WriteString("    </metadataFormat>\n")

	return buf.String(), nil, nil
}

func (r *Responder) listSets() (string, *protocolError, error) {
	journals, err := r.journalRepo.ListPublishedJournals()
	if err != nil {
		return "", nil, err
	}

	if len(journals) == 0 {
		return "", newProtocolError(ErrNoSetHierarchy, "This repository has no sets"), nil
	}

	var buf bytes.Buffer
	for _, journal := range journals {
		buf.WriteString("    <set>\n")
		writeElement(&buf, "setSpec", journal.Slug, 6)
		writeElement(&buf, "setName", journal.Title, 6)
		buf.WriteString("    </set>\n")
	}

	return buf.String(), nil, nil
}

func (r *Responder) getRecord(query url.Values) (string, *protocolError, error) {
	identifier := query.Get("identifier")
	prefix := query.Get("metadataPrefix")

	if identifier == "" || prefix == "" {
		return "", newProtocolError(ErrBadArgument, "GetRecord requires identifier and metadataPrefix arguments"), nil
	}
	if prefix != MetadataPrefix {
		return "", newProtocolError(ErrCannotDisseminateFormat, fmt.Sprintf("Unsupported metadata format: %s", prefix)), nil
	}

	article, perr, err := r.resolveIdentifier(identifier)
	if err != nil {
		return "", nil, err
	}
	if perr != nil {
		return "", perr, nil
	}

	var buf bytes.Buffer
	r.writeRecord(&buf, *article)

	return buf.String(), nil, nil
}

// list implements ListIdentifiers and ListRecords. A supplied resumption
// token alone determines the query; fresh filter parameters are ignored in
// its presence.
func (r *Responder) list(verb string, query url.Values, includeMetadata bool) (string, *protocolError, error) {
	var rawFrom, rawUntil, set string
	offset := 0

	if token := query.Get("resumptionToken"); token != "" {
		cursor, err := DecodeCursor(token)
		if err != nil {
			return "", newProtocolError(ErrBadResumptionToken, "The resumption token is invalid"), nil
		}
		if cursor.Prefix != MetadataPrefix {
			return "", newProtocolError(ErrBadResumptionToken, "The resumption token names an unsupported format"), nil
		}
		rawFrom, rawUntil, set, offset = cursor.From, cursor.Until, cursor.Set, cursor.Offset
	} else {
		prefix := query.Get("metadataPrefix")
		if prefix == "" {
			return "", newProtocolError(ErrBadArgument, fmt.Sprintf("%s requires a metadataPrefix argument", verb)), nil
		}
		if prefix != MetadataPrefix {
			return "", newProtocolError(ErrCannotDisseminateFormat, fmt.Sprintf("Unsupported metadata format: %s", prefix)), nil
		}
		rawFrom, rawUntil, set = query.Get("from"), query.Get("until"), query.Get("set")
	}

	from, err := parseDatestamp(rawFrom, false)
	if err != nil {
		return "", newProtocolError(ErrBadArgument, fmt.Sprintf("Malformed from argument: %s", rawFrom)), nil
	}
	until, err := parseDatestamp(rawUntil, true)
	if err != nil {
		return "", newProtocolError(ErrBadArgument, fmt.Sprintf("Malformed until argument: %s", rawUntil)), nil
	}

	if set != "" {
		journal, err := r.journalRepo.GetJournal(set)
		if err != nil {
			return "", nil, err
		}
		if journal == nil || journal.Status != database.StatusPublished {
			return "", newProtocolError(ErrNoRecordsMatch, fmt.Sprintf("Unknown set: %s", set)), nil
		}
	}

	articles, err := r.articleRepo.ListPublished(database.ListFilter{
		From:        from,
		Until:       until,
		JournalSlug: set,
		Limit:       r.pageSize + 1,
		Offset:      offset,
	})
	if err != nil {
		return "", nil, err
	}

	if len(articles) == 0 {
		return "", newProtocolError(ErrNoRecordsMatch, "The combination of arguments yields an empty list"), nil
	}

	truncated := len(articles) > r.pageSize
	if truncated {
		articles = articles[:r.pageSize]
	}

	var buf bytes.Buffer
	for _, article := range articles {
		if includeMetadata {
			r.writeRecord(&buf, article)
		} else {
			r.writeHeader(&buf, article, 4)
		}
	}

	if truncated {
		cursor := ResumptionCursor{
			Offset: offset + r.pageSize,
			From:   rawFrom,
			Until:  rawUntil,
			Set:    set,
			Prefix: MetadataPrefix,
		}
		writeElement(&buf, "resumptionToken", cursor.Encode(), 4)
	}

	return buf.String(), nil, nil
}

func (r *Responder) writeRecord(buf *bytes.Buffer, article database.Article) {
	buf.WriteString("    <record>\n")
	r.writeHeader(buf, article, 6)
	buf.WriteString("      <metadata>\n")
	buf.WriteString(r.serializer.Run(article, 8))
	buf.WriteString("      </metadata>\n")
	buf.WriteString("    </record>\n")
}

func (r *Responder) writeHeader(buf *bytes.Buffer, article database.Article, indent int) {
	pad := strings.Repeat(" ", indent)
	buf.WriteString(pad)
	buf.WriteString("<header>\n")
	writeElement(buf, "identifier", r.Identifier(article.ID), indent+2)
	if article.PublishedAt != nil {
		writeElement(buf, "datestamp", FormatDatestamp(*article.PublishedAt), indent+2)
	}
	if article.Journal != nil && article.Journal.Status == database.StatusPublished {
		writeElement(buf, "setSpec", article.Journal.Slug, indent+2)
	}
	buf.WriteString(pad)
	buf.WriteString("</header>\n")
}

// Identifier builds the OAI identifier for an article id
func (r *Responder) Identifier(articleID string) string {
	return fmt.Sprintf("oai:%s:%s", r.repositoryID(), articleID)
}

// resolveIdentifier maps an OAI identifier back to a published article.
// Anything that does not resolve to a published record is idDoesNotExist.
func (r *Responder) resolveIdentifier(identifier string) (*database.Article, *protocolError, error) {
	prefix := fmt.Sprintf("oai:%s:", r.repositoryID())
	id, ok := strings.CutPrefix(identifier, prefix)
	if !ok || id == "" {
		return nil, newProtocolError(ErrIDDoesNotExist, fmt.Sprintf("Unknown identifier: %s", identifier)), nil
	}

	article, err := r.articleRepo.GetArticle(id)
	if err != nil {
		return nil, nil, err
	}
	if article == nil || article.Status != database.StatusPublished {
		return nil, newProtocolError(ErrIDDoesNotExist, fmt.Sprintf("Unknown identifier: %s", identifier)), nil
	}

	return article, nil, nil
}

func (r *Responder) baseURL() string {
	return cfg.Get().PublicUrl() + "/oai"
}

// repositoryID is the host portion of the public base URL, used as the opaque
// prefix in OAI identifiers.
func (r *Responder) repositoryID() string {
	parsed, err := url.Parse(cfg.Get().PublicUrl())
	if err != nil || parsed.Hostname() == "" {
		return "localhost"
	}
	return parsed.Hostname()
}

// parseDatestamp accepts both supported granularities: date-only and full
// second-precision UTC timestamps. A date-only until bound is inclusive
// through the end of that day.
func parseDatestamp(value string, until bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	if t, err := time.Parse("2006-01-02T15:04:05Z", value); err == nil {
		return &t, nil
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("malformed datestamp: %s", value)
	}

	if until {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
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

func escapeAttribute(value string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(value))
	return buf.String()
}
