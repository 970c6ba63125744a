// Package extract implements the date-extraction strategies and the
// pipeline that reconciles their candidates into one answer.
package extract

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/stalehq/staleness/internal/freshness"
)

// Fixed per-strategy confidences. They express source reliability, not
// certainty about any particular page.
const (
	confidenceStructured = 0.95
	confidenceLinkedData = 0.95
	confidenceTimeMarkup = 0.85
	confidenceURLPath    = 0.55
	confidenceHeuristic  = 0.50
	confidenceHTTPHeader = 0.40
)

// Document is the read-only view of a page the extractors scan: the parsed
// markup, the page URL, and optionally the response headers.
type Document struct {
	URL    string
	Header http.Header

	root *goquery.Document
}

// NewDocument parses HTML from r. Header may be nil.
func NewDocument(rawURL string, r io.Reader, header http.Header) (*Document, error) {
	root, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{URL: rawURL, Header: header, root: root}, nil
}

// NewDocumentFromString parses an in-memory HTML snippet; tests and the
// deep retriever use this for byte-prefix bodies.
func NewDocumentFromString(rawURL, body string, header http.Header) (*Document, error) {
	return NewDocument(rawURL, strings.NewReader(body), header)
}

// Find exposes selector queries over the parsed markup.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.root.Find(selector)
}

// Extractor is one extraction strategy. Extract returns nil when the
// strategy finds nothing; it must not panic past the pipeline boundary.
type Extractor interface {
	Name() string
	Extract(doc *Document) *freshness.DateCandidate
}
