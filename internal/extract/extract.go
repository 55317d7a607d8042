// Package extract evaluates field-extraction rules against fetched
// HTML. CSS selectors run on goquery, XPath expressions on htmlquery;
// a vision extractor parses OCR text when the DOM yields nothing.
package extract

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document wraps one HTML page for repeated rule evaluation. Each
// representation is parsed at most once, on first use.
type Document struct {
	raw string

	gqOnce sync.Once
	gq     *goquery.Document
	gqErr  error

	xpOnce sync.Once
	xp     *html.Node
	xpErr  error
}

// NewDocument returns a document over raw HTML. Parsing is deferred
// until a selector of the matching kind is evaluated.
func NewDocument(raw string) *Document {
	return &Document{raw: raw}
}

func (d *Document) gqDoc() (*goquery.Document, error) {
	d.gqOnce.Do(func() {
		d.gq, d.gqErr = goquery.NewDocumentFromReader(strings.NewReader(d.raw))
	})
	return d.gq, d.gqErr
}

func (d *Document) xpRoot() (*html.Node, error) {
	d.xpOnce.Do(func() {
		d.xp, d.xpErr = htmlquery.Parse(strings.NewReader(d.raw))
	})
	return d.xp, d.xpErr
}
