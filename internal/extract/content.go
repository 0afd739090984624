// Package extract turns fetched HTML into cleaned plain text.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/vitals/internal/model"
	"golang.org/x/net/html"
)

// DefaultMinContentLength is the stripped text length a content container
// must exceed to be chosen over the page body
const DefaultMinContentLength = 1000

// DefaultStripTags are removed from the page before any text is read
var DefaultStripTags = []string{
	"script", "style", "nav", "header", "footer", "aside",
	"iframe", "noscript", "meta", "link", "button", "form",
}

// DefaultStripSelectors are class selectors for site chrome
var DefaultStripSelectors = []string{
	".site-header", ".site-footer", ".sidebar", ".navigation", ".breadcrumbs",
	".share-buttons", ".social-buttons", ".newsletter", ".donate-button",
	".cookie-notice", ".popup", ".modal", ".advertisement", ".ad",
}

// DefaultContentSelectors are tried in order to locate the main content
var DefaultContentSelectors = []string{
	"main", "article", ".content", ".post-content", ".entry-content",
}

// ContentExtractor extracts the readable main text of a page
type ContentExtractor struct {
	stripTags        []string
	stripSelectors   []string
	contentSelectors []string
	minContentLength int
	filter           *LineFilter
}

// NewContentExtractor creates an extractor with the default denylists
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		stripTags:        DefaultStripTags,
		stripSelectors:   DefaultStripSelectors,
		contentSelectors: DefaultContentSelectors,
		minContentLength: DefaultMinContentLength,
		filter:           NewLineFilter(),
	}
}

// Extract returns the cleaned text of htmlContent. sourceURL is only used
// in the error when no content container exists.
func (e *ContentExtractor) Extract(htmlContent string, sourceURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	e.strip(doc)

	content := e.selectContent(doc, hasBodyTag(htmlContent))
	if content == nil {
		return "", &model.ContentNotFoundError{URL: sourceURL}
	}

	return e.filter.Apply(BlockText(content)), nil
}

// strip removes non-content elements in place
func (e *ContentExtractor) strip(doc *goquery.Document) {
	doc.Find(strings.Join(e.stripTags, ", ")).Remove()
	for _, sel := range e.stripSelectors {
		doc.Find(sel).Remove()
	}
}

// selectContent picks the first content container with enough text,
// falling back to body. The HTML5 parser always synthesizes a body element,
// so the fallback only applies when the source has a <body> tag of its own.
// An empty body is still a body.
func (e *ContentExtractor) selectContent(doc *goquery.Document, hasBody bool) *goquery.Selection {
	for _, sel := range e.contentSelectors {
		candidate := doc.Find(sel).First()
		if candidate.Length() == 0 {
			continue
		}
		if utf8.RuneCountInString(strippedText(candidate)) > e.minContentLength {
			return candidate
		}
	}

	if !hasBody {
		return nil
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil
	}
	return body
}

// hasBodyTag reports whether the markup contains a real <body> start tag
func hasBodyTag(htmlContent string) bool {
	z := html.NewTokenizer(strings.NewReader(htmlContent))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "body" {
				return true
			}
		}
	}
}

// strippedText concatenates every trimmed text node without separators
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(n, func(s string) {
			b.WriteString(strings.TrimSpace(s))
		})
	}
	return b.String()
}

func walkText(n *html.Node, fn func(string)) {
	if n.Type == html.TextNode {
		fn(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}
