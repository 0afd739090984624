package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/vitals/internal/model"
)

const longParagraph = "Across most rich countries the crude marriage rate has declined since the 1970s while divorce rates rose and then stabilised. "

func repeatParagraph(n int) string {
	return "<p>" + strings.Repeat(longParagraph, n) + "</p>"
}

func TestContentExtractor_PrefersMainWhenLongEnough(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body>
		<div class="intro"><p>This introduction paragraph sits outside the main element.</p></div>
		<main>` + repeatParagraph(10) + `</main>
	</body></html>`

	text, err := extractor.Extract(page, "https://example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Contains(text, "introduction paragraph") {
		t.Errorf("Expected text outside <main> to be excluded, got %q", text)
	}
	if !strings.Contains(text, "crude marriage rate") {
		t.Errorf("Expected main content, got %q", text)
	}
}

func TestContentExtractor_SkipsShortContainers(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body>
		<main><p>A short main element with not much text.</p></main>
		<article>` + repeatParagraph(10) + `</article>
	</body></html>`

	text, err := extractor.Extract(page, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.Contains(text, "short main element") {
		t.Errorf("Expected short <main> to be passed over, got %q", text)
	}
	if !strings.Contains(text, "crude marriage rate") {
		t.Errorf("Expected article content, got %q", text)
	}
}

func TestContentExtractor_FallsBackToBody(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body>
		<div><p>Marriage rates fell sharply after 1970.</p></div>
		<div><p>Divorce rates in the United States peaked around 1980.</p></div>
	</body></html>`

	text, err := extractor.Extract(page, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := "Marriage rates fell sharply after 1970.\n\nDivorce rates in the United States peaked around 1980."
	if text != want {
		t.Errorf("Extract() = %q, want %q", text, want)
	}
}

func TestContentExtractor_NoBody(t *testing.T) {
	extractor := NewContentExtractor()

	_, err := extractor.Extract(`<html><head><title>Empty page</title></head></html>`, "https://example.com/empty")
	if err == nil {
		t.Fatal("Expected ContentNotFoundError, got nil")
	}

	var notFound *model.ContentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected ContentNotFoundError, got %T: %v", err, err)
	}
	if notFound.URL != "https://example.com/empty" {
		t.Errorf("Unexpected URL in error: %s", notFound.URL)
	}
}

func TestContentExtractor_NoBodyTagWithText(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><div><p>Marriage rates fell sharply after 1970.</p></div></html>`
	text, err := extractor.Extract(page, "https://example.com/bare")

	var notFound *model.ContentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected ContentNotFoundError, got text=%q err=%v", text, err)
	}
}

func TestContentExtractor_EmptyBodyFallsBack(t *testing.T) {
	extractor := NewContentExtractor()

	for _, page := range []string{
		`<html><body></body></html>`,
		`<html><body>   </body></html>`,
	} {
		text, err := extractor.Extract(page, "https://example.com/blank")
		if err != nil {
			t.Fatalf("Extract(%q) returned error: %v", page, err)
		}
		if text != "" {
			t.Errorf("Extract(%q) = %q, want empty text", page, text)
		}
	}
}

func TestHasBodyTag(t *testing.T) {
	tests := []struct {
		page string
		want bool
	}{
		{`<html><body><p>x</p></body></html>`, true},
		{`<HTML><BODY class="page">x</BODY></HTML>`, true},
		{`<html><div>x</div></html>`, false},
		{`<html><script>document.write("<body>")</script></html>`, false},
		{`<html><!-- <body> --><p>x</p></html>`, false},
	}
	for _, tt := range tests {
		if got := hasBodyTag(tt.page); got != tt.want {
			t.Errorf("hasBodyTag(%q) = %v, want %v", tt.page, got, tt.want)
		}
	}
}

func TestContentExtractor_StripsDenylistedMarkup(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body>
		<header><p>Our World in Data header navigation text</p></header>
		<nav><p>Browse all topics in alphabetical order</p></nav>
		<script>var tracking = "this script content must vanish";</script>
		<div class="cookie-notice"><p>We use cookies to improve your experience</p></div>
		<div class="sidebar"><p>Related research on population growth</p></div>
		<p>Marriage rates fell sharply after 1970.</p>
		<footer><p>Licensed under CC BY, reuse is permitted freely</p></footer>
	</body></html>`

	text, err := extractor.Extract(page, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if text != "Marriage rates fell sharply after 1970." {
		t.Errorf("Expected only the paragraph to survive, got %q", text)
	}
}

func TestContentExtractor_KeepsInlineMarkupOnOneLine(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body><p>Marriage rates <a href="/x">fell</a> <em>sharply</em> after 1970.</p></body></html>`

	text, err := extractor.Extract(page, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "Marriage rates fell sharply after 1970." {
		t.Errorf("Unexpected text: %q", text)
	}
}

func TestContentExtractor_DropsBoilerplateLines(t *testing.T) {
	extractor := NewContentExtractor()

	page := `<html><body>
		<p>1,234 (56%)</p>
		<p>Share this article</p>
		<p>Marriage rates fell sharply after 1970.</p>
	</body></html>`

	text, err := extractor.Extract(page, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "Marriage rates fell sharply after 1970." {
		t.Errorf("Unexpected text: %q", text)
	}
}

func TestBlockText_LineBreaks(t *testing.T) {
	page := `<html><body><ul><li>Marriage rate in France</li><li>Divorce rate in France</li></ul>Line one<br>Line two</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := BlockText(doc.Find("body"))
	want := "Marriage rate in France\nDivorce rate in France\nLine one\nLine two"
	if got != want {
		t.Errorf("BlockText() = %q, want %q", got, want)
	}
}
